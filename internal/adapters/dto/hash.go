package dto

import (
	"time"

	"github.com/bnema/catalogd/internal/domain"
)

// HashStatusResponse is the digest status of an entry.
type HashStatusResponse struct {
	Status     string     `json:"status"`
	MD5        string     `json:"md5,omitempty"`
	SHA256     string     `json:"sha256,omitempty"`
	Error      string     `json:"error,omitempty"`
	JobID      string     `json:"job_id,omitempty"`
	ComputedAt *time.Time `json:"computed_at,omitempty"`
	// Previous carries the last known digests while a recompute runs or after it failed.
	Previous *DigestPair `json:"previous,omitempty"`
}

// DigestPair is a complete set of digests.
type DigestPair struct {
	MD5    string `json:"md5"`
	SHA256 string `json:"sha256"`
}

// NewHashStatusResponse converts a job status. Digests are only exposed
// when the status is ready and both are present.
func NewHashStatusResponse(s domain.JobStatus) HashStatusResponse {
	resp := HashStatusResponse{Status: string(s.State), JobID: s.JobID}

	switch s.State {
	case domain.JobReady:
		if !s.Digests.Complete() {
			return HashStatusResponse{Status: string(domain.JobAbsent)}
		}
		resp.MD5 = s.Digests.MD5
		resp.SHA256 = s.Digests.SHA256
		if !s.ComputedAt.IsZero() {
			t := s.ComputedAt.UTC()
			resp.ComputedAt = &t
		}
	case domain.JobFailed, domain.JobProcessing:
		if s.State == domain.JobFailed {
			resp.Error = string(s.ErrorCode)
		}
		if s.Previous.Complete() {
			resp.Previous = &DigestPair{MD5: s.Previous.MD5, SHA256: s.Previous.SHA256}
		}
	case domain.JobAbsent:
		resp.JobID = ""
	}

	return resp
}
