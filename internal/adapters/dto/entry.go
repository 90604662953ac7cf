package dto

import (
	"time"

	"github.com/bnema/catalogd/internal/domain"
)

// EntryResponse is the public view of a catalog entry. The source path or
// URL is never exposed.
type EntryResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	FileType  string    `json:"file_type,omitempty"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// EntryListResponse wraps the catalog listing.
type EntryListResponse struct {
	Entries []EntryResponse `json:"entries"`
	Count   int             `json:"count"`
}

// NewEntryListResponse converts catalog entries.
func NewEntryListResponse(entries []*domain.Entry) EntryListResponse {
	resp := EntryListResponse{Entries: make([]EntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, EntryResponse{
			ID:        e.ID,
			Name:      e.Name,
			Kind:      string(e.Kind),
			FileType:  e.FileType,
			Size:      e.Size,
			CreatedAt: e.CreatedAt.UTC(),
		})
	}
	resp.Count = len(resp.Entries)
	return resp
}
