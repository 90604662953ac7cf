package dto

// UploadResponse references the entry created by an upload.
type UploadResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FileType string `json:"file_type"`
	Size     int64  `json:"size"`
}
