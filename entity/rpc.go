package entity

// MediaFetchRequest asks the owning channel service for a binary.
type MediaFetchRequest struct {
	MediaID      string `json:"media_id"`
	ConnectionID string `json:"connection_id"`
	CompanyID    string `json:"company_id"`
}

// MediaFetchResponse carries the fetched binary or an error.
type MediaFetchResponse struct {
	Success  bool   `json:"success"`
	Data     []byte `json:"data,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Filename string `json:"filename,omitempty"`
	Error    string `json:"error,omitempty"`
}

// FileUploadRequest stores a binary in the central file store.
type FileUploadRequest struct {
	File      []byte            `json:"file"`
	Filename  string            `json:"filename"`
	MimeType  string            `json:"mime_type"`
	CompanyID string            `json:"company_id"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// FileUploadResponse is the file store's answer to an upload.
type FileUploadResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	URL     string `json:"url,omitempty"`
	Size    int64  `json:"size,omitempty"`
	Error   string `json:"error,omitempty"`
}
