package media

import "time"

// API response models

// AttachmentResponse documents the attachment returned by the media endpoints
type AttachmentResponse struct {
	ID           int       `json:"id"`
	Filename     string    `json:"filename"`
	MIMEType     string    `json:"mime_type"`
	SizeBytes    int64     `json:"size_bytes"`
	LocalURL     string    `json:"local_url"`
	LocalDeleted bool      `json:"local_deleted"`
	RemoteURL    string    `json:"remote_url,omitempty"`
	RemoteMIME   string    `json:"remote_mime,omitempty"`
	Backend      string    `json:"backend,omitempty"`
	RelayStatus  string    `json:"relay_status" example:"relayed"`
	RelayMessage string    `json:"relay_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// URLResponse is the resolved public URL of an attachment
type URLResponse struct {
	ID  int    `json:"id"`
	URL string `json:"url"`
}
