package entities

import "time"

type Media struct {
	ID               string    `json:"id"`
	Owner            string    `json:"owner"`
	ObjectKey        string    `json:"object_key"`
	OriginalFilename string    `json:"original_filename"`
	Title            string    `json:"title,omitempty"`
	MimeType         string    `json:"mime_type"`
	Size             int64     `json:"size"`
	UploadedAt       time.Time `json:"uploaded_at"`
}

type MediaPage struct {
	Total int64   `json:"total"`
	Page  int     `json:"page"`
	Limit int     `json:"limit"`
	Items []Media `json:"items"`
}
