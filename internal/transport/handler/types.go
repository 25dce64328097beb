package handler

import "github.com/trunov/mediaforge/internal/queue"

type UploadURLRequest struct {
	Filename    string `json:"filename" validate:"required,max=255"`
	ContentType string `json:"contentType" validate:"omitempty,max=128"`
}

type TaskRequest struct {
	Type    string        `json:"type" validate:"required,oneof=inspect thumb preview"`
	Key     string        `json:"key" validate:"required,max=512"`
	ItemID  string        `json:"itemid" validate:"omitempty,max=128"`
	Options queue.Options `json:"options"`
}

type TranscodeRequest struct {
	ID           string `json:"id" validate:"required,uuid4"`
	Format       string `json:"format" validate:"omitempty,oneof=mp4 webm mkv mov"`
	Resolution   string `json:"resolution" validate:"omitempty,max=16"`
	CRF          int    `json:"crf" validate:"gte=0,lte=51"`
	Preset       string `json:"preset" validate:"omitempty,max=32"`
	ExtraFilters string `json:"extraFilters" validate:"omitempty,max=255"`
}

type ShareRequest struct {
	Key        string `json:"key" validate:"required,max=512"`
	TTLSeconds int    `json:"ttl" validate:"gte=0,lte=604800"`
}
