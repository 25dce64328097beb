package queue

import "github.com/trunov/mediaforge/internal/metastore"

// TaskType is the closed set of queued transform kinds.
type TaskType string

const (
	TaskInspect TaskType = "inspect"
	TaskThumb   TaskType = "thumb"
	TaskPreview TaskType = "preview"
)

func (t TaskType) Valid() bool {
	switch t {
	case TaskInspect, TaskThumb, TaskPreview:
		return true
	}
	return false
}

// PendingStatus is the marker written best-effort at submission time.
func (t TaskType) PendingStatus() string {
	switch t {
	case TaskInspect:
		return metastore.StatusPendingInspect
	case TaskThumb:
		return metastore.StatusPendingThumb
	case TaskPreview:
		return metastore.StatusPendingPreview
	}
	return ""
}

type Options struct {
	ThumbAt    float64 `json:"thumbAt,omitempty"`    // still-frame offset, seconds
	PreviewSec int     `json:"previewSec,omitempty"` // preview duration, seconds
	Width      int     `json:"width,omitempty"`      // preview scale width, px
}

// Task is what we push to the queue. No bytes here - workers fetch by Key.
// Immutable once enqueued; the same task may be delivered more than once.
type Task struct {
	Type    TaskType `json:"type"`
	Key     string   `json:"key"`
	ItemID  string   `json:"itemid,omitempty"`
	Owner   string   `json:"owner,omitempty"`
	Options Options  `json:"options,omitempty"`
}
