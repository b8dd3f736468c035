package session

import (
	"time"

	"github.com/dennishermann/evaepic-sub000/internal/progress"
)

// Status enumerates coarse run phases.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	// StatusCancelled is only recorded in the journal for runs torn down by Reset.
	StatusCancelled Status = "cancelled"
)

// Snapshot is an immutable view of the session published for rendering.
type Snapshot struct {
	RunID     string         `json:"run_id,omitempty"`
	Status    Status         `json:"status"`
	Running   bool           `json:"running"`
	Headline  string         `json:"headline"`
	Model     progress.Model `json:"model"`
	Result    map[string]any `json:"result,omitempty"`
	Err       string         `json:"error,omitempty"`
	Seq       uint64         `json:"seq"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Terminal reports whether the snapshot ends a run.
func (s Snapshot) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	s.Model = s.Model.Clone()
	if s.Result != nil {
		s.Result = cloneMap(s.Result)
	}
	return s
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return cloneMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
