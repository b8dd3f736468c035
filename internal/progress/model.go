package progress

import (
	"github.com/dennishermann/evaepic-sub000/internal/catalog"
	"github.com/dennishermann/evaepic-sub000/internal/format"
)

// Status is the forward-only lifecycle of a stage or vendor sub-progress.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

func (s Status) rank() int {
	switch s {
	case StatusActive:
		return 1
	case StatusCompleted:
		return 2
	default:
		return 0
	}
}

// advance moves s forward to next, never backward.
func (s Status) advance(next Status) Status {
	if next.rank() > s.rank() {
		return next
	}
	return s
}

// VendorProgress tracks one vendor inside a fan-out stage.
type VendorProgress struct {
	VendorID    string        `json:"vendor_id"`
	DisplayName string        `json:"display_name"`
	Status      Status        `json:"status"`
	Output      []format.Card `json:"output,omitempty"`
}

// StageProgress is the rendered state of one workflow stage.
type StageProgress struct {
	Number  int              `json:"number"`
	Key     string           `json:"key"`
	Status  Status           `json:"status"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
	Output  []format.Card    `json:"output,omitempty"`
	Vendors []VendorProgress `json:"vendors,omitempty"`
}

// Model is the ordered progress view of one negotiation run.
type Model struct {
	Stages []StageProgress `json:"stages"`
}

// Seed returns every catalog stage in Pending state.
func Seed() Model {
	list := catalog.Stages()
	m := Model{Stages: make([]StageProgress, len(list))}
	for i, stage := range list {
		m.Stages[i] = StageProgress{
			Number:  stage.Number,
			Key:     stage.Key,
			Status:  StatusPending,
			Title:   stage.Title,
			Message: stage.DefaultMessage,
		}
	}
	return m
}

// Clone returns a deep copy that shares no slices with m.
func (m Model) Clone() Model {
	if m.Stages == nil {
		return Model{}
	}
	out := Model{Stages: make([]StageProgress, len(m.Stages))}
	for i, stage := range m.Stages {
		stage.Output = cloneCards(stage.Output)
		if stage.Vendors != nil {
			vendors := make([]VendorProgress, len(stage.Vendors))
			for j, vendor := range stage.Vendors {
				vendor.Output = cloneCards(vendor.Output)
				vendors[j] = vendor
			}
			stage.Vendors = vendors
		}
		out.Stages[i] = stage
	}
	return out
}

func cloneCards(cards []format.Card) []format.Card {
	if cards == nil {
		return nil
	}
	out := make([]format.Card, len(cards))
	for i, card := range cards {
		if card.Details != nil {
			card.Details = append([]format.Detail(nil), card.Details...)
		}
		out[i] = card
	}
	return out
}

// Stage returns the stage with the given number.
func (m Model) Stage(number int) (StageProgress, bool) {
	if i := m.index(number); i >= 0 {
		return m.Stages[i], true
	}
	return StageProgress{}, false
}

// Active returns the stage currently in progress, if any.
func (m Model) Active() (StageProgress, bool) {
	for _, stage := range m.Stages {
		if stage.Status == StatusActive {
			return stage, true
		}
	}
	return StageProgress{}, false
}

// AllCompleted reports whether every stage has finished.
func (m Model) AllCompleted() bool {
	if len(m.Stages) == 0 {
		return false
	}
	for _, stage := range m.Stages {
		if stage.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// Headline summarizes the run for a status bar.
func (m Model) Headline() string {
	if m.AllCompleted() {
		return "Order Processing Complete"
	}
	if active, ok := m.Active(); ok {
		return active.Title
	}
	if n := len(m.Stages); n > 0 && m.Stages[n-1].Status == StatusCompleted {
		return "Finalizing Order"
	}
	return "Processing Order"
}

func (m Model) index(number int) int {
	for i, stage := range m.Stages {
		if stage.Number == number {
			return i
		}
	}
	return -1
}
