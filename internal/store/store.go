package store

import (
	"context"
	"time"

	"qms/walkin-service/internal/models"
)

const (
	ActionAppend = "append"
	ActionUpdate = "update"
	ActionSkip   = "skip"
)

// Action is one write against the remote sheet. Only the fields relevant to
// Kind are sent.
type Action struct {
	Kind             string
	RequestID        string
	Row              string
	CellphoneNumber  string
	Name             string
	Barber           string
	TotalAmount      float64
	PaymentType      string
	SelectedProducts []string
}

type ActionResult struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Replayed bool   `json:"replayed,omitempty"`
}

type SheetStore interface {
	FetchQueue(ctx context.Context) ([]models.QueueEntry, error)
	FetchPrices(ctx context.Context) ([]models.PriceListItem, error)
	FetchBarbers(ctx context.Context) ([]models.Barber, error)
	FetchHistory(ctx context.Context) ([]models.HistoryRecord, error)
	Submit(ctx context.Context, action Action) (ActionResult, error)
}

const (
	JournalPending   = "pending"
	JournalSucceeded = "succeeded"
	JournalFailed    = "failed"
)

type JournalEntry struct {
	RequestID string    `json:"request_id"`
	Action    string    `json:"action"`
	Row       string    `json:"row,omitempty"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ActionJournal records writes by request id.
//
// Begin stores a pending entry and reports created=true. When the request id
// is already known it returns the stored entry with created=false, except for
// failed entries which are reopened as pending so the write can be retried.
type ActionJournal interface {
	Begin(ctx context.Context, entry JournalEntry) (JournalEntry, bool, error)
	Finish(ctx context.Context, requestID, status, message string) error
	Recent(ctx context.Context, limit int) ([]JournalEntry, error)
}
