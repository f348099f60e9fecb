package store

import (
	"context"
	"log"
)

// JournaledStore guards writes of a SheetStore with an ActionJournal so a
// resubmitted request id never reaches the sheet twice.
type JournaledStore struct {
	SheetStore
	journal ActionJournal
}

func NewJournaledStore(inner SheetStore, journal ActionJournal) *JournaledStore {
	return &JournaledStore{SheetStore: inner, journal: journal}
}

func (s *JournaledStore) Submit(ctx context.Context, action Action) (ActionResult, error) {
	if action.RequestID == "" {
		return s.SheetStore.Submit(ctx, action)
	}

	entry, created, err := s.journal.Begin(ctx, JournalEntry{
		RequestID: action.RequestID,
		Action:    action.Kind,
		Row:       action.Row,
		Status:    JournalPending,
	})
	if err != nil {
		return ActionResult{}, err
	}
	if entry.Action != action.Kind || entry.Row != action.Row {
		if created {
			// Put back the failed outcome the entry was reopened from.
			if err := s.journal.Finish(context.WithoutCancel(ctx), action.RequestID, JournalFailed, ErrRequestIDReused.Error()); err != nil {
				log.Printf("journal finish error request_id=%s: %v", action.RequestID, err)
			}
		}
		log.Printf("journal mismatch request_id=%s journaled=%s/%s got=%s/%s", action.RequestID, entry.Action, entry.Row, action.Kind, action.Row)
		return ActionResult{}, ErrRequestIDReused
	}
	if !created {
		switch entry.Status {
		case JournalSucceeded:
			log.Printf("journal replay request_id=%s action=%s", entry.RequestID, entry.Action)
			return ActionResult{Status: "ok", Message: entry.Message, Replayed: true}, nil
		default:
			return ActionResult{}, ErrActionInFlight
		}
	}

	result, submitErr := s.SheetStore.Submit(ctx, action)
	status := JournalSucceeded
	message := result.Message
	if submitErr != nil {
		status = JournalFailed
		message = submitErr.Error()
	}
	// The outcome must be recorded even when the caller's context is gone.
	if err := s.journal.Finish(context.WithoutCancel(ctx), action.RequestID, status, message); err != nil {
		log.Printf("journal finish error request_id=%s: %v", action.RequestID, err)
	}
	return result, submitErr
}

func (s *JournaledStore) Journal() ActionJournal {
	return s.journal
}
