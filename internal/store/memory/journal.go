package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"qms/walkin-service/internal/store"
)

type Journal struct {
	mu      sync.Mutex
	entries map[string]store.JournalEntry
	now     func() time.Time
}

func NewJournal() *Journal {
	return &Journal{
		entries: make(map[string]store.JournalEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (j *Journal) Begin(ctx context.Context, entry store.JournalEntry) (store.JournalEntry, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	existing, ok := j.entries[entry.RequestID]
	if ok && existing.Status != store.JournalFailed {
		return existing, false, nil
	}
	if ok {
		existing.Status = store.JournalPending
		existing.Message = ""
		existing.UpdatedAt = now
		j.entries[entry.RequestID] = existing
		return existing, true, nil
	}

	entry.Status = store.JournalPending
	entry.CreatedAt = now
	entry.UpdatedAt = now
	j.entries[entry.RequestID] = entry
	return entry, true, nil
}

func (j *Journal) Finish(ctx context.Context, requestID, status, message string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry, ok := j.entries[requestID]
	if !ok {
		return store.ErrEntryNotFound
	}
	entry.Status = status
	entry.Message = message
	entry.UpdatedAt = j.now()
	j.entries[requestID] = entry
	return nil
}

func (j *Journal) Recent(ctx context.Context, limit int) ([]store.JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	list := make([]store.JournalEntry, 0, len(j.entries))
	for _, entry := range j.entries {
		list = append(list, entry)
	}
	sort.Slice(list, func(a, b int) bool {
		if list[a].CreatedAt.Equal(list[b].CreatedAt) {
			return list[a].RequestID < list[b].RequestID
		}
		return list[a].CreatedAt.After(list[b].CreatedAt)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}
