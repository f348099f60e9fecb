// Package reporting serves the history of paid visits: filtered by text and
// date, sorted by date and totalled.
package reporting

import (
	"context"
	"log"
	"sync"

	"qms/walkin-service/internal/models"
)

type HistorySource interface {
	FetchHistory(ctx context.Context) ([]models.HistoryRecord, error)
}

type View struct {
	Filter    Filter                 `json:"filter"`
	Direction Direction              `json:"direction"`
	Loaded    bool                   `json:"loaded"`
	Count     int                    `json:"count"`
	Total     float64                `json:"total_revenue"`
	Records   []models.HistoryRecord `json:"records"`
}

type Controller struct {
	source HistorySource

	mu        sync.Mutex
	records   []models.HistoryRecord
	loaded    bool
	direction Direction
}

func NewController(source HistorySource) *Controller {
	return &Controller{source: source, direction: Descending}
}

// Load replaces the history with a fresh read. On failure the previous
// history is kept.
func (c *Controller) Load(ctx context.Context) error {
	records, err := c.source.FetchHistory(ctx)
	if err != nil {
		log.Printf("history load error: %v", err)
		return err
	}

	c.mu.Lock()
	c.records = records
	c.loaded = true
	c.mu.Unlock()
	return nil
}

// ToggleSort flips the shared sort direction and returns the unfiltered view.
func (c *Controller) ToggleSort() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.direction = c.direction.Toggle()
	return c.viewLocked()
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Query builds a view for filter without touching the shared sort direction.
// An empty direction uses the shared one.
func (c *Controller) Query(filter Filter, direction Direction) View {
	c.mu.Lock()
	defer c.mu.Unlock()
	if direction == "" {
		direction = c.direction
	}
	return c.buildLocked(filter, direction)
}

func (c *Controller) viewLocked() View {
	return c.buildLocked(Filter{}, c.direction)
}

func (c *Controller) buildLocked(filter Filter, direction Direction) View {
	filtered := FilterRecords(c.records, filter)
	SortByDate(filtered, direction)
	return View{
		Filter:    filter,
		Direction: direction,
		Loaded:    c.loaded,
		Count:     len(filtered),
		Total:     TotalRevenue(filtered),
		Records:   filtered,
	}
}
