package queue

import (
	"math"
	"strings"

	"qms/walkin-service/internal/models"
)

// CheckoutSession is the in-progress payment for one waiting customer.
type CheckoutSession struct {
	Customer     models.QueueEntry
	Products     []models.PriceListItem
	CashReceived float64
	Method       string
}

func NewCheckoutSession(customer models.QueueEntry) *CheckoutSession {
	return &CheckoutSession{Customer: customer}
}

// Toggle removes an already selected service or appends a new one while fewer
// than models.MaxProducts are selected. It reports whether the selection changed.
func (s *CheckoutSession) Toggle(item models.PriceListItem) bool {
	for i, selected := range s.Products {
		if selected.CutType == item.CutType {
			s.Products = append(s.Products[:i:i], s.Products[i+1:]...)
			return true
		}
	}
	if len(s.Products) >= models.MaxProducts {
		return false
	}
	s.Products = append(s.Products, item)
	return true
}

func (s *CheckoutSession) Total() float64 {
	return TotalOf(s.Products)
}

func (s *CheckoutSession) ChangeDue() float64 {
	return ChangeDue(s.CashReceived, s.Total())
}

func (s *CheckoutSession) ProductNames() []string {
	names := make([]string, 0, len(s.Products))
	for _, product := range s.Products {
		names = append(names, product.CutType)
	}
	return names
}

func (s *CheckoutSession) clone() *CheckoutSession {
	c := *s
	c.Products = append([]models.PriceListItem(nil), s.Products...)
	return &c
}

func TotalOf(items []models.PriceListItem) float64 {
	total := 0.0
	for _, item := range items {
		if math.IsNaN(item.Price) || math.IsInf(item.Price, 0) {
			continue
		}
		total += item.Price
	}
	return total
}

func ChangeDue(cash, total float64) float64 {
	return math.Max(0, cash-total)
}

func normalizePaymentMethod(method string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "cash":
		return models.PaymentCash, true
	case "card", "digital":
		return models.PaymentCard, true
	default:
		return "", false
	}
}
