package models

import (
	"strings"
	"time"
)

type QueueEntry struct {
	Row         string `json:"row"`
	Name        string `json:"name"`
	Cellphone   string `json:"cellphone_number"`
	Barber      string `json:"barber"`
	TimeIn      string `json:"time_in"`
	TimeOut     string `json:"time_out,omitempty"`
	Placeholder bool   `json:"placeholder,omitempty"`
}

// Waiting reports whether the entry has no recorded checkout time.
func (e QueueEntry) Waiting() bool {
	return strings.TrimSpace(e.TimeOut) == ""
}

type PriceListItem struct {
	CutType string  `json:"cut_type"`
	Price   float64 `json:"price"`
}

type Barber struct {
	Name string `json:"name"`
}

type HistoryRecord struct {
	Name        string    `json:"name"`
	Cellphone   string    `json:"cellphone_number"`
	Barber      string    `json:"barber"`
	Date        time.Time `json:"date"`
	DateRaw     string    `json:"date_raw,omitempty"`
	Amount      float64   `json:"amount"`
	Products    []string  `json:"products"`
	PaymentType string    `json:"payment_type,omitempty"`
	TimeIn      string    `json:"time_in,omitempty"`
	TimeOut     string    `json:"time_out,omitempty"`
}

const MaxProducts = 5

const (
	PaymentCash = "Cash"
	PaymentCard = "Card"
)
