package sheets

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"qms/walkin-service/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	colRow         = "_row"
	colName        = "Name"
	colCellphone   = "Cellphone Number"
	colBarber      = "Barber"
	colTimeIn      = "Time In"
	colTimeOut     = "Time Out"
	colDate        = "Date"
	colAmount      = "Amount"
	colPaymentType = "Payment Type"
	colCutType     = "CutType"
	colPrice       = "Price"
)

var productColumns = [models.MaxProducts]string{"Product 1", "Product 2", "Product 3", "Product 4", "Product 5"}

var clockLayouts = []string{"15:04", "15:04:05", "3:04 PM", "3:04PM", "3:04 pm"}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"1/2/2006",
	"01/02/2006",
	"2006-01-02 15:04:05",
	"1/2/2006 15:04:05",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
}

func parseQueueEntry(row map[string]any, loc *time.Location) models.QueueEntry {
	return models.QueueEntry{
		Row:       cellString(row[colRow]),
		Name:      cellString(row[colName]),
		Cellphone: cellString(row[colCellphone]),
		Barber:    cellString(row[colBarber]),
		TimeIn:    cellClock(row[colTimeIn], loc),
		TimeOut:   cellClock(row[colTimeOut], loc),
	}
}

func parsePriceListItem(row map[string]any) (models.PriceListItem, bool) {
	cutType := cellString(row[colCutType])
	if cutType == "" {
		return models.PriceListItem{}, false
	}
	return models.PriceListItem{CutType: cutType, Price: cellNumber(row[colPrice])}, true
}

func parseBarber(row map[string]any) (models.Barber, bool) {
	name := cellString(row[colName])
	if name == "" {
		name = cellString(row[colBarber])
	}
	if name == "" {
		return models.Barber{}, false
	}
	return models.Barber{Name: name}, true
}

func parseHistoryRecord(row map[string]any, loc *time.Location) models.HistoryRecord {
	date, raw := cellDate(row[colDate], loc)
	products := make([]string, 0, len(productColumns))
	for _, column := range productColumns {
		if product := cellString(row[column]); product != "" {
			products = append(products, product)
		}
	}
	return models.HistoryRecord{
		Name:        cellString(row[colName]),
		Cellphone:   cellString(row[colCellphone]),
		Barber:      cellString(row[colBarber]),
		Date:        date,
		DateRaw:     raw,
		Amount:      cellNumber(row[colAmount]),
		Products:    products,
		PaymentType: cellString(row[colPaymentType]),
		TimeIn:      cellClock(row[colTimeIn], loc),
		TimeOut:     cellClock(row[colTimeOut], loc),
	}
}

func cellString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// cellNumber reads numeric cells; anything that is not a finite number is 0.
func cellNumber(value any) float64 {
	var n float64
	switch v := value.(type) {
	case float64:
		n = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		n = parsed
	default:
		return 0
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return n
}

// cellClock normalises time cells to HH:mm. Time-formatted cells come back
// from the sheet as timestamps on 1899-12-30.
func cellClock(value any, loc *time.Location) string {
	raw := cellString(value)
	if raw == "" {
		return ""
	}
	for _, layout := range clockLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.Format("15:04")
		}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.In(loc).Format("15:04")
		}
	}
	return raw
}

func cellDate(value any, loc *time.Location) (time.Time, string) {
	if serial, ok := value.(float64); ok {
		if serial >= 20000 && serial <= 80000 {
			if parsed, err := excelize.ExcelDateToTime(serial, false); err == nil {
				return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), parsed.Hour(), parsed.Minute(), parsed.Second(), 0, loc), cellString(value)
			}
		}
		return time.Time{}, cellString(value)
	}

	raw := cellString(value)
	if raw == "" {
		return time.Time{}, ""
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.In(loc), raw
		}
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return parsed, raw
		}
	}
	return time.Time{}, raw
}
