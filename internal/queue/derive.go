package queue

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"qms/walkin-service/internal/models"
)

type Bucket string

const (
	BucketOK   Bucket = "ok"
	BucketWarn Bucket = "warn"
	BucketLate Bucket = "late"
)

const minutesPerDay = 24 * 60

type WaitInfo struct {
	Minutes int    `json:"minutes"`
	Text    string `json:"text"`
	Bucket  Bucket `json:"bucket"`
}

// Unserved returns the entries without a checkout time, in sheet order.
func Unserved(entries []models.QueueEntry) []models.QueueEntry {
	waiting := make([]models.QueueEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Waiting() {
			waiting = append(waiting, entry)
		}
	}
	return waiting
}

func BucketFor(minutes int) Bucket {
	switch {
	case minutes < 30:
		return BucketOK
	case minutes < 60:
		return BucketWarn
	default:
		return BucketLate
	}
}

// WaitTime measures how long a customer who checked in at timeIn (HH:mm) has
// been waiting at now. A check-in later than now belongs to the previous day.
func WaitTime(timeIn string, now time.Time) WaitInfo {
	hours, minutes, ok := parseClock(timeIn)
	if !ok {
		return WaitInfo{Minutes: 0, Text: formatWait(0), Bucket: BucketOK}
	}
	checkIn := time.Date(now.Year(), now.Month(), now.Day(), hours, minutes, 0, 0, now.Location())
	if checkIn.After(now) {
		checkIn = checkIn.AddDate(0, 0, -1)
	}
	elapsed := int(now.Sub(checkIn) / time.Minute)
	return WaitInfo{Minutes: elapsed, Text: formatWait(elapsed), Bucket: BucketFor(elapsed)}
}

func formatWait(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

// AverageServiceMinutes averages time-in to time-out over served entries.
// Durations crossing midnight wrap around. Every served entry counts toward
// the average; non-positive durations contribute zero minutes.
func AverageServiceMinutes(entries []models.QueueEntry) (int, bool) {
	total, count := 0, 0
	for _, entry := range entries {
		if strings.TrimSpace(entry.TimeIn) == "" || strings.TrimSpace(entry.TimeOut) == "" {
			continue
		}
		in, okIn := minuteOfDay(entry.TimeIn)
		out, okOut := minuteOfDay(entry.TimeOut)
		if !okIn || !okOut {
			continue
		}
		diff := out - in
		if diff < 0 {
			diff += minutesPerDay
		}
		if diff > 0 {
			total += diff
		}
		count++
	}
	if count == 0 {
		return 0, false
	}
	return int(math.Round(float64(total) / float64(count))), true
}

func FormatAverage(minutes int) string {
	switch {
	case minutes < 60:
		return fmt.Sprintf("%dm", minutes)
	case minutes%60 == 0:
		return fmt.Sprintf("%dh", minutes/60)
	default:
		return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
	}
}

func minuteOfDay(value string) (int, bool) {
	hours, minutes, ok := parseClock(value)
	if !ok {
		return 0, false
	}
	return hours*60 + minutes, true
}

func parseClock(value string) (int, int, bool) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) < 2 {
		return 0, 0, false
	}
	hours, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || hours < 0 || hours > 23 {
		return 0, 0, false
	}
	minutes, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, 0, false
	}
	return hours, minutes, true
}
