package queue

import (
	"fmt"
	"regexp"
	"strings"

	"qms/walkin-service/internal/models"
)

// PhoneRule is the accepted cellphone shape: "+", a country code, then a
// fixed number of digits.
type PhoneRule struct {
	CountryCode string
	Digits      int
	pattern     *regexp.Regexp
}

func NewPhoneRule(countryCode string, digits int) PhoneRule {
	countryCode = strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
	if countryCode == "" {
		countryCode = "27"
	}
	if digits <= 0 {
		digits = 9
	}
	return PhoneRule{
		CountryCode: countryCode,
		Digits:      digits,
		pattern:     regexp.MustCompile(fmt.Sprintf(`^\+%s\d{%d}$`, regexp.QuoteMeta(countryCode), digits)),
	}
}

func (r PhoneRule) Prefix() string {
	return "+" + r.CountryCode
}

func (r PhoneRule) Length() int {
	return len(r.Prefix()) + r.Digits
}

func (r PhoneRule) Valid(phone string) bool {
	if r.pattern == nil {
		return NewPhoneRule(r.CountryCode, r.Digits).Valid(phone)
	}
	return r.pattern.MatchString(phone)
}

// NormalizePhone prefixes stored numbers with "+" the way numbers are typed
// at intake. Sheets drop the leading "+" when a number is stored as a number.
func NormalizePhone(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || strings.HasPrefix(trimmed, "+") {
		return trimmed
	}
	return "+" + trimmed
}

// DedupeByPhone keeps the first history record per normalised phone number.
func DedupeByPhone(records []models.HistoryRecord) map[string]models.HistoryRecord {
	index := make(map[string]models.HistoryRecord, len(records))
	for _, record := range records {
		key := NormalizePhone(record.Cellphone)
		if key == "" {
			continue
		}
		if _, seen := index[key]; seen {
			continue
		}
		index[key] = record
	}
	return index
}

type IntakeForm struct {
	Name      string `json:"name"`
	Cellphone string `json:"cellphone_number"`
	Barber    string `json:"barber"`
	Existing  bool   `json:"existing"`
	Resolved  bool   `json:"resolved"`
}

func (f IntakeForm) normalized() IntakeForm {
	f.Name = strings.TrimSpace(f.Name)
	f.Cellphone = strings.TrimSpace(f.Cellphone)
	f.Barber = strings.TrimSpace(f.Barber)
	return f
}

func (f IntakeForm) validate(rule PhoneRule) error {
	if f.Name == "" || f.Barber == "" {
		return &ValidationError{Message: "Please enter a name and select a barber."}
	}
	if !rule.Valid(f.Cellphone) {
		return &ValidationError{Message: fmt.Sprintf("Invalid Phone! Use %s followed by %d digits.", rule.Prefix(), rule.Digits)}
	}
	return nil
}

// lookupPhone fills the form from a returning customer's history record.
func lookupPhone(form IntakeForm, index map[string]models.HistoryRecord, rule PhoneRule) IntakeForm {
	typed := strings.TrimSpace(form.Cellphone)
	form.Cellphone = typed
	if record, ok := index[typed]; ok && typed != "" {
		form.Name = record.Name
		form.Barber = record.Barber
		form.Existing = true
		form.Resolved = true
		return form
	}
	form.Existing = false
	form.Resolved = len(typed) >= rule.Length()
	return form
}
