// Package postprocess converts chosen field values into typed forms.
package postprocess

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/statement-parser/internal/entity"
)

// dateFormats are tried in order; the first full match wins.
var dateFormats = []string{
	"2-1-2006",       // DD-MM-YYYY
	"2/1/2006",       // DD/MM/YYYY
	"2 Jan 2006",     // 05 Jan 2024
	"2 January 2006", // 05 January 2024
	"Jan 2, 2006",    // Jan 05, 2024
	"2 Jan, 2006",    // 05 Jan, 2024
}

var (
	reNumber        = regexp.MustCompile(`\d+(\.\d+)?`)
	reNumericDate   = regexp.MustCompile(`(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`)
	reRangeSplitter = regexp.MustCompile(`(?i)\bto\b`)
	currencyMarkers = strings.NewReplacer("₹", "", "Rs.", "", "INR", "", "$", "", ",", "")
)

// ParseAmount strips currency markers and thousands separators and parses the
// first decimal number in raw. The second result is false when there is none.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(currencyMarkers.Replace(raw))
	m := reNumber.FindString(s)
	if m == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(m)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// NormalizeDate returns raw as YYYY-MM-DD when it matches a known format.
// Otherwise it returns the first numeric dd/mm/yyyy token verbatim, and
// failing that raw itself. Empty input yields nil.
func NormalizeDate(raw string) *string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			out := t.Format(time.DateOnly)
			return &out
		}
	}
	if m := reNumericDate.FindString(s); m != "" {
		return &m
	}
	return &s
}

// SplitRange splits a "<start> to <end>" value on the first standalone "to".
func SplitRange(raw string) (start, end string, ok bool) {
	loc := reRangeSplitter.FindStringIndex(raw)
	if loc == nil {
		return "", "", false
	}
	return strings.TrimSpace(raw[:loc[0]]), strings.TrimSpace(raw[loc[1]:]), true
}

// Normalize fills in the typed form for the fields that carry one. Values are
// never modified.
func Normalize(fields map[entity.Field]entity.FieldResult) {
	if fr, ok := fields[entity.FieldTotalBalanceDue]; ok {
		n := &entity.Normalized{Kind: entity.NormAmount}
		if d, ok := ParseAmount(fr.Value); ok {
			n.Amount = &d
		}
		fr.Norm = n
		fields[entity.FieldTotalBalanceDue] = fr
	}
	if fr, ok := fields[entity.FieldPaymentDueDate]; ok {
		fr.Norm = &entity.Normalized{Kind: entity.NormDate, Date: NormalizeDate(fr.Value)}
		fields[entity.FieldPaymentDueDate] = fr
	}
	if fr, ok := fields[entity.FieldBillingCycle]; ok {
		if start, end, split := SplitRange(fr.Value); split {
			fr.Norm = &entity.Normalized{
				Kind:  entity.NormRange,
				Start: NormalizeDate(start),
				End:   NormalizeDate(end),
			}
			fields[entity.FieldBillingCycle] = fr
		}
	}
}
