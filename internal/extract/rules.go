package extract

import (
	"regexp"
	"strings"

	"github.com/joseph-ayodele/statement-parser/internal/entity"
)

// ValueFunc turns a pattern's submatches into a candidate value. Returning
// false means the rule did not apply and the cascade moves on.
type ValueFunc func(match []string) (string, bool)

// Rule is one step of a field's cascade.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Score   float64
	Value   ValueFunc
}

var (
	// dd-Mon-yyyy style or numeric dd/mm/yy(yy). The separator class is the
	// ASCII range space..slash.
	reDateToken = regexp.MustCompile(`(\d{1,2}[ -/][A-Za-z]{3,}[ -/]\d{4}|\d{1,2}[ -/]\d{1,2}[ -/]\d{2,4})`)

	// reDateToken plus "5 January 2024" with arbitrary spacing.
	reDueDateToken = regexp.MustCompile(`(\d{1,2}[ -/][A-Za-z]{3,}[ -/]\d{4}|\d{1,2}[ -/]\d{1,2}[ -/]\d{2,4}|\d{1,2}\s+[A-Za-z]+\s+\d{4})`)

	// Payment due date label and the text after it.
	reDueDateLabel = regexp.MustCompile(`(?i)Payment\s*Due\s*Date\s*[:\-]?\s*([0-9A-Za-z\-/\s,]+)`)
)

// group returns the trimmed submatch i.
func group(i int) ValueFunc {
	return func(m []string) (string, bool) {
		if i >= len(m) {
			return "", false
		}
		return strings.TrimSpace(m[i]), true
	}
}

// Rules lists, per field, the extraction cascade from most to least specific.
var Rules = map[entity.Field][]Rule{
	entity.FieldCardVariant: {
		{
			Name:    "card_variant.labelled",
			Pattern: regexp.MustCompile(`(?i)Card\s*Variant\s*:\s*([A-Za-z0-9\s]+)`),
			Score:   0.95,
			Value:   group(1),
		},
		{
			Name:    "card_variant.keyword",
			Pattern: regexp.MustCompile(`(?i)\b(Platinum|Gold|Regalia|Magnus|Prime|Infinite|Classic|Elite)\b`),
			Score:   0.7,
			Value:   group(1),
		},
	},
	entity.FieldCardLast4: {
		{
			Name:    "card_last4.labelled",
			Pattern: regexp.MustCompile(`(?i)Card\s*Last\s*4\s*Digits\s*:\s*(\d{4})`),
			Score:   0.98,
			Value:   group(1),
		},
		{
			Name:    "card_last4.ending",
			Pattern: regexp.MustCompile(`(?i)(?:ending|ending number|ending with|last)\s*(?::|\s)*\s*(\d{4})`),
			Score:   0.9,
			Value:   group(1),
		},
		{
			// Prone to false positives such as years.
			Name:    "card_last4.bare",
			Pattern: regexp.MustCompile(`(\d{4})\b`),
			Score:   0.6,
			Value:   group(1),
		},
	},
	entity.FieldBillingCycle: {
		{
			Name:    "billing_cycle.labelled",
			Pattern: regexp.MustCompile(`(?i)Billing\s*Cycle\s*:\s*([0-9A-Za-z\-\s]+to\s+[0-9A-Za-z\-\s]+)`),
			Score:   0.95,
			Value:   group(1),
		},
		{
			Name:    "billing_cycle.period",
			Pattern: regexp.MustCompile(`(?i)(Statement\s*Period|Billing\s*Period)\s*[:\-]?\s*(.+)`),
			Score:   0.85,
			Value: func(m []string) (string, bool) {
				dates := reDateToken.FindAllString(m[2], -1)
				if len(dates) == 0 {
					return "", false
				}
				return strings.Join(dates, " to "), true
			},
		},
	},
	entity.FieldPaymentDueDate: {
		{
			Name:    "payment_due_date.labelled",
			Pattern: reDueDateLabel,
			Score:   0.95,
			Value: func(m []string) (string, bool) {
				d := reDueDateToken.FindString(m[1])
				if d == "" {
					return "", false
				}
				return strings.TrimSpace(d), true
			},
		},
		{
			Name:    "payment_due_date.tail",
			Pattern: reDueDateLabel,
			Score:   0.6,
			Value:   group(1),
		},
	},
	entity.FieldTotalBalanceDue: {
		{
			Name:    "total_balance_due.labelled",
			Pattern: regexp.MustCompile(`(?i)(?:Total\s*Balance\s*Due|New\s*Balance|Total\s*Due|Amount\s*Due|Outstanding\s*Balance)\s*[:\-]?\s*([\$₹]?\s*[\d,]+\.\d{2})`),
			Score:   0.98,
			Value:   group(1),
		},
		{
			Name:    "total_balance_due.currency",
			Pattern: regexp.MustCompile(`([\$₹]\s*[\d,]+\.\d{2})`),
			Score:   0.6,
			Value:   group(1),
		},
	},
}
