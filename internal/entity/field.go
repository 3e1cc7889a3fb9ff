package entity

import (
	"regexp"
	"strings"
)

// Field names one of the data points extracted from a statement.
type Field string

const (
	FieldCardVariant     Field = "card_variant"
	FieldCardLast4       Field = "card_last4"
	FieldBillingCycle    Field = "billing_cycle"
	FieldPaymentDueDate  Field = "payment_due_date"
	FieldTotalBalanceDue Field = "total_balance_due"
)

// Fields lists every target field in output order.
var Fields = []Field{
	FieldCardVariant,
	FieldCardLast4,
	FieldBillingCycle,
	FieldPaymentDueDate,
	FieldTotalBalanceDue,
}

var reKeySpace = regexp.MustCompile(`\s+`)

// Key returns the lower-snake-cased output key for the field.
func (f Field) Key() string {
	return reKeySpace.ReplaceAllString(strings.ToLower(strings.TrimSpace(string(f))), "_")
}
