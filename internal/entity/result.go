package entity

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// NormKind says which normalized form a field carries.
type NormKind string

const (
	NormAmount NormKind = "amount"
	NormDate   NormKind = "date"
	NormRange  NormKind = "range"
)

// Normalized is the typed form of a field value. Nil members serialize as null.
type Normalized struct {
	Kind   NormKind
	Amount *decimal.Decimal
	Date   *string
	Start  *string
	End    *string
}

// FieldResult is the chosen value for one field.
type FieldResult struct {
	Value      string      `json:"value"`
	Confidence float64     `json:"confidence"`
	PageIndex  *int        `json:"page"`
	Snippet    string      `json:"snippet"`
	Norm       *Normalized `json:"-"`
}

// MarshalJSON adds value_norm, or start_norm and end_norm, depending on the normalized kind.
func (r FieldResult) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"value":      r.Value,
		"confidence": r.Confidence,
		"page":       r.PageIndex,
		"snippet":    r.Snippet,
	}
	if r.Norm != nil {
		switch r.Norm.Kind {
		case NormAmount:
			if r.Norm.Amount != nil {
				out["value_norm"] = json.RawMessage(r.Norm.Amount.String())
			} else {
				out["value_norm"] = nil
			}
		case NormDate:
			out["value_norm"] = r.Norm.Date
		case NormRange:
			out["start_norm"] = r.Norm.Start
			out["end_norm"] = r.Norm.End
		}
	}
	return json.Marshal(out)
}

// StatementResult is the structured output for one document.
type StatementResult struct {
	Bank    string                `json:"bank"`
	BankKey string                `json:"-"`
	Fields  map[Field]FieldResult `json:"fields"`
}
