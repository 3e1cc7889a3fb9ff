package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/statement-parser/internal/entity"
	"github.com/joseph-ayodele/statement-parser/internal/postprocess"
)

// DefaultCurrency is used to display amounts when none is configured.
const DefaultCurrency = "INR"

// Row is one exported statement.
type Row struct {
	ID              string `csv:"id"`
	FileName        string `csv:"file_name"`
	Bank            string `csv:"bank"`
	ProcessedAt     string `csv:"processed_at"`
	CardVariant     string `csv:"card_variant"`
	CardLast4       string `csv:"card_last4"`
	BillingCycle    string `csv:"billing_cycle"`
	CycleStart      string `csv:"cycle_start"`
	CycleEnd        string `csv:"cycle_end"`
	PaymentDueDate  string `csv:"payment_due_date"`
	DueDate         string `csv:"due_date"`
	TotalBalanceDue string `csv:"total_balance_due"`
	TotalAmount     string `csv:"total_amount"`
	TotalDisplay    string `csv:"total_display"`
	MinConfidence   string `csv:"min_confidence"`
}

// RowFromResult flattens one result. Normalized forms are recomputed from the
// values so rows built from stored JSON match rows built from live results.
func RowFromResult(id, fileName string, at time.Time, res entity.StatementResult, currency string) Row {
	if currency == "" {
		currency = DefaultCurrency
	}
	value := func(f entity.Field) string { return res.Fields[f].Value }
	row := Row{
		ID:              id,
		FileName:        fileName,
		Bank:            res.Bank,
		CardVariant:     value(entity.FieldCardVariant),
		CardLast4:       value(entity.FieldCardLast4),
		BillingCycle:    value(entity.FieldBillingCycle),
		PaymentDueDate:  value(entity.FieldPaymentDueDate),
		TotalBalanceDue: value(entity.FieldTotalBalanceDue),
	}
	if !at.IsZero() {
		row.ProcessedAt = at.UTC().Format(time.RFC3339)
	}
	if start, end, ok := postprocess.SplitRange(row.BillingCycle); ok {
		row.CycleStart = deref(postprocess.NormalizeDate(start))
		row.CycleEnd = deref(postprocess.NormalizeDate(end))
	}
	row.DueDate = deref(postprocess.NormalizeDate(row.PaymentDueDate))
	if amt, ok := postprocess.ParseAmount(row.TotalBalanceDue); ok {
		row.TotalAmount = amt.StringFixed(2)
		row.TotalDisplay = display(amt, currency)
	}
	if len(res.Fields) > 0 {
		lowest := 1.0
		for _, fr := range res.Fields {
			lowest = min(lowest, fr.Confidence)
		}
		row.MinConfidence = fmt.Sprintf("%.3f", lowest)
	}
	return row
}

// RowFromRecord decodes a stored result into a row.
func RowFromRecord(rec entity.HistoryRecord, currency string) (Row, error) {
	var res entity.StatementResult
	if err := json.Unmarshal(rec.Result, &res); err != nil {
		return Row{}, fmt.Errorf("decode history %s: %w", rec.ID, err)
	}
	if res.Bank == "" {
		res.Bank = rec.Bank
	}
	return RowFromResult(rec.ID.String(), rec.FileName, rec.CreatedAt, res, currency), nil
}

// display formats amt in minor units of currency, e.g. ₹12,345.67.
func display(amt decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		cur = money.GetCurrency(DefaultCurrency)
	}
	minor := amt.Mul(decimal.New(1, int32(cur.Fraction))).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
