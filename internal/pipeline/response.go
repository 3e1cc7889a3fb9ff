package pipeline

import (
	"errors"
	"math"

	"github.com/joseph-ayodele/statement-parser/internal/common"
	"github.com/joseph-ayodele/statement-parser/internal/entity"
	"github.com/joseph-ayodele/statement-parser/internal/textnorm"
)

// Response statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Response is the envelope returned to callers of the HTTP and gRPC services.
type Response struct {
	Status  string                  `json:"status"`
	Data    *entity.StatementResult `json:"data,omitempty"`
	Message string                  `json:"message,omitempty"`
}

// Confidence converts a score to the persisted form: scores above 1 are taken
// as percentages, the result is rounded to 3 decimals and clamped to [0,1].
// NaN and infinities become 0.
func Confidence(score float64) float64 {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0
	}
	if score > 1 {
		score /= 100
	}
	score = math.Round(score*1000) / 1000
	return math.Min(1, math.Max(0, score))
}

// Success wraps res for display: values and snippets are cleaned for
// presentation and empty values fall back to the snippet.
func Success(res entity.StatementResult) Response {
	out := entity.StatementResult{
		Bank:    res.Bank,
		BankKey: res.BankKey,
		Fields:  make(map[entity.Field]entity.FieldResult, len(res.Fields)),
	}
	if out.Bank == "" {
		out.Bank = "Unknown"
	}
	for f, fr := range res.Fields {
		fr.Value = textnorm.CleanDisplay(fr.Value)
		fr.Snippet = textnorm.CleanDisplay(fr.Snippet)
		if fr.Value == "" {
			fr.Value = fr.Snippet
		}
		fr.Confidence = Confidence(fr.Confidence)
		out.Fields[entity.Field(f.Key())] = fr
	}
	return Response{Status: StatusSuccess, Data: &out}
}

// Failure turns err into an error envelope. Internal details stay out of the
// message unless the error carries an AppError.
func Failure(err error) Response {
	msg := "document processing failed"
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	} else if err != nil {
		msg = err.Error()
	}
	return Response{Status: StatusError, Message: msg}
}
