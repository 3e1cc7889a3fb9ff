package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/statement-parser/internal/common"
	"github.com/joseph-ayodele/statement-parser/internal/entity"
	"github.com/joseph-ayodele/statement-parser/internal/pipeline"
)

func TestValidateResponses(t *testing.T) {
	page := 0
	due := "2024-03-18"
	res := entity.StatementResult{
		Bank: "HDFC Bank",
		Fields: map[entity.Field]entity.FieldResult{
			entity.FieldCardLast4:      {Value: "4321", Confidence: 0.9, PageIndex: &page, Snippet: "Card Last 4 Digits: 4321"},
			entity.FieldPaymentDueDate: {Value: "18/03/2024", Confidence: 0.7, PageIndex: &page, Snippet: "Payment Due Date: 18/03/2024", Norm: &entity.Normalized{Kind: entity.NormDate, Date: &due}},
			entity.FieldBillingCycle:   {Value: "", Confidence: 0, Snippet: ""},
		},
	}

	t.Run("success", func(t *testing.T) {
		require.NoError(t, Validate(pipeline.Success(res)))
	})

	t.Run("failure", func(t *testing.T) {
		require.NoError(t, Validate(pipeline.Failure(assert.AnError)))
	})
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"unknown status", `{"status":"maybe"}`},
		{"success without data", `{"status":"success"}`},
		{"error without message", `{"status":"error"}`},
		{"confidence above one", `{"status":"success","data":{"bank":"X","fields":{"card_last4":{"value":"1","confidence":1.5,"page":0,"snippet":""}}}}`},
		{"null value", `{"status":"success","data":{"bank":"X","fields":{"card_last4":{"value":null,"confidence":0.5,"page":null,"snippet":""}}}}`},
		{"field key not snake case", `{"status":"success","data":{"bank":"X","fields":{"Card Last4":{"value":"1","confidence":0.5,"page":null,"snippet":""}}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJSON([]byte(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrInvalidInput)
		})
	}
}

func TestSchemaEmbedded(t *testing.T) {
	assert.Contains(t, string(Schema()), `"statement parse response"`)
}
