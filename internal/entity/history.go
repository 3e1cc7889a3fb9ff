package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// HistoryRecord is a stored extraction result. The source document itself is never kept.
type HistoryRecord struct {
	ID        uuid.UUID       `json:"id"`
	FileName  string          `json:"file_name"`
	SHA256    string          `json:"sha256"`
	Bank      string          `json:"bank"`
	Result    json.RawMessage `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
}
