package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConversationTurn is one completed question/answer exchange of a session.
type ConversationTurn struct {
	ID         uuid.UUID
	Sequence   int64
	InputText  string
	OutputText string
	Route      RouteKind
	Pipeline   Pipeline
	CreatedAt  time.Time
	Embedding  []float32
}

// MemoryText is the text a turn is embedded and recalled as.
func (t ConversationTurn) MemoryText() string {
	return fmt.Sprintf("input: %s\noutput: %s", t.InputText, t.OutputText)
}
