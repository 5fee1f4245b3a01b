package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// ExpenseChangedMessage tells other UI instances that the expense data
// changed. It carries no record contents; receivers reload from the API.
type ExpenseChangedMessage struct {
	Op        string    `json:"op"`   // created, updated, deleted
	Kind      string    `json:"kind"` // expense, category
	ID        int64     `json:"id,omitempty"`
	Name      string    `json:"name,omitempty"`
	Source    string    `json:"source"` // instance id of the publisher
	Timestamp time.Time `json:"timestamp"`
}

// NewExpenseChangedMessage creates a message stamped with the current time.
func NewExpenseChangedMessage(op, kind string, id int64, name, source string) *ExpenseChangedMessage {
	return &ExpenseChangedMessage{
		Op:        op,
		Kind:      kind,
		ID:        id,
		Name:      name,
		Source:    source,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ExpenseChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseChangedMessageFromJSON decodes and sanity-checks a message.
func ExpenseChangedMessageFromJSON(data []byte) (*ExpenseChangedMessage, error) {
	var msg ExpenseChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Op == "" || msg.Kind == "" {
		return nil, fmt.Errorf("incomplete change message: op=%q kind=%q", msg.Op, msg.Kind)
	}
	return &msg, nil
}
