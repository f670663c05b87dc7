package amqp

import (
	"encoding/json"
	"time"
)

// Routing keys for the domain events published on the exchange.
const (
	RoutingExpensesCreated = "expenses.created"
	RoutingExpenseDeleted  = "expense.deleted"
)

// ExpensesCreatedMessage announces a committed batch. It carries only the
// ids; consumers fetch the full expenses from the store.
type ExpensesCreatedMessage struct {
	IDs       []string  `json:"ids"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpensesCreatedMessage(ids []string) *ExpensesCreatedMessage {
	return &ExpensesCreatedMessage{
		IDs:       ids,
		Timestamp: time.Now(),
	}
}

func (m *ExpensesCreatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExpensesCreatedMessageFromJSON(data []byte) (*ExpensesCreatedMessage, error) {
	var msg ExpensesCreatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ExpenseDeletedMessage announces that a single expense was removed.
type ExpenseDeletedMessage struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseDeletedMessage(id string) *ExpenseDeletedMessage {
	return &ExpenseDeletedMessage{
		ID:        id,
		Timestamp: time.Now(),
	}
}

func (m *ExpenseDeletedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExpenseDeletedMessageFromJSON(data []byte) (*ExpenseDeletedMessage, error) {
	var msg ExpenseDeletedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
