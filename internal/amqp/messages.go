package amqp

import (
	"encoding/json"
	"time"
)

// MonthRecomputeMessage asks the worker to re-run the alert rules for
// one YYYY-MM month. The evaluation is idempotent, so redelivery and
// duplicate events are harmless.
type MonthRecomputeMessage struct {
	Month     string    `json:"month"`
	Timestamp time.Time `json:"timestamp"`
}

func NewMonthRecomputeMessage(month string) *MonthRecomputeMessage {
	return &MonthRecomputeMessage{
		Month:     month,
		Timestamp: time.Now(),
	}
}

func (m *MonthRecomputeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func MonthRecomputeMessageFromJSON(data []byte) (*MonthRecomputeMessage, error) {
	var msg MonthRecomputeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
