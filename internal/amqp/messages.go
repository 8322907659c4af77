package amqp

import (
	"encoding/json"
	"time"

	"donations/internal/broadcast"
)

// ChangeMessage is the wire form of a broadcast.Message.
type ChangeMessage struct {
	Scope     broadcast.Scope `json:"scope"`
	Marker    int64           `json:"marker"`
	Origin    string          `json:"origin"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewChangeMessage(m broadcast.Message) *ChangeMessage {
	return &ChangeMessage{
		Scope:     m.Scope,
		Marker:    m.Marker,
		Origin:    m.Origin,
		Timestamp: time.Now(),
	}
}

func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func (m *ChangeMessage) Message() broadcast.Message {
	return broadcast.Message{Scope: m.Scope, Marker: m.Marker, Origin: m.Origin}
}

func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
