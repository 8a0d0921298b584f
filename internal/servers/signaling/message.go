package signaling

import (
	"encoding/json"
)

// message is the envelope of every signaling exchange.
// Requests carry a client-chosen correlation ID that is echoed in the
// reply; pushed events carry no ID.
type message struct {
	ID      uint64          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

func okReply(id uint64, data interface{}) (*message, error) {
	var raw json.RawMessage
	if data != nil {
		var err error
		raw, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}

	return &message{
		ID:   id,
		Type: "response",
		Data: raw,
	}, nil
}
