// Package devtools bridges a store to Redux DevTools style debugging
// clients.
//
// The bridge streams every transition to connected clients and applies
// time-travel requests (JUMP_TO_STATE, JUMP_TO_ACTION) by replacing the
// store's state tree without running reducers.
package devtools

import (
	"encoding/json"
)

// Outbound frame types.
const (
	FrameInit   = "INIT"
	FrameAction = "ACTION"
)

// Inbound message types understood by the bridge.
const (
	MsgDispatch     = "DISPATCH"
	MsgAction       = "ACTION"
	MsgJumpToState  = "JUMP_TO_STATE"
	MsgJumpToAction = "JUMP_TO_ACTION"
)

// Frame is one message sent to a client.
type Frame struct {
	Type    string          `json:"type"`
	Name    string          `json:"name,omitempty"`
	Session string          `json:"session,omitempty"`
	Seq     int64           `json:"seq,omitempty"`
	Action  *FrameAction    `json:"action,omitempty"`
	State   json.RawMessage `json:"state"`
	Trace   []string        `json:"trace,omitempty"`
}

// FrameAction is the action part of an ACTION frame.
type FrameAction struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Message is one message received from a client.
//
// For DISPATCH, Payload carries {"type": "JUMP_TO_STATE"} (or another
// instruction) and State the serialized state tree to restore. For ACTION,
// Payload is the JSON text of an action to dispatch.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	State   string          `json:"state,omitempty"`
}

// instruction decodes the payload of a DISPATCH message.
func (m Message) instruction() string {
	var p struct {
		Type string `json:"type"`
	}
	if len(m.Payload) == 0 || json.Unmarshal(m.Payload, &p) != nil {
		return ""
	}
	return p.Type
}
