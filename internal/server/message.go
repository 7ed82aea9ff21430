// Package server defines the message envelope exchanged between the relay and
// its clients, along with parsing and validation helpers.
package server

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Action identifies what a message envelope asks the relay to do.
type Action string

// The closed set of envelope actions. ActionLogin is emitted by the server to
// acknowledge a new session; clients sending it are ignored.
const (
	ActionLogin     Action = "login"
	ActionMessage   Action = "message"
	ActionEnterRoom Action = "enter_room"
	ActionExitRoom  Action = "exit_room"
	ActionListRooms Action = "list_rooms"
)

// Message is the JSON envelope for every non-keepalive frame. Payload shape
// depends on the action: a session id for login/enter_room/exit_room notices,
// a comma-joined room listing for list_rooms, and arbitrary application data
// for message.
type Message struct {
	Action  Action `json:"action" validate:"required,oneof=login message enter_room exit_room list_rooms"`
	RoomID  string `json:"room_id,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseMessage decodes and validates one inbound frame. A non-nil error means
// the frame must be discarded whole; an envelope is never partially processed.
func ParseMessage(frame []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		return Message{}, fmt.Errorf("decode envelope: %w", err)
	}
	if err := validate.Struct(msg); err != nil {
		return Message{}, fmt.Errorf("validate envelope: %w", err)
	}
	return msg, nil
}
