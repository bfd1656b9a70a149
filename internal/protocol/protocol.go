package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mskumargvd/arushi-cloud/pkg/models"
)

const (
	MaxMessageSize = 4 * 1024 * 1024 // 4MB
)

// Event names
const (
	EventRegisterAgent  = "register_agent"
	EventHeartbeat      = "heartbeat"
	EventCommandResult  = "command_result"
	EventThreatAlert    = "threat_alert"
	EventExecuteCommand = "execute_command"
)

var (
	ErrInvalidMessage  = errors.New("invalid message format")
	ErrMessageTooLarge = errors.New("message exceeds maximum size")
	ErrUnknownEvent    = errors.New("unknown event")
)

// Message is one named event on the transport
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RegisterPayload announces the agent after connecting
type RegisterPayload struct {
	ID       string          `json:"id"`
	Platform models.Platform `json:"platform"`
	Hostname string          `json:"hostname"`
}

// ResultBody holds either the output or the error of a command
type ResultBody struct {
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ResultPayload carries a command result back to the requester
type ResultPayload struct {
	CorrelationID string     `json:"correlation_id"`
	Result        ResultBody `json:"result"`
}

// NewMessage creates a new message with the given event name and payload
func NewMessage(event string, payload any) (*Message, error) {
	if event == "" {
		return nil, ErrInvalidMessage
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	if len(data) > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}

	return &Message{Event: event, Data: data}, nil
}

// Encode serializes a message to bytes
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage deserializes bytes to a message
func DecodeMessage(data []byte) (*Message, error) {
	if len(data) > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}

	msg := &Message{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.Event == "" {
		return nil, ErrInvalidMessage
	}

	return msg, nil
}

// DecodePayload deserializes the payload to the given type
func (m *Message) DecodePayload(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidMessage)
	}
	return json.Unmarshal(m.Data, v)
}

// NewRegister creates a register_agent message
func NewRegister(identity models.AgentIdentity) (*Message, error) {
	return NewMessage(EventRegisterAgent, RegisterPayload{
		ID:       identity.ID,
		Platform: identity.Platform,
		Hostname: identity.Hostname,
	})
}

// NewHeartbeat creates a heartbeat message
func NewHeartbeat(sample models.StatSample) (*Message, error) {
	return NewMessage(EventHeartbeat, sample)
}

// NewResult creates a command_result message
func NewResult(result models.CommandResult) (*Message, error) {
	return NewMessage(EventCommandResult, ResultPayload{
		CorrelationID: result.CorrelationID,
		Result: ResultBody{
			Output: result.Output,
			Error:  result.Error,
		},
	})
}

// NewThreatAlert creates a threat_alert message
func NewThreatAlert(event models.ThreatEvent) (*Message, error) {
	return NewMessage(EventThreatAlert, event)
}

// DecodeCommand extracts a CommandRequest from an execute_command message
func DecodeCommand(m *Message) (models.CommandRequest, error) {
	var req models.CommandRequest
	if m.Event != EventExecuteCommand {
		return req, fmt.Errorf("%w: %s", ErrUnknownEvent, m.Event)
	}
	if err := m.DecodePayload(&req); err != nil {
		return req, fmt.Errorf("failed to decode command: %w", err)
	}
	return req, nil
}
