package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType is the "type" tag of every frame exchanged with a client.
type MessageType string

// Server -> client
const (
	MessageTypeAuthRequired          MessageType = "auth_required"
	MessageTypeAuthSuccess           MessageType = "auth_success"
	MessageTypeAuthError             MessageType = "auth_error"
	MessageTypeAuthExpired           MessageType = "auth_expired"
	MessageTypeSubscriptionConfirmed MessageType = "subscription_confirmed"
	MessageTypeError                 MessageType = "error"
	MessageTypeEvent                 MessageType = "event"
)

// Client -> server
const (
	MessageTypeAuthenticate MessageType = "authenticate"
	MessageTypeSubscribe    MessageType = "subscribe"
)

// Both directions
const (
	MessageTypePing MessageType = "ping"
	MessageTypePong MessageType = "pong"
)

// Close codes sent to clients. Credential problems and dead transports use
// distinct codes so a client can tell them apart.
const (
	CloseNormal           = 1000
	CloseGoingAway        = 1001
	CloseSlowConsumer     = 1013
	CloseLivenessTimeout  = 4000
	CloseCredentialFailed = 4001
)

func (mt MessageType) String() string {
	return string(mt)
}

// IsClientType reports whether mt may be sent by a client.
func (mt MessageType) IsClientType() bool {
	switch mt {
	case MessageTypeAuthenticate, MessageTypeSubscribe, MessageTypePing, MessageTypePong:
		return true
	default:
		return false
	}
}

var (
	errMalformedMessage = errors.New("invalid message format")
	errMissingType      = errors.New("message type is required")
)

// ClientMessage is one decoded client frame. Exactly one of the payload
// fields is meaningful, selected by Type.
type ClientMessage struct {
	Type    MessageType
	Token   string
	Streams []string
}

// decodeClientMessage parses a client frame and checks the fields required by
// its type. Unknown types decode successfully; dispatch rejects them.
func decodeClientMessage(data []byte) (*ClientMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, errMalformedMessage
	}

	rawType, ok := fields["type"]
	if !ok {
		return nil, errMissingType
	}
	var msgType string
	if err := json.Unmarshal(rawType, &msgType); err != nil || msgType == "" {
		return nil, errMissingType
	}

	msg := &ClientMessage{Type: MessageType(msgType)}
	switch msg.Type {
	case MessageTypeAuthenticate:
		raw, ok := fields["token"]
		if !ok {
			return nil, fmt.Errorf("%w: token is required", errMalformedMessage)
		}
		if err := json.Unmarshal(raw, &msg.Token); err != nil {
			return nil, fmt.Errorf("%w: token must be a string", errMalformedMessage)
		}
	case MessageTypeSubscribe:
		raw, ok := fields["streams"]
		if !ok {
			return nil, fmt.Errorf("%w: streams is required", errMalformedMessage)
		}
		var streams []string
		if err := json.Unmarshal(raw, &streams); err != nil {
			return nil, fmt.Errorf("%w: streams must be an array of strings", errMalformedMessage)
		}
		msg.Streams = streams
	}
	return msg, nil
}

/** -------------------- Server messages -------------------- */

type AuthRequiredMessage struct {
	Type         MessageType `json:"type"`
	ConnectionID string      `json:"connectionId"`
	Timestamp    time.Time   `json:"timestamp"`
}

type AuthSuccessMessage struct {
	Type             MessageType `json:"type"`
	ConnectionID     string      `json:"connectionId"`
	UserID           string      `json:"userId"`
	AvailableStreams []string    `json:"availableStreams"`
	ExpiresAt        time.Time   `json:"expiresAt"`
}

// NoticeMessage carries a human readable message: auth_error, auth_expired and error.
type NoticeMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

type SubscriptionConfirmedMessage struct {
	Type    MessageType `json:"type"`
	Streams []string    `json:"streams"`
	Denied  []string    `json:"denied"`
}

type PingMessage struct {
	Type         MessageType `json:"type"`
	Timestamp    time.Time   `json:"timestamp"`
	RequiresAuth bool        `json:"requiresAuth"`
}

type PongMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// EventMessage is the wire form of a broadcast domain event.
type EventMessage struct {
	Type      MessageType    `json:"type"`
	Kind      string         `json:"kind"`
	Topic     string         `json:"topic"`
	Payload   map[string]any `json:"payload"`
	EventID   string         `json:"eventId"`
	Timestamp time.Time      `json:"timestamp"`
}

func NewAuthRequiredMessage(connectionID string, now time.Time) *AuthRequiredMessage {
	return &AuthRequiredMessage{Type: MessageTypeAuthRequired, ConnectionID: connectionID, Timestamp: now.UTC()}
}

func NewAuthSuccessMessage(connectionID, userID string, streams []string, expiresAt time.Time) *AuthSuccessMessage {
	return &AuthSuccessMessage{
		Type:             MessageTypeAuthSuccess,
		ConnectionID:     connectionID,
		UserID:           userID,
		AvailableStreams: nonNil(streams),
		ExpiresAt:        expiresAt.UTC(),
	}
}

func NewAuthErrorMessage(message string) *NoticeMessage {
	return &NoticeMessage{Type: MessageTypeAuthError, Message: message}
}

func NewAuthExpiredMessage(message string) *NoticeMessage {
	return &NoticeMessage{Type: MessageTypeAuthExpired, Message: message}
}

func NewErrorMessage(message string) *NoticeMessage {
	return &NoticeMessage{Type: MessageTypeError, Message: message}
}

func NewSubscriptionConfirmedMessage(allowed, denied []string) *SubscriptionConfirmedMessage {
	return &SubscriptionConfirmedMessage{
		Type:    MessageTypeSubscriptionConfirmed,
		Streams: nonNil(allowed),
		Denied:  nonNil(denied),
	}
}

func NewPingMessage(now time.Time, requiresAuth bool) *PingMessage {
	return &PingMessage{Type: MessageTypePing, Timestamp: now.UTC(), RequiresAuth: requiresAuth}
}

func NewPongMessage(now time.Time) *PongMessage {
	return &PongMessage{Type: MessageTypePong, Timestamp: now.UTC()}
}

func newEventMessage(ev Event) *EventMessage {
	return &EventMessage{
		Type:      MessageTypeEvent,
		Kind:      ev.Kind,
		Topic:     ev.Topic,
		Payload:   ev.Payload,
		EventID:   ev.EventID,
		Timestamp: ev.Timestamp.UTC(),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
