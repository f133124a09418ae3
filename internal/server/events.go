package server

import (
	"encoding/json"
	"fmt"
	"time"

	"broadchat/internal/types"
)

// Client -> server event names.
const (
	EventJoinRoom    = "joinRoom"
	EventLeaveRoom   = "leaveRoom"
	EventSendMessage = "sendMessage"
)

// Server -> client event names.
const (
	EventChatHistory   = "chatHistory"
	EventNewMessage    = "newMessage"
	EventMessageAck    = "messageAck"
	EventUserJoined    = "userJoined"
	EventUserLeft      = "userLeft"
	EventNotification  = "notification"
	EventThrottleError = "throttle_error"
	EventError         = "error"
)

type ClientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type ServerEvent struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

type JoinRoomPayload struct {
	RoomId string `json:"roomId"`
}

type LeaveRoomPayload struct {
	RoomId string `json:"roomId"`
}

type SendMessagePayload struct {
	Message     string   `json:"message"`
	CreatorId   string   `json:"creatorId"`
	RoomId      string   `json:"roomId"`
	ReplyId     string   `json:"replyId,omitempty"`
	MentionIds  []string `json:"mentionIds,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

type PresencePayload struct {
	UserId string `json:"userId"`
}

type ThrottleErrorPayload struct {
	Message      string `json:"message"`
	Event        string `json:"event"`
	TotalHits    int    `json:"totalHits"`
	TimeToExpire int    `json:"timeToExpire"`
}

type ErrorPayload struct {
	Event string `json:"event,omitempty"`
	Error string `json:"error"`
}

// decodePayload unmarshals an event payload into v. Payloads may arrive
// double-encoded as a JSON string; those are unwrapped first. Anything
// undecodable fails with ErrMalformedPayload.
func decodePayload(raw json.RawMessage, v any) error {
	data := []byte(raw)
	if len(data) == 0 {
		return ErrMalformedPayload
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %s", ErrMalformedPayload, err)
		}
		data = []byte(s)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedPayload, err)
	}

	return nil
}

func ChatHistoryEvent(messages []types.ChatMessage) *ServerEvent {
	return &ServerEvent{
		Event:     EventChatHistory,
		Timestamp: Now(),
		Data:      messages,
	}
}

func NewMessageEvent(msg types.ChatMessage) *ServerEvent {
	return &ServerEvent{
		Event:     EventNewMessage,
		Timestamp: Now(),
		Data:      msg,
	}
}

func MessageAckEvent(msg types.ChatMessage) *ServerEvent {
	return &ServerEvent{
		Event:     EventMessageAck,
		Timestamp: Now(),
		Data:      msg,
	}
}

func PresenceEvent(event, userId string) *ServerEvent {
	return &ServerEvent{
		Event:     event,
		Timestamp: Now(),
		Data:      PresencePayload{UserId: userId},
	}
}

func NotificationEvent(data any) *ServerEvent {
	return &ServerEvent{
		Event:     EventNotification,
		Timestamp: Now(),
		Data:      data,
	}
}

func ThrottleErrorEvent(event string, adm Admission) *ServerEvent {
	return &ServerEvent{
		Event:     EventThrottleError,
		Timestamp: Now(),
		Data: ThrottleErrorPayload{
			Message:      fmt.Sprintf("too many requests for event %q, wait %d seconds", event, adm.TimeToExpire),
			Event:        event,
			TotalHits:    adm.TotalHits,
			TimeToExpire: adm.TimeToExpire,
		},
	}
}

func ErrorEvent(event, errMsg string) *ServerEvent {
	return &ServerEvent{
		Event:     EventError,
		Timestamp: Now(),
		Data:      ErrorPayload{Event: event, Error: errMsg},
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
