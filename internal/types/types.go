package types

import (
	"time"
)

type User struct {
	Id           string    `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Broadcast struct {
	Id          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Visibility  string    `json:"visibility"`
	OwnerId     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// Delivery states for a chat message. Advisory only, never driven by
// transport-level acknowledgments.
const (
	DeliveryStateSent      = "sent"
	DeliveryStateDelivered = "delivered"
	DeliveryStateRead      = "read"
)

type ChatMessage struct {
	Id            string     `json:"id"`
	RoomId        string     `json:"room_id"`
	AuthorId      string     `json:"author_id"`
	Body          string     `json:"body"`
	ReplyToId     string     `json:"reply_to_id,omitempty"`
	MentionIds    []string   `json:"mention_ids,omitempty"`
	Attachments   []string   `json:"attachments,omitempty"`
	DeliveryState string     `json:"delivery_state"`
	CreatedAt     time.Time  `json:"created_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

const (
	NotificationTypeBroadcast  = "broadcast"
	NotificationTypeInvitation = "invitation"
	NotificationTypeChat       = "chat"
	NotificationTypeGeneral    = "general"
)

type Notification struct {
	Id          string    `json:"id"`
	Type        string    `json:"type"`
	Message     string    `json:"message"`
	ReferenceId string    `json:"reference_id,omitempty"`
	IsRead      bool      `json:"is_read"`
	RecipientId string    `json:"recipient_id"`
	SenderId    string    `json:"sender_id"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}
