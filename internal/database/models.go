package database

import "time"

type Account struct {
	Id           string
	Username     string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Broadcast struct {
	Id          string
	Title       string
	Description string
	Visibility  string
	OwnerId     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Message struct {
	Id            string
	RoomId        string
	AuthorId      string
	Body          string
	ReplyToId     string
	MentionIds    []string
	Attachments   []string
	DeliveryState string
	CreatedAt     time.Time
	DeletedAt     *time.Time
}

type Notification struct {
	Id          string
	Type        string
	Message     string
	ReferenceId string
	IsRead      bool
	RecipientId string
	SenderId    string
	CreatedAt   time.Time
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type ListAccountsParams struct {
	Page   int
	Limit  int
	Search string
}

type CreateBroadcastParams struct {
	Id          string
	Title       string
	Description string
	Visibility  string
	OwnerId     string
}

type UpdateBroadcastParams struct {
	Id          string
	Title       string
	Description string
	Visibility  string
}

type CreateMessageParams struct {
	RoomId      string
	AuthorId    string
	Body        string
	ReplyToId   string
	MentionIds  []string
	Attachments []string
}

type CreateNotificationParams struct {
	Type        string
	Message     string
	ReferenceId string
	RecipientId string
	SenderId    string
}
