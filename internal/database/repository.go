package database

import "errors"

// ErrValidation is returned when a write is rejected before reaching the
// database because a required field is missing or empty.
var ErrValidation = errors.New("validation error")

type BroadchatRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (Account, error)
	GetAccountById(accountId string) (Account, error)
	GetAccountByEmail(email string) (Account, error)
	ListAccounts(params ListAccountsParams) ([]Account, error)
	CreateBroadcast(params CreateBroadcastParams) (Broadcast, error)
	GetBroadcast(id string) (Broadcast, error)
	ListBroadcasts() ([]Broadcast, error)
	UpdateBroadcast(params UpdateBroadcastParams) (Broadcast, error)
	DeleteBroadcast(id string) error
	CreateMessage(params CreateMessageParams) (Message, error)
	GetRoomMessages(roomId string) ([]Message, error)
	GetLastMessages(roomId string, n int) ([]Message, error)
	GetMessageById(id string) (Message, error)
	SoftDeleteMessage(id string) (Message, error)
	CreateNotification(params CreateNotificationParams) (Notification, error)
	ListNotifications(recipientId string) ([]Notification, error)
	MarkNotificationRead(id string) (Notification, error)
}
