package database

import (
	"github.com/stretchr/testify/mock"
)

type MockBroadchatRepository struct {
	mock.Mock
}

func (m *MockBroadchatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockBroadchatRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	args := m.Called(params)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockBroadchatRepository) GetAccountById(accountId string) (Account, error) {
	args := m.Called(accountId)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockBroadchatRepository) GetAccountByEmail(email string) (Account, error) {
	args := m.Called(email)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockBroadchatRepository) ListAccounts(params ListAccountsParams) ([]Account, error) {
	args := m.Called(params)
	return args.Get(0).([]Account), args.Error(1)
}
func (m *MockBroadchatRepository) CreateBroadcast(params CreateBroadcastParams) (Broadcast, error) {
	args := m.Called(params)
	return args.Get(0).(Broadcast), args.Error(1)
}
func (m *MockBroadchatRepository) GetBroadcast(id string) (Broadcast, error) {
	args := m.Called(id)
	return args.Get(0).(Broadcast), args.Error(1)
}
func (m *MockBroadchatRepository) ListBroadcasts() ([]Broadcast, error) {
	args := m.Called()
	return args.Get(0).([]Broadcast), args.Error(1)
}
func (m *MockBroadchatRepository) UpdateBroadcast(params UpdateBroadcastParams) (Broadcast, error) {
	args := m.Called(params)
	return args.Get(0).(Broadcast), args.Error(1)
}
func (m *MockBroadchatRepository) DeleteBroadcast(id string) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockBroadchatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockBroadchatRepository) GetRoomMessages(roomId string) ([]Message, error) {
	args := m.Called(roomId)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockBroadchatRepository) GetLastMessages(roomId string, n int) ([]Message, error) {
	args := m.Called(roomId, n)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockBroadchatRepository) GetMessageById(id string) (Message, error) {
	args := m.Called(id)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockBroadchatRepository) SoftDeleteMessage(id string) (Message, error) {
	args := m.Called(id)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockBroadchatRepository) CreateNotification(params CreateNotificationParams) (Notification, error) {
	args := m.Called(params)
	return args.Get(0).(Notification), args.Error(1)
}
func (m *MockBroadchatRepository) ListNotifications(recipientId string) ([]Notification, error) {
	args := m.Called(recipientId)
	return args.Get(0).([]Notification), args.Error(1)
}
func (m *MockBroadchatRepository) MarkNotificationRead(id string) (Notification, error) {
	args := m.Called(id)
	return args.Get(0).(Notification), args.Error(1)
}
