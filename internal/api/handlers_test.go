package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"broadchat/internal/config"
	"broadchat/internal/database"
	"broadchat/internal/server"
	"broadchat/internal/stats"
	"broadchat/internal/testutil"
	"broadchat/internal/types"
)

func newTestApp(t *testing.T, db database.BroadchatRepository) *BroadchatApp {
	t.Helper()

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Times(5)
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	logger := testutil.TestLogger(t)
	gw := server.NewGateway(logger, db, su)

	app := NewBroadchatApp(http.NewServeMux(), logger, gw, db, &config.Config{
		ServerAddr: "localhost:0",
		SigningKey: []byte("test-signing-key"),
	})
	t.Cleanup(app.ipLimiter.Stop)

	return app
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()

	buf := &bytes.Buffer{}
	assert.NoError(t, json.NewEncoder(buf).Encode(v))
	return buf
}

func authedRequest(method, target string, body *bytes.Buffer, userId string) *http.Request {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	return req.WithContext(WithUserId(req.Context(), userId))
}

func TestHealthCheck(t *testing.T) {
	tcases := []struct {
		name    string
		mockErr error
		code    int
	}{
		{name: "healthy", mockErr: nil, code: http.StatusOK},
		{name: "db unreachable", mockErr: errors.New("db error"), code: http.StatusInternalServerError},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockBroadchatRepository{}
			db.On("Ping").Return(tc.mockErr).Once()
			defer db.AssertExpectations(t)

			app := newTestApp(t, db)

			rr := httptest.NewRecorder()
			app.healthCheck(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tc.code, rr.Code)
			if tc.mockErr == nil {
				assert.Equal(t, "OK", rr.Body.String())
			}
		})
	}
}

func TestCreateAccountHandler(t *testing.T) {
	expected := database.Account{
		Id:           "u1",
		Username:     "newuser",
		EmailAddress: "newuser@example.com",
		PasswordHash: "hashedpassword",
		CreatedAt:    time.Now().UTC(),
	}

	tcases := []struct {
		name       string
		body       any
		mockCreate bool
		code       int
	}{
		{
			name:       "creates a new account",
			body:       RegisterRequest{Username: "newuser", Email: "newuser@example.com", Password: "password"},
			mockCreate: true,
			code:       http.StatusCreated,
		},
		{
			name: "fails with invalid json body",
			body: "invalid json",
			code: http.StatusBadRequest,
		},
		{
			name: "fails with missing username",
			body: RegisterRequest{Email: "newuser@example.com", Password: "password"},
			code: http.StatusBadRequest,
		},
		{
			name: "fails with missing password",
			body: RegisterRequest{Username: "newuser", Email: "newuser@example.com"},
			code: http.StatusBadRequest,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockBroadchatRepository{}
			if tc.mockCreate {
				db.On("CreateAccount", mock.MatchedBy(func(p database.CreateAccountParams) bool {
					return p.Username == expected.Username &&
						p.EmailAddress == expected.EmailAddress &&
						verifyPassword(p.PasswordHash, "password")
				})).Return(expected, nil).Once()
			}
			defer db.AssertExpectations(t)

			app := newTestApp(t, db)

			rr := httptest.NewRecorder()
			app.createAccount(rr, httptest.NewRequest(http.MethodPost, "/api/auth/register", jsonBody(t, tc.body)))

			assert.Equal(t, tc.code, rr.Code)
			if tc.code == http.StatusCreated {
				var u types.User
				assert.NoError(t, json.NewDecoder(rr.Body).Decode(&u))
				assert.Equal(t, expected.Id, u.Id)
				assert.Equal(t, expected.Username, u.Username)
			}
		})
	}
}

func TestLoginHandler(t *testing.T) {
	passwordHash, err := hashPassword("password")
	assert.NoError(t, err)

	account := database.Account{
		Id:           "u1",
		Username:     "testuser",
		EmailAddress: "test@example.com",
		PasswordHash: passwordHash,
	}

	t.Run("returns a session token", func(t *testing.T) {
		db := &database.MockBroadchatRepository{}
		db.On("GetAccountByEmail", account.EmailAddress).Return(account, nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		body := jsonBody(t, LoginRequest{Email: account.EmailAddress, Password: "password"})
		app.login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", body))

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp LoginResponse
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, account.Id, resp.User.Id)

		userId, err := app.extractUserIdFromToken(resp.Token)
		assert.NoError(t, err)
		assert.Equal(t, account.Id, userId)
	})

	t.Run("fails with unknown email", func(t *testing.T) {
		db := &database.MockBroadchatRepository{}
		db.On("GetAccountByEmail", "nobody@example.com").Return(database.Account{}, sql.ErrNoRows).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		body := jsonBody(t, LoginRequest{Email: "nobody@example.com", Password: "password"})
		app.login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", body))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("fails with wrong password", func(t *testing.T) {
		db := &database.MockBroadchatRepository{}
		db.On("GetAccountByEmail", account.EmailAddress).Return(account, nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		body := jsonBody(t, LoginRequest{Email: account.EmailAddress, Password: "wrongpassword"})
		app.login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", body))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestListUsersHandler(t *testing.T) {
	t.Run("passes paging params through", func(t *testing.T) {
		accounts := []database.Account{{Id: "u1", Username: "alice"}, {Id: "u2", Username: "bob"}}

		db := &database.MockBroadchatRepository{}
		db.On("ListAccounts", database.ListAccountsParams{Page: 2, Limit: 10, Search: "al"}).
			Return(accounts, nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		app.listUsers(rr, authedRequest(http.MethodGet, "/api/auth/users?page=2&limit=10&search=al", nil, "u1"))

		assert.Equal(t, http.StatusOK, rr.Code)

		var users []types.User
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&users))
		assert.Len(t, users, 2)
	})

	t.Run("fails with non-numeric page", func(t *testing.T) {
		app := newTestApp(t, &database.MockBroadchatRepository{})

		rr := httptest.NewRecorder()
		app.listUsers(rr, authedRequest(http.MethodGet, "/api/auth/users?page=abc", nil, "u1"))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestCreateBroadcastHandler(t *testing.T) {
	created := database.Broadcast{
		Id:         "brdcst1",
		Title:      "launch party",
		Visibility: "public",
		OwnerId:    "u1",
	}

	t.Run("creates a broadcast", func(t *testing.T) {
		db := &database.MockBroadchatRepository{}
		db.On("CreateBroadcast", database.CreateBroadcastParams{
			Id:         "brdcst1",
			Title:      "launch party",
			Visibility: "public",
			OwnerId:    "u1",
		}).Return(created, nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db)
		app.generateShortId = func() (string, error) { return "brdcst1", nil }

		rr := httptest.NewRecorder()
		body := jsonBody(t, BroadcastRequest{Title: "launch party"})
		app.createBroadcast(rr, authedRequest(http.MethodPost, "/api/broadcasts", body, "u1"))

		assert.Equal(t, http.StatusCreated, rr.Code)

		var b types.Broadcast
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&b))
		assert.Equal(t, "brdcst1", b.Id)
		assert.Equal(t, "public", b.Visibility)
	})

	t.Run("fails without title", func(t *testing.T) {
		app := newTestApp(t, &database.MockBroadchatRepository{})

		rr := httptest.NewRecorder()
		body := jsonBody(t, BroadcastRequest{Description: "no title"})
		app.createBroadcast(rr, authedRequest(http.MethodPost, "/api/broadcasts", body, "u1"))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("fails without session", func(t *testing.T) {
		app := newTestApp(t, &database.MockBroadchatRepository{})

		rr := httptest.NewRecorder()
		body := jsonBody(t, BroadcastRequest{Title: "launch party"})
		app.createBroadcast(rr, httptest.NewRequest(http.MethodPost, "/api/broadcasts", body))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestGetBroadcastHandler(t *testing.T) {
	db := &database.MockBroadchatRepository{}
	db.On("GetBroadcast", "missing").Return(database.Broadcast{}, sql.ErrNoRows).Once()
	defer db.AssertExpectations(t)

	app := newTestApp(t, db)

	req := authedRequest(http.MethodGet, "/api/broadcasts/missing", nil, "u1")
	req.SetPathValue("id", "missing")

	rr := httptest.NewRecorder()
	app.getBroadcast(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUpdateBroadcastHandler(t *testing.T) {
	existing := database.Broadcast{Id: "brdcst1", Title: "old title", Visibility: "public", OwnerId: "u1"}

	t.Run("rejects non-owner", func(t *testing.T) {
		db := &database.MockBroadchatRepository{}
		db.On("GetBroadcast", "brdcst1").Return(existing, nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db)

		req := authedRequest(http.MethodPut, "/api/broadcasts/brdcst1", jsonBody(t, BroadcastRequest{Title: "hijacked"}), "u2")
		req.SetPathValue("id", "brdcst1")

		rr := httptest.NewRecorder()
		app.updateBroadcast(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("updates for owner", func(t *testing.T) {
		updated := existing
		updated.Title = "new title"

		db := &database.MockBroadchatRepository{}
		db.On("GetBroadcast", "brdcst1").Return(existing, nil).Once()
		db.On("UpdateBroadcast", database.UpdateBroadcastParams{
			Id:         "brdcst1",
			Title:      "new title",
			Visibility: "public",
		}).Return(updated, nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db)

		req := authedRequest(http.MethodPut, "/api/broadcasts/brdcst1", jsonBody(t, BroadcastRequest{Title: "new title"}), "u1")
		req.SetPathValue("id", "brdcst1")

		rr := httptest.NewRecorder()
		app.updateBroadcast(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var b types.Broadcast
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&b))
		assert.Equal(t, "new title", b.Title)
	})
}

func TestDeleteBroadcastHandler(t *testing.T) {
	existing := database.Broadcast{Id: "brdcst1", Title: "old title", OwnerId: "u1"}

	db := &database.MockBroadchatRepository{}
	db.On("GetBroadcast", "brdcst1").Return(existing, nil).Once()
	db.On("DeleteBroadcast", "brdcst1").Return(nil).Once()
	defer db.AssertExpectations(t)

	app := newTestApp(t, db)

	req := authedRequest(http.MethodDelete, "/api/broadcasts/brdcst1", nil, "u1")
	req.SetPathValue("id", "brdcst1")

	rr := httptest.NewRecorder()
	app.deleteBroadcast(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestGetRoomMessagesHandler(t *testing.T) {
	messages := []database.Message{
		{Id: "m1", RoomId: "general", AuthorId: "u1", Body: "hello"},
		{Id: "m2", RoomId: "general", AuthorId: "u2", Body: "hi"},
	}

	db := &database.MockBroadchatRepository{}
	db.On("GetRoomMessages", "general").Return(messages, nil).Once()
	defer db.AssertExpectations(t)

	app := newTestApp(t, db)

	req := authedRequest(http.MethodGet, "/api/chat/room/general", nil, "u1")
	req.SetPathValue("roomId", "general")

	rr := httptest.NewRecorder()
	app.getRoomMessages(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var out []types.ChatMessage
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	assert.Len(t, out, 2)
	assert.Equal(t, "m1", out[0].Id)
}

func TestDeleteMessageHandler(t *testing.T) {
	msg := database.Message{Id: "m1", RoomId: "general", AuthorId: "u1", Body: "regret"}

	t.Run("soft deletes own message", func(t *testing.T) {
		now := time.Now().UTC()
		deleted := msg
		deleted.DeletedAt = &now

		db := &database.MockBroadchatRepository{}
		db.On("GetMessageById", "m1").Return(msg, nil).Once()
		db.On("SoftDeleteMessage", "m1").Return(deleted, nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db)

		req := authedRequest(http.MethodDelete, "/api/chat/messages/m1", nil, "u1")
		req.SetPathValue("id", "m1")

		rr := httptest.NewRecorder()
		app.deleteMessage(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var out types.ChatMessage
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
		assert.NotNil(t, out.DeletedAt)
	})

	t.Run("rejects deleting another user's message", func(t *testing.T) {
		db := &database.MockBroadchatRepository{}
		db.On("GetMessageById", "m1").Return(msg, nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db)

		req := authedRequest(http.MethodDelete, "/api/chat/messages/m1", nil, "u2")
		req.SetPathValue("id", "m1")

		rr := httptest.NewRecorder()
		app.deleteMessage(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("missing message", func(t *testing.T) {
		db := &database.MockBroadchatRepository{}
		db.On("GetMessageById", "gone").Return(database.Message{}, sql.ErrNoRows).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db)

		req := authedRequest(http.MethodDelete, "/api/chat/messages/gone", nil, "u1")
		req.SetPathValue("id", "gone")

		rr := httptest.NewRecorder()
		app.deleteMessage(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestNotificationHandlers(t *testing.T) {
	t.Run("lists notifications for the session user", func(t *testing.T) {
		notifications := []database.Notification{
			{Id: "n1", Type: types.NotificationTypeChat, RecipientId: "u1"},
		}

		db := &database.MockBroadchatRepository{}
		db.On("ListNotifications", "u1").Return(notifications, nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		app.listNotifications(rr, authedRequest(http.MethodGet, "/api/notifications", nil, "u1"))

		assert.Equal(t, http.StatusOK, rr.Code)

		var out []types.Notification
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
		assert.Len(t, out, 1)
	})

	t.Run("marks a notification read", func(t *testing.T) {
		db := &database.MockBroadchatRepository{}
		db.On("MarkNotificationRead", "n1").
			Return(database.Notification{Id: "n1", RecipientId: "u1", IsRead: true}, nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db)

		req := authedRequest(http.MethodPut, "/api/notifications/n1/read", nil, "u1")
		req.SetPathValue("id", "n1")

		rr := httptest.NewRecorder()
		app.markNotificationRead(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var out types.Notification
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
		assert.True(t, out.IsRead)
	})

	t.Run("rejects another user's notification", func(t *testing.T) {
		db := &database.MockBroadchatRepository{}
		db.On("MarkNotificationRead", "n1").
			Return(database.Notification{Id: "n1", RecipientId: "u1", IsRead: true}, nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db)

		req := authedRequest(http.MethodPut, "/api/notifications/n1/read", nil, "u2")
		req.SetPathValue("id", "n1")

		rr := httptest.NewRecorder()
		app.markNotificationRead(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestServeWs(t *testing.T) {
	t.Run("rejects handshake without userId", func(t *testing.T) {
		app := newTestApp(t, &database.MockBroadchatRepository{})

		rr := httptest.NewRecorder()
		app.serveWs(rr, httptest.NewRequest(http.MethodGet, "/ws", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("rejects handshake for unknown user", func(t *testing.T) {
		db := &database.MockBroadchatRepository{}
		db.On("GetAccountById", "ghost").Return(database.Account{}, sql.ErrNoRows).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		app.serveWs(rr, httptest.NewRequest(http.MethodGet, "/ws?userId=ghost", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("upgrades a resolvable user", func(t *testing.T) {
		account := database.Account{Id: "u1", Username: "testuser"}

		db := &database.MockBroadchatRepository{}
		db.On("GetAccountById", "u1").Return(account, nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db)

		srv := httptest.NewServer(http.HandlerFunc(app.serveWs))
		defer srv.Close()

		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?userId=u1"
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		assert.NoError(t, err)
		if resp != nil {
			defer resp.Body.Close()
		}
		assert.NotNil(t, conn)
		conn.Close()
	})
}
