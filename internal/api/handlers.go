package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"

	"broadchat/internal/database"
	"broadchat/internal/server"
	"broadchat/internal/types"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

type BroadcastRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
}

func (s *BroadchatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *BroadchatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *BroadchatApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	newAccount, err := s.db.CreateAccount(database.CreateAccountParams{
		Username:     req.Username,
		EmailAddress: req.Email,
		PasswordHash: pwdHash,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, userFromAccount(newAccount))
}

func (s *BroadchatApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if lr.Email == "" || lr.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	account, err := s.db.GetAccountByEmail(lr.Email)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !verifyPassword(account.PasswordHash, lr.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	u := userFromAccount(account)
	token, err := s.createJwtForSession(u, defaultJwtExpiration)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, LoginResponse{Token: token, User: u})
}

func (s *BroadchatApp) listUsers(w http.ResponseWriter, r *http.Request) {
	var (
		page  int
		limit int
		err   error
	)

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if page, err = strconv.Atoi(pageStr); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err = strconv.Atoi(limitStr); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	accounts, err := s.db.ListAccounts(database.ListAccountsParams{
		Page:   page,
		Limit:  limit,
		Search: r.URL.Query().Get("search"),
	})
	if err != nil {
		s.log.Println("list accounts:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	users := make([]types.User, 0, len(accounts))
	for _, a := range accounts {
		users = append(users, userFromAccount(a))
	}

	s.writeJson(w, http.StatusOK, users)
}

func (s *BroadchatApp) createBroadcast(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Title == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Visibility == "" {
		req.Visibility = "public"
	}

	sid, err := s.generateShortId()
	if err != nil {
		s.log.Print("generateShortId:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	newBroadcast, err := s.db.CreateBroadcast(database.CreateBroadcastParams{
		Id:          sid,
		Title:       req.Title,
		Description: req.Description,
		Visibility:  req.Visibility,
		OwnerId:     userId,
	})
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	b := broadcastFromDB(newBroadcast)

	// announce new public broadcasts to everyone currently connected
	if b.Visibility == "public" {
		s.gateway.NotifyAll(types.Notification{
			Type:        types.NotificationTypeBroadcast,
			Message:     "new broadcast: " + b.Title,
			ReferenceId: b.Id,
			SenderId:    userId,
		})
	}

	s.writeJson(w, http.StatusCreated, b)
}

func (s *BroadchatApp) getBroadcast(w http.ResponseWriter, r *http.Request) {
	broadcast, err := s.db.GetBroadcast(r.PathValue("id"))
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, broadcastFromDB(broadcast))
}

func (s *BroadchatApp) listBroadcasts(w http.ResponseWriter, r *http.Request) {
	dbBroadcasts, err := s.db.ListBroadcasts()
	if err != nil {
		s.log.Println("list broadcasts:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	broadcasts := make([]types.Broadcast, 0, len(dbBroadcasts))
	for _, b := range dbBroadcasts {
		broadcasts = append(broadcasts, broadcastFromDB(b))
	}

	s.writeJson(w, http.StatusOK, broadcasts)
}

func (s *BroadchatApp) updateBroadcast(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	broadcast, err := s.db.GetBroadcast(r.PathValue("id"))
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if broadcast.OwnerId != userId {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Title == "" {
		req.Title = broadcast.Title
	}
	if req.Visibility == "" {
		req.Visibility = broadcast.Visibility
	}

	updated, err := s.db.UpdateBroadcast(database.UpdateBroadcastParams{
		Id:          broadcast.Id,
		Title:       req.Title,
		Description: req.Description,
		Visibility:  req.Visibility,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, broadcastFromDB(updated))
}

func (s *BroadchatApp) deleteBroadcast(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	broadcast, err := s.db.GetBroadcast(r.PathValue("id"))
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if broadcast.OwnerId != userId {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.DeleteBroadcast(broadcast.Id); err != nil {
		s.log.Println("delete broadcast:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *BroadchatApp) getRoomMessages(w http.ResponseWriter, r *http.Request) {
	roomId := r.PathValue("roomId")
	if roomId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messages, err := s.db.GetRoomMessages(roomId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	chatMessages := make([]types.ChatMessage, 0, len(messages))
	for _, m := range messages {
		chatMessages = append(chatMessages, chatMessageFromDB(m))
	}

	s.writeJson(w, http.StatusOK, chatMessages)
}

func (s *BroadchatApp) deleteMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.db.GetMessageById(r.PathValue("id"))
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if msg.AuthorId != userId {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	deleted, err := s.db.SoftDeleteMessage(msg.Id)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			// already soft-deleted
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, chatMessageFromDB(deleted))
}

func (s *BroadchatApp) listNotifications(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbNotifications, err := s.db.ListNotifications(userId)
	if err != nil {
		s.log.Println("list notifications:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	notifications := make([]types.Notification, 0, len(dbNotifications))
	for _, n := range dbNotifications {
		notifications = append(notifications, notificationFromDB(n))
	}

	s.writeJson(w, http.StatusOK, notifications)
}

func (s *BroadchatApp) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	notification, err := s.db.MarkNotificationRead(r.PathValue("id"))
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if notification.RecipientId != userId {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, notificationFromDB(notification))
}

// serveWs completes the real-time handshake. The client supplies its
// identity as a userId query parameter; a handshake without a resolvable
// account is refused and no connection is registered.
func (s *BroadchatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	userId := r.URL.Query().Get("userId")
	if userId == "" {
		s.log.Println("ws handshake rejected: missing userId")
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	account, err := s.db.GetAccountById(userId)
	if err != nil {
		s.log.Printf("ws handshake rejected: unresolvable user %q: %v", userId, err)
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewUnauthorizedError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(userFromAccount(account), conn, s.gateway, s.log)
	if err := s.gateway.Register(client); err != nil {
		s.log.Println("register client:", err)
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()
}

func userFromAccount(a database.Account) types.User {
	return types.User{
		Id:           a.Id,
		Username:     a.Username,
		EmailAddress: a.EmailAddress,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func broadcastFromDB(b database.Broadcast) types.Broadcast {
	return types.Broadcast{
		Id:          b.Id,
		Title:       b.Title,
		Description: b.Description,
		Visibility:  b.Visibility,
		OwnerId:     b.OwnerId,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func chatMessageFromDB(m database.Message) types.ChatMessage {
	return types.ChatMessage{
		Id:            m.Id,
		RoomId:        m.RoomId,
		AuthorId:      m.AuthorId,
		Body:          m.Body,
		ReplyToId:     m.ReplyToId,
		MentionIds:    m.MentionIds,
		Attachments:   m.Attachments,
		DeliveryState: m.DeliveryState,
		CreatedAt:     m.CreatedAt,
		DeletedAt:     m.DeletedAt,
	}
}

func notificationFromDB(n database.Notification) types.Notification {
	return types.Notification{
		Id:          n.Id,
		Type:        n.Type,
		Message:     n.Message,
		ReferenceId: n.ReferenceId,
		IsRead:      n.IsRead,
		RecipientId: n.RecipientId,
		SenderId:    n.SenderId,
		CreatedAt:   n.CreatedAt,
	}
}
