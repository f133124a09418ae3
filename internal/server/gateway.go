package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"broadchat/internal/database"
	"broadchat/internal/stats"
	"broadchat/internal/types"
)

// historyReplayLimit caps the number of messages replayed to a joining
// transport.
const historyReplayLimit = 50

// Gateway receives inbound real-time events, gates them through the rate
// limiter and orchestrates the message store, connection registry and room
// manager. Every inbound event is handled on its connection's read
// goroutine; the shared registries are mutex-guarded, so handlers for
// different connections interleave freely.
type Gateway struct {
	log      *log.Logger
	db       database.BroadchatRepository
	registry *ConnectionRegistry
	rooms    *RoomManager
	limiter  *RateLimiter
	stats    stats.StatsProvider
}

func NewGateway(logger *log.Logger, db database.BroadchatRepository, su stats.StatsProvider) *Gateway {
	registry := NewConnectionRegistry(logger)

	g := &Gateway{
		log:      logger,
		db:       db,
		registry: registry,
		rooms:    NewRoomManager(logger, registry, su),
		limiter:  NewRateLimiter(DefaultRatePolicies()),
		stats:    su,
	}

	su.RegisterMetric("NumActiveConnections")
	su.RegisterMetric("NumActiveRooms")
	su.RegisterMetric("MessagesSent")
	su.RegisterMetric("ThrottleRejections")
	su.RegisterMetric("NotificationsSent")

	return g
}

// Register records the transport in the connection registry. A client
// without a resolved user identity is rejected and must be closed by the
// caller; it never appears in the registry.
func (g *Gateway) Register(c *Client) error {
	if err := g.registry.Register(c); err != nil {
		return err
	}

	g.stats.Incr("NumActiveConnections")
	return nil
}

// Disconnect removes the transport from the registry and from every room
// it had joined. It does not abort in-flight persistence: a message that
// was already being saved is still broadcast to the remaining members.
func (g *Gateway) Disconnect(c *Client) {
	if g.registry.Unregister(c.transportId) {
		g.stats.Decr("NumActiveConnections")
	}
	g.rooms.RemoveClient(c)
}

// HandleEvent processes one inbound frame: parse the envelope, gate the
// action through the rate limiter, then dispatch. Validation and throttle
// failures become events back to the caller and never close the
// connection.
func (g *Gateway) HandleEvent(c *Client, raw []byte) {
	var ev ClientEvent
	if err := json.Unmarshal(raw, &ev); err != nil || ev.Event == "" {
		c.queueEvent(ErrorEvent("", "invalid message format"))
		return
	}

	adm := g.limiter.Allow(c.user.Id, ev.Event)
	if !adm.Allowed {
		g.stats.Incr("ThrottleRejections")
		c.queueEvent(ThrottleErrorEvent(ev.Event, adm))
		return
	}

	switch ev.Event {
	case EventJoinRoom:
		g.handleJoinRoom(c, ev.Data)
	case EventLeaveRoom:
		g.handleLeaveRoom(c, ev.Data)
	case EventSendMessage:
		g.handleSendMessage(c, ev.Data)
	default:
		c.queueEvent(ErrorEvent(ev.Event, fmt.Sprintf("unknown event %q", ev.Event)))
	}
}

func (g *Gateway) handleJoinRoom(c *Client, data json.RawMessage) {
	var p JoinRoomPayload
	if err := decodePayload(data, &p); err != nil {
		c.queueEvent(ErrorEvent(EventJoinRoom, ErrMalformedPayload.Error()))
		return
	}

	if err := g.rooms.Join(c, strings.TrimSpace(p.RoomId)); err != nil {
		c.queueEvent(ErrorEvent(EventJoinRoom, err.Error()))
		return
	}

	roomId := strings.TrimSpace(p.RoomId)
	history, err := g.db.GetLastMessages(roomId, historyReplayLimit)
	if err != nil {
		g.log.Println("GetLastMessages:", err)
		c.queueEvent(ErrorEvent(EventJoinRoom, "internal server error"))
		return
	}

	// History replay targets the joining transport only; existing members
	// already have it.
	c.queueEvent(ChatHistoryEvent(chatMessagesFromDB(history)))

	// The presence broadcast goes to everyone, the joiner included.
	g.rooms.Broadcast(roomId, PresenceEvent(EventUserJoined, c.user.Id))
}

func (g *Gateway) handleLeaveRoom(c *Client, data json.RawMessage) {
	var p LeaveRoomPayload
	if err := decodePayload(data, &p); err != nil {
		c.queueEvent(ErrorEvent(EventLeaveRoom, ErrMalformedPayload.Error()))
		return
	}

	roomId := strings.TrimSpace(p.RoomId)
	if err := g.rooms.Leave(c, roomId); err != nil {
		c.queueEvent(ErrorEvent(EventLeaveRoom, err.Error()))
		return
	}

	g.rooms.Broadcast(roomId, PresenceEvent(EventUserLeft, c.user.Id))
}

func (g *Gateway) handleSendMessage(c *Client, data json.RawMessage) {
	var p SendMessagePayload
	if err := decodePayload(data, &p); err != nil {
		c.queueEvent(ErrorEvent(EventSendMessage, ErrMalformedPayload.Error()))
		return
	}

	params := database.CreateMessageParams{
		RoomId:      strings.TrimSpace(p.RoomId),
		AuthorId:    strings.TrimSpace(p.CreatorId),
		Body:        p.Message,
		ReplyToId:   strings.TrimSpace(p.ReplyId),
		MentionIds:  normalizeIds(p.MentionIds),
		Attachments: p.Attachments,
	}

	msg, err := g.db.CreateMessage(params)
	if err != nil {
		if errors.Is(err, database.ErrValidation) {
			c.queueEvent(ErrorEvent(EventSendMessage, err.Error()))
		} else {
			g.log.Println("CreateMessage:", err)
			c.queueEvent(ErrorEvent(EventSendMessage, "internal server error"))
		}
		return
	}

	wireMsg := chatMessageFromDB(msg)

	// The acknowledgment and the room broadcast carry the same persisted
	// message, no divergent copies.
	c.queueEvent(MessageAckEvent(wireMsg))
	g.rooms.Broadcast(msg.RoomId, NewMessageEvent(wireMsg))
	g.stats.Incr("MessagesSent")

	g.notifyMentions(msg)
}

// notifyMentions persists a notification per mentioned user and pushes it
// to their live transports. A mention of the author is skipped.
func (g *Gateway) notifyMentions(msg database.Message) {
	for _, userId := range msg.MentionIds {
		if userId == msg.AuthorId {
			continue
		}

		n, err := g.db.CreateNotification(database.CreateNotificationParams{
			Type:        types.NotificationTypeChat,
			Message:     fmt.Sprintf("you were mentioned in room %s", msg.RoomId),
			ReferenceId: msg.Id,
			RecipientId: userId,
			SenderId:    msg.AuthorId,
		})
		if err != nil {
			g.log.Println("CreateNotification:", err)
			continue
		}

		g.rooms.BroadcastToUser(userId, NotificationEvent(notificationFromDB(n)))
		g.stats.Incr("NotificationsSent")
	}
}

// NotifyUser pushes a notification to all of the user's live transports.
// Offline users miss it; callers wanting durability persist first.
func (g *Gateway) NotifyUser(userId string, data any) {
	g.rooms.BroadcastToUser(userId, NotificationEvent(data))
	g.stats.Incr("NotificationsSent")
}

// NotifyAll pushes a notification to every connected transport.
func (g *Gateway) NotifyAll(data any) {
	ev := NotificationEvent(data)
	for _, c := range g.registry.Clients() {
		c.queueEvent(ev)
	}
	g.stats.Incr("NotificationsSent")
}

// normalizeIds trims each id, drops empties and collapses duplicates,
// preserving first-seen order.
func normalizeIds(ids []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	return out
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

func chatMessagesFromDB(msgs []database.Message) []types.ChatMessage {
	out := make([]types.ChatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = chatMessageFromDB(m)
	}

	return out
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
