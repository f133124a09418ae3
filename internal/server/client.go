package server

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"broadchat/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one live transport connection. A single user may own several
// clients concurrently (multi-tab, multi-device); each one manages its own
// room subscriptions.
type Client struct {
	transportId string
	conn        *websocket.Conn
	gateway     *Gateway
	log         *log.Logger
	user        types.User
	send        chan *ServerEvent
	stop        chan struct{}
	stopOnce    sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, gw *Gateway, l *log.Logger) *Client {
	return &Client{
		transportId: uuid.NewString(),
		conn:        conn,
		gateway:     gw,
		log:         l,
		user:        user,
		send:        make(chan *ServerEvent, 256),
		stop:        make(chan struct{}),
	}
}

func (c *Client) TransportId() string {
	return c.transportId
}

func (c *Client) UserId() string {
	return c.user.Id
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
					websocket.CloseNormalClosure) {
					c.log.Printf("write event: %s", err)
				}
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		c.gateway.HandleEvent(c, raw)
	}
}

// queueEvent delivers best-effort: a slow or dead client whose buffer is
// full simply misses the event.
func (c *Client) queueEvent(ev *ServerEvent) bool {
	select {
	case c.send <- ev:
	default:
		c.log.Printf("dropping %q event for transport %s: send buffer full", ev.Event, c.transportId)
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.gateway.Disconnect(c)
	c.stopClient()
}
