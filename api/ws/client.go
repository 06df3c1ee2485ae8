package ws

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Parzival4o4/drawing-app/service"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024 * 64

	// Rate limiting: 20 messages per second with a burst of 30
	messagesPerSecond = 20
	burstLimit        = 30
)

var connectionIDs atomic.Int64

type MessageHandler func(client *Client, messageBytes []byte)

// Client is a middleman between the websocket connection and the hubs. It
// carries the connection's mutable claims; the subscribed set is owned by the
// read-pump goroutine.
type Client struct {
	id         int64
	registry   *Registry
	conn       *websocket.Conn
	handler    MessageHandler
	subscribed map[string]struct{}
	Send       chan []byte // Buffered channel of outbound messages.
	ctx        context.Context
	cancel     context.CancelFunc
	limiter    *rate.Limiter

	mu     sync.Mutex
	claims service.Claims
}

func NewClient(registry *Registry, conn *websocket.Conn, claims service.Claims, handler MessageHandler) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		id:         connectionIDs.Add(1),
		registry:   registry,
		conn:       conn,
		handler:    handler,
		claims:     claims,
		subscribed: make(map[string]struct{}),
		Send:       make(chan []byte, 128),
		ctx:        ctx,
		cancel:     cancel,
		limiter:    rate.NewLimiter(rate.Limit(messagesPerSecond), burstLimit),
	}
}

func (c *Client) ID() int64 { return c.id }

// Claims returns the connection's current claims snapshot.
func (c *Client) Claims() service.Claims {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.claims
}

// SetClaims installs refreshed claims on the connection.
func (c *Client) SetClaims(claims service.Claims) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claims = claims
}

func (c *Client) UserID() int64 {
	return c.Claims().UserID
}

// trySend enqueues a frame without blocking. A full buffer or a closed
// connection reports false; the caller treats the client as disconnected.
func (c *Client) trySend(message []byte) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}
	select {
	case c.Send <- message:
		return true
	default:
		return false
	}
}

// Close tears the connection down; safe to call from any goroutine.
func (c *Client) Close() {
	c.cancel()
}

func (c *Client) ReadPump() {
	defer func() {
		for canvasID := range c.subscribed {
			if hub, ok := c.registry.ExistingHub(canvasID); ok {
				hub.Unsubscribe(c)
			}
		}
		c.registry.Remove(c)
		c.cancel()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WS close error: %v", err)
			}
			break
		}

		if !c.limiter.Allow() {
			log.Printf("Closing connection %d for user %d: message rate limit exceeded", c.id, c.UserID())
			break
		}

		c.handler(c, messageBytes)
	}
}

func (c *Client) WritePump(shutdownCtx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.cancel()
	}()
	for {
		select {
		case message := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("WS send error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-shutdownCtx.Done():
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Websocket service shutting down"),
			)
			return
		}
	}
}
