package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"clubing-chat/internal/domain"
	"clubing-chat/internal/observability"
	"clubing-chat/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // Must be less than pongWait
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

var validate = validator.New()

// MessageSubmitter accepts chat messages from connections.
type MessageSubmitter interface {
	Submit(ctx context.Context, req service.SubmitRequest) (*domain.Message, error)
}

// ClientOptions carries per-connection dependencies and limits.
type ClientOptions struct {
	Submitter        MessageSubmitter
	MessagesPerSec   float64
	Burst            int
	OperationTimeout time.Duration
}

// Client is one authenticated websocket connection.
type Client struct {
	id       string
	identity domain.Identity
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte

	submitter MessageSubmitter
	limiter   *rate.Limiter
	opTimeout time.Duration

	writeMu   sync.Mutex
	closed    atomic.Bool
	ctx       context.Context
	ctxCancel context.CancelFunc
	log       *slog.Logger
}

func NewClient(ctx context.Context, hub *Hub, conn *websocket.Conn, identity domain.Identity, opts ClientOptions) *Client {
	clientCtx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()

	limit := rate.Inf
	if opts.MessagesPerSec > 0 {
		limit = rate.Limit(opts.MessagesPerSec)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := opts.OperationTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		id:        id,
		identity:  identity,
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		submitter: opts.Submitter,
		limiter:   rate.NewLimiter(limit, burst),
		opTimeout: timeout,
		ctx:       clientCtx,
		ctxCancel: cancel,
		log: observability.FromContext(clientCtx).With(
			slog.String("conn_id", id),
			slog.String("member_id", string(identity.MemberID)),
		),
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// ReadPump reads events until the connection fails or closes, then
// removes the client from the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.ctxCancel()
		c.hub.Disconnect(c)
		c.closeConnection()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("failed to set read deadline", slog.String("error", err.Error()))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket error", slog.String("error", err.Error()))
			}
			return
		}
		c.handle(data)
	}
}

func (c *Client) handle(data []byte) {
	var ev inboundEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		c.sendError(CodeInvalidMessage, "malformed event")
		return
	}
	if err := validate.Struct(ev); err != nil {
		c.sendError(CodeInvalidMessage, err.Error())
		return
	}

	clubID := domain.ClubID(ev.ClubID)
	switch ev.Event {
	case EventJoinRoom:
		c.joinRoom(clubID)
	case EventLeaveRoom:
		c.hub.Unsubscribe(c, clubID)
		c.sendEvent(roomEvent{Event: EventLeft, ClubID: ev.ClubID})
	case EventMessage:
		c.submit(clubID, ev.Content, ev.Images)
	}
}

// joinRoom only groups the connection for delivery. Posting is still
// checked against the room roster by the submitter.
func (c *Client) joinRoom(clubID domain.ClubID) {
	c.hub.Subscribe(c, clubID)
	c.sendEvent(roomEvent{Event: EventJoined, ClubID: int64(clubID)})
	c.log.Debug("joined room", slog.Int64("club_id", int64(clubID)))
}

func (c *Client) submit(clubID domain.ClubID, content string, images []domain.ImageRef) {
	if !c.limiter.Allow() {
		c.sendError(CodeRateLimited, "too many messages")
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.opTimeout)
	defer cancel()

	_, err := c.submitter.Submit(ctx, service.SubmitRequest{
		ClubID:   clubID,
		SenderID: c.identity.MemberID,
		Content:  content,
		Images:   images,
	})
	if err != nil {
		c.fail("message rejected", clubID, err)
	}
}

func (c *Client) fail(what string, clubID domain.ClubID, err error) {
	code := errorCode(err)
	level := slog.LevelInfo
	msg := err.Error()
	if code == CodeInternal {
		level = slog.LevelError
		msg = "internal error"
	}
	c.log.Log(c.ctx, level, what, slog.Int64("club_id", int64(clubID)), slog.String("error", err.Error()))
	c.sendError(code, msg)
}

func (c *Client) sendError(code, message string) {
	c.sendEvent(errorEvent{Event: EventError, Code: code, Message: message})
}

func (c *Client) sendEvent(ev any) {
	data, err := json.Marshal(ev)
	if err != nil {
		c.log.Error("failed to encode event", slog.String("error", err.Error()))
		return
	}
	c.hub.send(c, data)
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				_ = c.writeMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.writeMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeMessage writes a message to the WebSocket connection in a thread-safe manner
func (c *Client) writeMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return websocket.ErrCloseSent
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// closeConnection safely closes the WebSocket connection
func (c *Client) closeConnection() {
	if c.closed.CompareAndSwap(false, true) {
		c.writeMu.Lock()
		c.conn.Close()
		c.writeMu.Unlock()
	}
}
