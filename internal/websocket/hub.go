package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"clubing-chat/internal/domain"
	"clubing-chat/internal/observability"
)

type subscription struct {
	client *Client
	clubID domain.ClubID
}

// outbound is queued for one club group, or for a single client when
// client is set. Both share a queue so a client sees them in send order.
type outbound struct {
	clubID domain.ClubID
	client *Client
	data   []byte
}

type sizeQuery struct {
	clubID domain.ClubID
	reply  chan int
}

// Hub owns every connection's send channel and the club groups. All state
// is confined to the Run goroutine; other goroutines talk to it through
// channels.
type Hub struct {
	groups  map[domain.ClubID]map[*Client]struct{}
	clients map[*Client]map[domain.ClubID]struct{}

	register    chan *Client
	disconnect  chan *Client
	subscribe   chan subscription
	unsubscribe chan subscription
	outbound    chan outbound
	sizes       chan sizeQuery

	done chan struct{}
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		groups:      make(map[domain.ClubID]map[*Client]struct{}),
		clients:     make(map[*Client]map[domain.ClubID]struct{}),
		register:    make(chan *Client),
		disconnect:  make(chan *Client),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		outbound:    make(chan outbound, 256),
		sizes:       make(chan sizeQuery),
		done:        make(chan struct{}),
	}
}

// Run starts the hub's main loop. It returns when ctx is cancelled, after
// closing every connection's send channel.
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			slog.Info("hub shutting down gracefully")
			return ctx.Err()

		case client := <-h.register:
			if _, ok := h.clients[client]; !ok {
				h.clients[client] = make(map[domain.ClubID]struct{})
				observability.WebSocketConnectionsActive.Inc()
			}

		case client := <-h.disconnect:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				slog.Info("client disconnected", slog.String("conn_id", client.id), slog.String("member_id", string(client.identity.MemberID)))
			}

		case sub := <-h.subscribe:
			h.addToGroup(sub.client, sub.clubID)

		case sub := <-h.unsubscribe:
			h.removeFromGroup(sub.client, sub.clubID)

		case msg := <-h.outbound:
			if msg.client == nil {
				h.fanOut(msg)
			} else if _, ok := h.clients[msg.client]; ok {
				h.deliver(msg.client, msg.data)
			}

		case q := <-h.sizes:
			q.reply <- len(h.groups[q.clubID])
		}
	}
}

func (h *Hub) addToGroup(client *Client, clubID domain.ClubID) {
	joined, ok := h.clients[client]
	if !ok {
		return
	}
	if _, already := joined[clubID]; already {
		return
	}

	group := h.groups[clubID]
	if group == nil {
		group = make(map[*Client]struct{})
		h.groups[clubID] = group
	}
	group[client] = struct{}{}
	joined[clubID] = struct{}{}
	observability.RoomSubscribers.WithLabelValues(clubLabel(clubID)).Inc()
}

func (h *Hub) removeFromGroup(client *Client, clubID domain.ClubID) {
	group, ok := h.groups[clubID]
	if !ok {
		return
	}
	if _, member := group[client]; !member {
		return
	}

	delete(group, client)
	if len(group) == 0 {
		delete(h.groups, clubID)
	}
	delete(h.clients[client], clubID)
	observability.RoomSubscribers.WithLabelValues(clubLabel(clubID)).Dec()
}

// fanOut delivers msg to every member of the group. Members are collected
// first because deliver may drop a client from the group.
func (h *Hub) fanOut(msg outbound) {
	group := h.groups[msg.clubID]
	if len(group) == 0 {
		return
	}
	targets := make([]*Client, 0, len(group))
	for client := range group {
		targets = append(targets, client)
	}
	for _, client := range targets {
		if h.deliver(client, msg.data) {
			observability.WebSocketMessagesSent.WithLabelValues("message").Inc()
		}
	}
}

// deliver queues data on the client's send buffer. A full buffer means the
// client cannot keep up: it is dropped from every group and its send
// channel closed.
func (h *Hub) deliver(client *Client, data []byte) bool {
	select {
	case client.send <- data:
		return true
	default:
		slog.Warn("dropping slow websocket client",
			slog.String("conn_id", client.id),
			slog.String("member_id", string(client.identity.MemberID)))
		observability.SlowSubscribersDropped.Inc()
		h.drop(client)
		return false
	}
}

// drop removes client from the hub and closes its send channel.
func (h *Hub) drop(client *Client) {
	joined, ok := h.clients[client]
	if !ok {
		return
	}
	for clubID := range joined {
		h.removeFromGroup(client, clubID)
	}
	delete(h.clients, client)
	close(client.send)
	observability.WebSocketConnectionsActive.Dec()
}

// shutdown performs graceful cleanup of all connections
func (h *Hub) shutdown() {
	close(h.done)
	for client := range h.clients {
		h.drop(client)
	}
	slog.Info("hub shutdown complete")
}

// Register adds a connection to the hub. It reports false once the hub
// has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Subscribe adds client to the club's group. Grouping is advisory: the
// caller decides who may subscribe.
func (h *Hub) Subscribe(client *Client, clubID domain.ClubID) {
	select {
	case h.subscribe <- subscription{client: client, clubID: clubID}:
	case <-h.done:
	}
}

// Unsubscribe removes client from the club's group; unknown pairs are ignored.
func (h *Hub) Unsubscribe(client *Client, clubID domain.ClubID) {
	select {
	case h.unsubscribe <- subscription{client: client, clubID: clubID}:
	case <-h.done:
	}
}

// Disconnect removes client from every group and closes its send channel.
// Calling it more than once is harmless.
func (h *Hub) Disconnect(client *Client) {
	select {
	case h.disconnect <- client:
	case <-h.done:
	}
}

// Publish sends the "message" event for msg to every connection in the
// club's group.
func (h *Hub) Publish(clubID domain.ClubID, msg *domain.Message) {
	data, err := json.Marshal(messageEvent{Event: EventMessage, Message: msg})
	if err != nil {
		slog.Error("failed to encode message event", slog.String("error", err.Error()), slog.Int64("message_id", msg.ID))
		return
	}
	select {
	case h.outbound <- outbound{clubID: clubID, data: data}:
	case <-h.done:
	}
}

// send queues an event for a single connection.
func (h *Hub) send(client *Client, data []byte) {
	select {
	case h.outbound <- outbound{client: client, data: data}:
	case <-h.done:
	}
}

// GroupSize returns the number of connections subscribed to the club.
func (h *Hub) GroupSize(clubID domain.ClubID) int {
	reply := make(chan int, 1)
	select {
	case h.sizes <- sizeQuery{clubID: clubID, reply: reply}:
		return <-reply
	case <-h.done:
		return 0
	}
}

func clubLabel(clubID domain.ClubID) string {
	return strconv.FormatInt(int64(clubID), 10)
}
