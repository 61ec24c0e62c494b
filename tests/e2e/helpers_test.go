//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"clubing-chat/internal/domain"
	"clubing-chat/internal/security"

	"github.com/gorilla/websocket"
)

const messageTimeout = 5 * time.Second

// TestClient calls one instance's API as a single member.
type TestClient struct {
	*http.Client
	t      *testing.T
	node   *instance
	member string
	token  string
}

// NewTestClient issues an access token for member on node.
func NewTestClient(t *testing.T, node *instance, member string) *TestClient {
	t.Helper()

	token, err := security.NewTokenVerifier(testJWTSecret).Issue(domain.Identity{MemberID: domain.MemberID(member)}, time.Hour)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	return &TestClient{
		Client: &http.Client{Timeout: 30 * time.Second},
		t:      t,
		node:   node,
		member: member,
		token:  token,
	}
}

// JoinRoom posts a join request and returns the status and room.
func (tc *TestClient) JoinRoom(clubID int64, participants ...string) (int, *RoomResponse, error) {
	resp, err := tc.do(http.MethodPost, "/api/v1/chatrooms/room", map[string]any{
		"clubId":       clubID,
		"participants": participants,
	})
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil, nil
	}

	var room RoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to decode room response: %w", err)
	}
	return resp.StatusCode, &room, nil
}

// GetRoom fetches the room of a club.
func (tc *TestClient) GetRoom(clubID int64) (int, *RoomResponse, error) {
	resp, err := tc.do(http.MethodGet, fmt.Sprintf("/api/v1/chatrooms/room/%d", clubID), nil)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil, nil
	}

	var room RoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to decode room response: %w", err)
	}
	return resp.StatusCode, &room, nil
}

// GetMessages reads the caller's visible history. Negative skip or limit
// leave the parameter out.
func (tc *TestClient) GetMessages(clubID int64, skip, limit int) (int, *MessagesResponse, error) {
	q := url.Values{}
	if skip >= 0 {
		q.Set("skip", fmt.Sprint(skip))
	}
	if limit >= 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	path := fmt.Sprintf("/api/v1/chatrooms/%d/messages", clubID)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := tc.do(http.MethodGet, path, nil)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil, nil
	}

	var page MessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to decode messages response: %w", err)
	}
	return resp.StatusCode, &page, nil
}

func (tc *TestClient) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, tc.node.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+tc.token)
	return tc.Do(req)
}

// Response types

type ParticipantResponse struct {
	MemberID string    `json:"memberId"`
	JoinedAt time.Time `json:"joinedAt"`
}

type RoomResponse struct {
	ClubID       int64                 `json:"clubId"`
	CreatedAt    time.Time             `json:"createdAt"`
	Participants []ParticipantResponse `json:"participants"`
}

type MessageResponse struct {
	ID        int64     `json:"id"`
	ClubID    int64     `json:"clubId"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type MessagesResponse struct {
	Messages []MessageResponse `json:"messages"`
	Skip     int               `json:"skip"`
	Limit    int               `json:"limit"`
}

// WebSocket helpers

// WSClient is a websocket connection with a background reader.
type WSClient struct {
	t        *testing.T
	conn     *websocket.Conn
	mu       sync.Mutex
	messages chan WSMessage
	done     chan struct{}
	once     sync.Once
}

// WSMessage is any server to client event.
type WSMessage struct {
	Event   string           `json:"event"`
	ClubID  int64            `json:"clubId,omitempty"`
	Code    string           `json:"code,omitempty"`
	Message *MessageResponse `json:"-"`
	Error   string           `json:"-"`
}

// wsFrame decodes the "message" field, which is an object for chat
// messages and a string for errors.
type wsFrame struct {
	Event   string          `json:"event"`
	ClubID  int64           `json:"clubId"`
	Code    string          `json:"code"`
	Message json.RawMessage `json:"message"`
}

// ConnectWebSocket opens a websocket on the client's node.
func (tc *TestClient) ConnectWebSocket() (*WSClient, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.Dial(tc.node.wsURL+"/ws/chat?token="+url.QueryEscape(tc.token), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	wsc := &WSClient{
		t:        tc.t,
		conn:     conn,
		messages: make(chan WSMessage, 100),
		done:     make(chan struct{}),
	}
	tc.t.Cleanup(func() { wsc.Close() })

	go wsc.readLoop()

	return wsc, nil
}

// readLoop reads messages from the WebSocket connection
func (wsc *WSClient) readLoop() {
	defer close(wsc.messages)

	for {
		_, data, err := wsc.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame wsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			wsc.t.Logf("failed to unmarshal WebSocket message: %v", err)
			continue
		}

		msg := WSMessage{Event: frame.Event, ClubID: frame.ClubID, Code: frame.Code}
		if len(frame.Message) > 0 {
			if frame.Event == "message" {
				msg.Message = &MessageResponse{}
				if err := json.Unmarshal(frame.Message, msg.Message); err != nil {
					wsc.t.Logf("failed to unmarshal chat message: %v", err)
					continue
				}
			} else {
				_ = json.Unmarshal(frame.Message, &msg.Error)
			}
		}

		select {
		case wsc.messages <- msg:
		case <-wsc.done:
			return
		}
	}
}

func (wsc *WSClient) send(v any) error {
	wsc.mu.Lock()
	defer wsc.mu.Unlock()
	return wsc.conn.WriteJSON(v)
}

// JoinRoom subscribes to a club's broadcasts and waits for the answer.
func (wsc *WSClient) JoinRoom(clubID int64) (*WSMessage, error) {
	if err := wsc.send(map[string]any{"event": "joinRoom", "clubId": clubID}); err != nil {
		return nil, err
	}
	return wsc.WaitForMessage(messageTimeout, func(msg WSMessage) bool {
		return msg.Event == "joined" || msg.Event == "error"
	})
}

// SendMessage posts a chat message to a club.
func (wsc *WSClient) SendMessage(clubID int64, content string) error {
	return wsc.send(map[string]any{"event": "message", "clubId": clubID, "content": content})
}

// WaitForMessage waits for a message matching the predicate
func (wsc *WSClient) WaitForMessage(timeout time.Duration, predicate func(WSMessage) bool) (*WSMessage, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case msg, ok := <-wsc.messages:
			if !ok {
				return nil, fmt.Errorf("connection closed while waiting for message")
			}
			if predicate(msg) {
				return &msg, nil
			}
		case <-timer.C:
			return nil, fmt.Errorf("timeout waiting for message")
		}
	}
}

// WaitForChatMessage waits for a chat message with specific content
func (wsc *WSClient) WaitForChatMessage(content string, timeout time.Duration) (*MessageResponse, error) {
	msg, err := wsc.WaitForMessage(timeout, func(msg WSMessage) bool {
		return msg.Event == "message" && msg.Message != nil && msg.Message.Content == content
	})
	if err != nil {
		return nil, err
	}
	return msg.Message, nil
}

// ExpectNoChatMessage fails if any chat message arrives within wait.
func (wsc *WSClient) ExpectNoChatMessage(wait time.Duration) {
	wsc.t.Helper()
	msg, err := wsc.WaitForMessage(wait, func(msg WSMessage) bool { return msg.Event == "message" })
	if err == nil {
		wsc.t.Errorf("unexpected chat message: %+v", msg.Message)
	}
}

// Close closes the WebSocket connection
func (wsc *WSClient) Close() error {
	var err error
	wsc.once.Do(func() {
		close(wsc.done)
		wsc.mu.Lock()
		defer wsc.mu.Unlock()
		err = wsc.conn.Close()
	})
	return err
}

// Test helpers

// seedClub registers a fresh club with the given members in the club
// directory tables and returns its id.
func seedClub(t *testing.T, members ...string) int64 {
	t.Helper()

	clubID := clubCounter.Add(1)
	if _, err := testDB.ExecContext(testContext, `INSERT INTO clubs (id) VALUES ($1)`, clubID); err != nil {
		t.Fatalf("failed to seed club: %v", err)
	}
	for _, m := range members {
		if _, err := testDB.ExecContext(testContext,
			`INSERT INTO club_members (club_id, member_id) VALUES ($1, $2)`, clubID, m); err != nil {
			t.Fatalf("failed to seed club member: %v", err)
		}
	}
	return clubID
}

// uniqueMember generates a unique member id for testing
func uniqueMember(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

// joinedRoom creates a club whose room already admits members.
func joinedRoom(t *testing.T, members ...string) int64 {
	t.Helper()

	clubID := seedClub(t, members...)
	status, _, err := NewTestClient(t, nodeA, members[0]).JoinRoom(clubID, members...)
	assertNoError(t, err, "join room")
	assertEqual(t, status, http.StatusCreated, "join status")
	return clubID
}

// connectAndJoin opens a websocket on node and subscribes it to clubID.
func connectAndJoin(t *testing.T, node *instance, member string, clubID int64) *WSClient {
	t.Helper()

	ws, err := NewTestClient(t, node, member).ConnectWebSocket()
	assertNoError(t, err, "connect websocket")

	ack, err := ws.JoinRoom(clubID)
	assertNoError(t, err, "join room over websocket")
	assertEqual(t, ack.Event, "joined", "join acknowledgement")
	return ws
}

// assertNoError fails the test if err is not nil
func assertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}

// assertEqual checks if two values are equal
func assertEqual[T comparable](t *testing.T, got, want T, msg string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %v, want %v", msg, got, want)
	}
}
