package handler

import (
	"net/http/httptest"
	"testing"
	"time"

	"clubing-chat/internal/domain"
	"clubing-chat/internal/middleware"
	"clubing-chat/internal/security"
	"clubing-chat/internal/service"
	"clubing-chat/internal/testutil"

	"github.com/go-chi/chi/v5"
)

type fixture struct {
	rooms    *testutil.MockRoomRepository
	messages *testutil.MockMessageRepository
	clubs    *testutil.MockClubDirectory
	router   chi.Router
}

// newFixture serves the room routes for club 42 with members alice, bob
// and carol; dave belongs to no club.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		rooms:    testutil.NewMockRoomRepository(),
		messages: testutil.NewMockMessageRepository(),
		clubs:    testutil.NewMockClubDirectory().AddClub(42, "alice", "bob", "carol"),
	}

	registry := service.NewRoomRegistry(f.rooms, f.clubs)
	store := service.NewMessageStore(f.messages, 0, 0)
	visibility := service.NewVisibilityResolver(f.rooms, store)
	h := NewRoomHandler(registry, visibility, store)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(security.NewTokenVerifier(testutil.TestJWTSecret)))
		r.Post("/chatrooms/room", h.Join)
		r.Get("/chatrooms/room/{clubId}", h.Get)
		r.Get("/chatrooms/{clubId}/messages", h.Messages)
	})
	f.router = r
	return f
}

// do sends a request as member; an empty member sends no token.
func (f *fixture) do(t *testing.T, method, target string, member domain.MemberID, body any) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.NewJSONRequest(t, method, target, body)
	if member != "" {
		req.Header.Set("Authorization", "Bearer "+testutil.IssueToken(t, member))
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// seedRoom stores club 42's room with members admitted at Epoch+seconds.
func (f *fixture) seedRoom(joins map[domain.MemberID]int, order ...domain.MemberID) {
	room := domain.NewRoom(42, testutil.Epoch)
	for _, m := range order {
		room.Admit(m, testutil.Epoch.Add(time.Duration(joins[m])*time.Second))
	}
	f.rooms.Rooms[42] = room
}

func (f *fixture) seedMessage(t *testing.T, sender domain.MemberID, second int, content string) {
	t.Helper()
	msg := testutil.NewTestMessage(
		testutil.WithClub(42),
		testutil.WithSender(sender),
		testutil.WithContent(content),
		testutil.WithSecond(second),
	)
	if err := f.messages.Append(t.Context(), msg); err != nil {
		t.Fatal(err)
	}
}
