package service

import (
	"testing"

	"clubing-chat/internal/domain"
	"clubing-chat/internal/testutil"
)

type harness struct {
	clock     *testutil.FakeClock
	rooms     *testutil.MockRoomRepository
	messages  *testutil.MockMessageRepository
	clubs     *testutil.MockClubDirectory
	broadcast *testutil.RecordingBroadcaster

	registry   *RoomRegistry
	store      *MessageStore
	visibility *VisibilityResolver
	pipeline   *IngestionPipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		clock:     testutil.NewFakeClock(testutil.Epoch),
		rooms:     testutil.NewMockRoomRepository(),
		messages:  testutil.NewMockMessageRepository(),
		clubs:     testutil.NewMockClubDirectory(),
		broadcast: &testutil.RecordingBroadcaster{},
	}
	h.rooms.Now = h.clock.Now
	h.clubs.AddClub(42, "A", "B", "C")

	h.registry = NewRoomRegistry(h.rooms, h.clubs)
	h.registry.now = h.clock.Now
	h.store = NewMessageStore(h.messages, 0, 0)
	h.store.now = h.clock.Now
	h.visibility = NewVisibilityResolver(h.rooms, h.store)
	h.pipeline = NewIngestionPipeline(h.rooms, h.store, h.broadcast, nil)
	return h
}

// joinAt admits members to club 42 at Epoch+seconds.
func (h *harness) joinAt(t *testing.T, seconds int, members ...domain.MemberID) {
	t.Helper()
	h.clock.At(seconds)
	if _, _, err := h.registry.Join(t.Context(), 42, members); err != nil {
		t.Fatalf("join %v: %v", members, err)
	}
}
