package testutil

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"clubing-chat/internal/domain"
)

var idCounter atomic.Int64

// NewMemberID returns a unique member id.
func NewMemberID() domain.MemberID {
	return domain.MemberID(fmt.Sprintf("member-%d", idCounter.Add(1)))
}

// Epoch is the t=0 used by time-sensitive fixtures.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// FakeClock is a manually advanced clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// At moves the clock to Epoch plus the given number of seconds.
func (c *FakeClock) At(seconds int) {
	c.Set(Epoch.Add(time.Duration(seconds) * time.Second))
}

// MessageOptions allows customizing message fixture creation
type MessageOptions struct {
	ClubID    domain.ClubID
	SenderID  domain.MemberID
	Content   string
	Images    []domain.ImageRef
	CreatedAt time.Time
}

// NewTestMessage creates a message with sensible defaults
func NewTestMessage(opts ...func(*MessageOptions)) *domain.Message {
	o := &MessageOptions{
		ClubID:    42,
		SenderID:  NewMemberID(),
		Content:   "Hello, club!",
		CreatedAt: time.Now(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return &domain.Message{
		ClubID:    o.ClubID,
		SenderID:  o.SenderID,
		Content:   o.Content,
		Images:    o.Images,
		CreatedAt: o.CreatedAt,
	}
}

func WithClub(clubID domain.ClubID) func(*MessageOptions) {
	return func(o *MessageOptions) { o.ClubID = clubID }
}

func WithSender(memberID domain.MemberID) func(*MessageOptions) {
	return func(o *MessageOptions) { o.SenderID = memberID }
}

func WithContent(content string) func(*MessageOptions) {
	return func(o *MessageOptions) { o.Content = content }
}

func WithImages(images ...domain.ImageRef) func(*MessageOptions) {
	return func(o *MessageOptions) { o.Images = images }
}

// WithSecond stamps the message at Epoch plus seconds.
func WithSecond(seconds int) func(*MessageOptions) {
	return func(o *MessageOptions) { o.CreatedAt = Epoch.Add(time.Duration(seconds) * time.Second) }
}
