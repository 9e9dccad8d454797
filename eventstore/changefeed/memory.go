package changefeed

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// MemoryPublisher keeps published notifications in memory and optionally forwards them to a channel.
type MemoryPublisher struct {
	mu            sync.Mutex
	notifications []Notification
	ch            chan Notification
}

// NewMemoryPublisher creates a MemoryPublisher. With buffer > 0, notifications are also sent to C();
// when the channel is full, the notification is only recorded.
func NewMemoryPublisher(buffer int) *MemoryPublisher {
	p := &MemoryPublisher{notifications: make([]Notification, 0)}
	if buffer > 0 {
		p.ch = make(chan Notification, buffer)
	}

	return p
}

// Publish implements Publisher.
func (p *MemoryPublisher) Publish(ctx context.Context, notification Notification) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(ErrPublishFailed, err)
	}

	p.mu.Lock()
	p.notifications = append(p.notifications, notification)
	p.mu.Unlock()

	if p.ch != nil {
		select {
		case p.ch <- notification:
		default:
		}
	}

	return nil
}

// C returns the notification channel, nil if the publisher was created without a buffer.
func (p *MemoryPublisher) C() <-chan Notification {
	return p.ch
}

// Notifications returns a copy of all published notifications in publish order.
func (p *MemoryPublisher) Notifications() []Notification {
	p.mu.Lock()
	defer p.mu.Unlock()

	return slices.Clone(p.notifications)
}

// Compile-time checks
var (
	_ Publisher = (*MemoryPublisher)(nil)
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = (*NATSPublisher)(nil)
)
