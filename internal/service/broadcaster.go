package service

import (
	"context"
	"sync"
	"time"

	"github.com/vogiaan1904/consultroom/internal/models"
	"github.com/vogiaan1904/consultroom/pkg/logger"
)

const subscriberBuffer = 16

type broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]map[int]chan models.ClientUpdate
	nextID int
	l      logger.Logger
}

// NewBroadcaster fans client updates out to live WebSocket and gRPC streams.
// A slow subscriber loses updates instead of blocking the publisher.
func NewBroadcaster(l logger.Logger) Broadcaster {
	return &broadcaster{
		subs: make(map[string]map[int]chan models.ClientUpdate),
		l:    l,
	}
}

func (b *broadcaster) Subscribe(clientID string) (<-chan models.ClientUpdate, func()) {
	ch := make(chan models.ClientUpdate, subscriberBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[clientID] == nil {
		b.subs[clientID] = make(map[int]chan models.ClientUpdate)
	}
	b.subs[clientID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[clientID], id)
			if len(b.subs[clientID]) == 0 {
				delete(b.subs, clientID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *broadcaster) Publish(u models.ClientUpdate) {
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[u.ClientID] {
		select {
		case ch <- u:
		default:
			b.l.Debugf(context.Background(), "broadcaster.Publish: dropped %s update for client %s", u.Type, u.ClientID)
		}
	}
}
