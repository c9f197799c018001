package mongostore

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/daijir/scripture-habit/internal/store"
)

type watcher struct {
	target store.Target
	signal chan struct{}
}

// interested reports whether a write to path can change the watcher's result.
func (w *watcher) interested(path string) bool {
	if w.target.Query != nil {
		return store.Parent(path) == w.target.Query.Collection
	}
	return w.target.Path == path
}

func (w *watcher) wake() {
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// changeFeed is a single shared Redis listener per instance fanning change
// notifications out to local watchers.
type changeFeed struct {
	client *redis.Client

	mu       sync.RWMutex
	watchers map[int64]*watcher
	nextID   int64
	started  sync.Once
}

func newChangeFeed(client *redis.Client) *changeFeed {
	return &changeFeed{client: client, watchers: make(map[int64]*watcher)}
}

func (f *changeFeed) add(w *watcher) int64 {
	f.started.Do(func() {
		if f.client == nil {
			log.Println("mongostore: Redis client not initialized; subscriptions will not receive live updates")
			return
		}
		go f.run(context.Background())
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.watchers[f.nextID] = w
	return f.nextID
}

func (f *changeFeed) remove(id int64) {
	f.mu.Lock()
	delete(f.watchers, id)
	f.mu.Unlock()
}

func (f *changeFeed) dispatch(path string) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, w := range f.watchers {
		if w.interested(path) {
			w.wake()
		}
	}
}

// wakeAll forces every watcher to re-read, used after the listener reconnects
// since changes published while disconnected were lost.
func (f *changeFeed) wakeAll() {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, w := range f.watchers {
		w.wake()
	}
}

func (f *changeFeed) run(ctx context.Context) {
	backoff := time.Second
	reconnect := false

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		func() {
			pubsub := f.client.PSubscribe(ctx, changeChannelPrefix+"*")
			defer pubsub.Close()

			log.Printf("✅ Store change feed started (pattern: %s*)", changeChannelPrefix)
			if reconnect {
				f.wakeAll()
			}
			reconnect = true

			for {
				msg, err := pubsub.ReceiveMessage(ctx)
				if err != nil {
					log.Printf("Store change feed error: %v", err)
					time.Sleep(backoff)
					backoff *= 2
					if backoff > 30*time.Second {
						backoff = 30 * time.Second
					}
					return
				}

				backoff = time.Second
				if !strings.HasPrefix(msg.Channel, changeChannelPrefix) {
					continue
				}
				f.dispatch(msg.Payload)
			}
		}()
	}
}
