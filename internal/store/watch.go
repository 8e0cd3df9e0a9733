package store

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/voyagen/streamshelf/internal/models"
)

// notifier fans commit signals out to subscribers. Each subscriber holds at most
// one pending signal, so bursts of writes coalesce into a single re-read.
type notifier struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[chan struct{}]struct{})}
}

func (n *notifier) subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	n.subs[ch] = struct{}{}
	n.mu.Unlock()
	return ch, func() {
		n.mu.Lock()
		delete(n.subs, ch)
		n.mu.Unlock()
	}
}

func (n *notifier) notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// WatchPlaylists emits the full playlist list immediately and again after every
// committed write. The channel closes when ctx is done.
func (s *SQLStore) WatchPlaylists(ctx context.Context) <-chan []models.Playlist {
	return watch(ctx, s, s.Playlists)
}

func watch[T any](ctx context.Context, s *SQLStore, query func(context.Context) (T, error)) <-chan T {
	out := make(chan T, 1)
	// Subscribe before the first read so no commit in between is missed.
	signal, cancel := s.changes.subscribe()
	go func() {
		defer close(out)
		defer cancel()
		for {
			v, err := query(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("watch query failed", zap.Error(err))
			} else {
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-signal:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
