package memory

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"sync"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

// SignalBus is an in-process domain.SignalBus used when redis is disabled.
// Slow subscribers drop messages rather than block publishers.
type SignalBus struct {
	mu      sync.RWMutex
	subs    map[int]subscription
	nextSub int
	streams map[string][]domain.StreamMessage
	seq     int64
	maxLen  int
}

type subscription struct {
	pattern string
	ch      chan []byte
}

func NewSignalBus(maxLen int) *SignalBus {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &SignalBus{
		subs:    make(map[int]subscription),
		streams: make(map[string][]domain.StreamMessage),
		maxLen:  maxLen,
	}
}

func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if ok, _ := path.Match(s.pattern, channel); !ok {
			continue
		}
		msg := append([]byte(nil), payload...)
		select {
		case s.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe accepts glob patterns. The channel closes when ctx is done.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if _, err := path.Match(channel, ""); err != nil {
		return nil, fmt.Errorf("memory: subscribe %s: %w", channel, domain.ErrInvalidInput)
	}
	ch := make(chan []byte, 128)

	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = subscription{pattern: channel, ch: ch}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}

func (b *SignalBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	msgs := append(b.streams[stream], domain.StreamMessage{
		ID:      strconv.FormatInt(b.seq, 10) + "-0",
		Payload: append([]byte(nil), payload...),
	})
	if len(msgs) > b.maxLen {
		msgs = msgs[len(msgs)-b.maxLen:]
	}
	b.streams[stream] = msgs
	return nil
}

// StreamRead returns up to count entries with an id after lastID.
func (b *SignalBus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	after, err := streamSeq(lastID)
	if err != nil {
		return nil, fmt.Errorf("memory: stream read %s: %w", stream, domain.ErrInvalidInput)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []domain.StreamMessage
	for _, m := range b.streams[stream] {
		seq, _ := streamSeq(m.ID)
		if seq <= after {
			continue
		}
		out = append(out, m)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}

func streamSeq(id string) (int64, error) {
	if id == "" || id == "0" || id == "0-0" {
		return 0, nil
	}
	for i := 0; i < len(id); i++ {
		if id[i] == '-' {
			id = id[:i]
			break
		}
	}
	return strconv.ParseInt(id, 10, 64)
}
