package realtime

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	logger "github.com/asterixix/tecza/internal/logging"
	"github.com/asterixix/tecza/internal/store"
)

const (
	PollingInitialInterval   = 1 * time.Second
	PollingMaxBackoff        = 15 * time.Second
	PollingBackoffMultiplier = 1.5
	PollingJitterFactor      = 0.3
)

// Config configures a Poller. Zero durations take the package defaults.
type Config struct {
	Messages        store.MessageStore
	InitialInterval time.Duration
	MaxBackoff      time.Duration
	Logger          logger.Logger
}

// Poller turns a MessageStore into a ChangeFeed by polling MessagesSince
// for each subscribed conversation. Each subscription polls in its own
// goroutine and backs off while nothing changes.
type Poller struct {
	messages store.MessageStore
	initial  time.Duration
	max      time.Duration
	log      logger.Logger

	mu      sync.Mutex
	nextID  uint64
	cancels map[uint64]context.CancelFunc
	wg      sync.WaitGroup
}

var _ store.ChangeFeed = (*Poller)(nil)

// NewPoller creates a Poller over cfg.Messages.
func NewPoller(cfg Config) *Poller {
	p := &Poller{
		messages: cfg.Messages,
		initial:  cfg.InitialInterval,
		max:      cfg.MaxBackoff,
		log:      cfg.Logger,
		cancels:  make(map[uint64]context.CancelFunc),
	}
	if p.initial <= 0 {
		p.initial = PollingInitialInterval
	}
	if p.max <= 0 {
		p.max = PollingMaxBackoff
	}
	if p.max < p.initial {
		p.max = p.initial
	}
	return p
}

// Subscribe starts polling conversationID and delivers every message
// inserted after the call, in sequence order. The channel is closed when
// ctx is done or Stop is called.
func (p *Poller) Subscribe(ctx context.Context, conversationID uuid.UUID) (<-chan store.Message, error) {
	existing, err := p.messages.Messages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation position: %w", err)
	}
	var lastSeq int64
	if n := len(existing); n > 0 {
		lastSeq = existing[n-1].Seq
	}

	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.cancels[id] = cancel
	p.mu.Unlock()

	ch := make(chan store.Message)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(ch)
		defer p.release(id)
		p.pollLoop(ctx, conversationID, lastSeq, ch)
	}()

	p.log.Debugf("Polling conversation %s from sequence %d", conversationID, lastSeq)
	return ch, nil
}

// Stop cancels every subscription and waits for their goroutines to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	for id, cancel := range p.cancels {
		cancel()
		delete(p.cancels, id)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// release cancels subscription id and forgets it.
func (p *Poller) release(id uint64) {
	p.mu.Lock()
	cancel, ok := p.cancels[id]
	delete(p.cancels, id)
	p.mu.Unlock()
	if ok {
		cancel()
	}
}

func (p *Poller) active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cancels)
}

func (p *Poller) pollLoop(ctx context.Context, conversationID uuid.UUID, lastSeq int64, out chan<- store.Message) {
	interval := p.initial
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.waitDuration(interval)):
		}

		msgs, err := p.messages.MessagesSince(ctx, conversationID, lastSeq)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Debugf("Polling conversation %s failed: %v", conversationID, err)
			interval = p.nextInterval(interval)
			continue
		}

		if len(msgs) == 0 {
			interval = p.nextInterval(interval)
			continue
		}

		interval = p.initial
		for _, msg := range msgs {
			select {
			case out <- msg:
				lastSeq = msg.Seq
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Poller) nextInterval(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * PollingBackoffMultiplier)
	if next > p.max {
		next = p.max
	}
	return next
}

// waitDuration applies up to PollingJitterFactor of jitter in either
// direction so subscribers started together do not poll in lockstep.
func (p *Poller) waitDuration(interval time.Duration) time.Duration {
	jitter := (rand.Float64()*2 - 1) * PollingJitterFactor * float64(interval)
	return interval + time.Duration(jitter)
}
