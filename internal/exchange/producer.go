package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/market"
	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/stream"
)

var errFeedStopped = errors.New("price feed stopped")

const defaultIdleWait = 250 * time.Millisecond

// DefaultBacklog sizes the feed channel when NewPriceProducer gets no backlog.
const DefaultBacklog = 256

// PriceProducer runs a Feed in the background and hands its ticks out one at a
// time as price_tick events.
type PriceProducer struct {
	sourceID string
	feed     *Feed
	backlog  int
	idleWait time.Duration

	mu     sync.Mutex
	ticks  chan market.Tick
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewPriceProducer wraps feed. backlog sizes the channel between the feed and
// ProduceOne.
func NewPriceProducer(sourceID string, feed *Feed, backlog int) *PriceProducer {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	return &PriceProducer{
		sourceID: sourceID,
		feed:     feed,
		backlog:  backlog,
		idleWait: defaultIdleWait,
	}
}

// Backlog is the capacity of the channel between the feed and ProduceOne.
func (p *PriceProducer) Backlog() int { return p.backlog }

// Connect launches the feed. It is a no-op while the feed is running; a feed
// that has already exited is replaced.
func (p *PriceProducer) Connect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		select {
		case <-p.done:
			p.cancel()
		default:
			return nil
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	ticks := make(chan market.Tick, p.backlog)
	done := make(chan struct{})
	p.ticks, p.cancel, p.done, p.err = ticks, cancel, done, nil

	go func() {
		err := p.feed.Run(runCtx, ticks)
		if err == nil || errors.Is(err, context.Canceled) {
			err = errFeedStopped
		}
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(done)
	}()
	return nil
}

// Disconnect cancels the feed and waits for it to return.
func (p *PriceProducer) Disconnect() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// ProduceOne returns the next tick, nothing after a short idle wait, or the
// feed's terminal error once it has exited.
func (p *PriceProducer) ProduceOne(ctx context.Context) (*stream.Event, error) {
	p.mu.Lock()
	ticks, done := p.ticks, p.done
	p.mu.Unlock()
	if ticks == nil {
		return nil, fmt.Errorf("%s: not connected", p.sourceID)
	}

	timer := time.NewTimer(p.idleWait)
	defer timer.Stop()
	select {
	case tk := <-ticks:
		ev := stream.NewEvent(p.sourceID, market.EventPriceTick, tk.Ts, tk.Data()).
			WithMetadata(map[string]any{"provider": p.feed.Provider()})
		return &ev, nil
	case <-done:
		p.mu.Lock()
		err := p.err
		p.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", p.sourceID, err)
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
