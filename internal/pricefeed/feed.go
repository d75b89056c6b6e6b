// Package pricefeed generates the continuous bid/ask quote stream that all
// settlement reads price from. Quotes are rial per mithqal. The tick loop
// is the single writer; readers never block each other.
package pricefeed

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/zarrin/settlement-engine/internal/metrics"
	"github.com/zarrin/settlement-engine/internal/model"
)

// Config controls quote generation.
type Config struct {
	InitialBid int64         // rial per mithqal
	InitialAsk int64         // rial per mithqal, must exceed InitialBid
	Interval   time.Duration // base tick interval
	Jitter     int64         // max random walk per tick, rial
	MaxStepBp  int64         // anti-spike clamp, basis points of prior ask
	MinSpread  int64         // floor on ask-bid, rial
}

// DefaultConfig mirrors the production gold desk parameters.
func DefaultConfig() Config {
	return Config{
		InitialBid: 43_500_000,
		InitialAsk: 43_850_000,
		Interval:   4 * time.Second,
		Jitter:     60_000,
		MaxStepBp:  200, // 2% of prior ask
		MinSpread:  50_000,
	}
}

// Feed owns the latest quote and fans ticks out to subscribers. The tick
// goroutine is the only writer; CurrentQuote takes a read lock only.
type Feed struct {
	cfg Config

	mu      sync.RWMutex
	latest  model.Quote
	baseBid int64 // walked value before admin premium
	baseAsk int64

	subMu sync.Mutex
	subs  []chan model.Quote

	adjMu  sync.Mutex
	bidAdj int64 // admin premium applied to generated bids
	askAdj int64 // admin premium applied to generated asks
}

// New creates a feed seeded with the configured initial quote.
// The feed does not tick until Run is called.
func New(cfg Config) *Feed {
	f := &Feed{
		cfg:     cfg,
		baseBid: cfg.InitialBid,
		baseAsk: cfg.InitialAsk,
	}
	f.latest = model.Quote{
		Bid:       cfg.InitialBid,
		Ask:       cfg.InitialAsk,
		Seq:       0,
		Timestamp: time.Now(),
	}
	return f
}

// CurrentQuote returns the latest emitted quote.
func (f *Feed) CurrentQuote() model.Quote {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.latest
}

// Subscribe returns an infinite stream of quotes. The channel is never
// closed while the feed runs and the subscription is not restartable.
// Slow consumers miss ticks rather than blocking the feed.
func (f *Feed) Subscribe() <-chan model.Quote {
	ch := make(chan model.Quote, 16)
	f.subMu.Lock()
	f.subs = append(f.subs, ch)
	f.subMu.Unlock()
	return ch
}

// SetAdjustment sets the admin premium added to every subsequent tick.
// Used by the pricing desk to widen or shift the spread manually.
func (f *Feed) SetAdjustment(bidAdj, askAdj int64) {
	f.adjMu.Lock()
	f.bidAdj = bidAdj
	f.askAdj = askAdj
	f.adjMu.Unlock()
	slog.Info("price adjustment set", "bid_adj", bidAdj, "ask_adj", askAdj)
}

// Run drives the tick loop until the context is cancelled.
// Must be called in a goroutine, at most once.
func (f *Feed) Run(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.tick()
		}
	}
}

// tick produces the next quote: a jittered random walk with each side
// clamped to MaxStepBp of the prior ask so a bad tick can never move the
// market far enough to settle trades at an outlier price.
func (f *Feed) tick() {
	f.mu.Lock()
	prev := f.latest

	maxStep := f.baseAsk * f.cfg.MaxStepBp / 10_000

	// Walk the unadjusted base so the admin premium never compounds.
	f.baseBid += clamp(walk(f.cfg.Jitter), maxStep)
	f.baseAsk += clamp(walk(f.cfg.Jitter), maxStep)

	f.adjMu.Lock()
	bid := f.baseBid + f.bidAdj
	ask := f.baseAsk + f.askAdj
	f.adjMu.Unlock()

	// Spread stays strictly positive.
	if ask-bid < f.cfg.MinSpread {
		ask = bid + f.cfg.MinSpread
	}

	q := model.Quote{
		Bid:       bid,
		Ask:       ask,
		Seq:       prev.Seq + 1,
		Timestamp: time.Now(), // monotonic reading guarantees ordering
	}
	f.latest = q
	f.mu.Unlock()

	metrics.QuoteTicks.Inc()
	f.publish(q)
}

func (f *Feed) publish(q model.Quote) {
	f.subMu.Lock()
	defer f.subMu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- q:
		default:
			// Drop for slow subscribers; the next tick supersedes anyway.
		}
	}
}

// walk returns a uniform step in [-jitter, +jitter].
func walk(jitter int64) int64 {
	if jitter <= 0 {
		return 0
	}
	return rand.Int64N(2*jitter+1) - jitter
}

// clamp bounds a delta to [-maxStep, +maxStep].
func clamp(delta, maxStep int64) int64 {
	if delta > maxStep {
		return maxStep
	}
	if delta < -maxStep {
		return -maxStep
	}
	return delta
}
