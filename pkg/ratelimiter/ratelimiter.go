package ratelimiter

import (
	"math"
	"sync"
	"time"
)

// RateLimiter is the interface sender loops call before each transmission.
// The zero-cost implementation never blocks.
type RateLimiter interface {
	Take(n float64)
	Peek() float64
}

// Unlimited is a RateLimiter that never blocks.
type Unlimited struct{}

func (Unlimited) Take(n float64) {}
func (Unlimited) Peek() float64  { return math.Inf(1) }

// TokenBucket is a blocking token bucket shared by all sender goroutines.
//
// The bucket fills at a fixed rate up to a maximum capacity. Take removes
// tokens and, when the balance goes negative, sleeps until the bucket has
// filled back in. Callers queue FIFO on the wait lock: the first caller to
// block is the first to be released.
type TokenBucket struct {
	capacity float64
	rate     float64

	// waitMu serialises sleepers, varMu guards the balance. Sleeping with
	// only waitMu held lets Peek run while a taker waits for a refill.
	waitMu    sync.Mutex
	varMu     sync.Mutex
	tokens    float64
	timestamp time.Time

	// nowFunc is split off for tests.
	nowFunc func() time.Time
	sleep   func(time.Duration)
}

// NewTokenBucket creates a bucket holding at most capacity tokens that
// refills at rate tokens per second. The bucket starts full.
func NewTokenBucket(capacity int, rate float64) *TokenBucket {
	b := &TokenBucket{
		capacity: float64(capacity),
		rate:     rate,
		tokens:   float64(capacity),
		nowFunc:  time.Now,
		sleep:    time.Sleep,
	}
	b.timestamp = b.nowFunc()
	return b
}

func (b *TokenBucket) refill() {
	now := b.nowFunc()
	elapsed := now.Sub(b.timestamp).Seconds()
	b.tokens = math.Min(b.tokens+b.rate*elapsed, b.capacity)
	b.timestamp = now
}

// Take removes n tokens, waiting for the bucket to fill back in when the
// balance goes negative. Concurrent takers are released in FIFO order of
// their arrival on the wait lock.
func (b *TokenBucket) Take(n float64) {
	b.waitMu.Lock()
	defer b.waitMu.Unlock()

	b.varMu.Lock()
	b.refill()
	b.tokens -= n
	debt := -b.tokens
	b.varMu.Unlock()

	if debt > 0 {
		b.sleep(time.Duration(debt / b.rate * float64(time.Second)))
	}
}

// Peek returns the current token balance after a refill, without consuming.
func (b *TokenBucket) Peek() float64 {
	b.varMu.Lock()
	defer b.varMu.Unlock()
	b.refill()
	return b.tokens
}

// RateMeter measures an observed event rate with an exponentially weighted
// moving average over fixed windows.
type RateMeter struct {
	alpha  float64
	window float64

	mu          sync.Mutex
	currentRate float64
	lastWindow  int64
	counter     uint64

	nowFunc func() time.Time
}

// NewRateMeter creates a meter with smoothing factor alpha in (0,1) and a
// window length in seconds.
func NewRateMeter(alpha float64, window float64) *RateMeter {
	m := &RateMeter{
		alpha:   alpha,
		window:  window,
		nowFunc: time.Now,
	}
	m.lastWindow = m.windowIndex()
	return m
}

func (m *RateMeter) windowIndex() int64 {
	return int64(float64(m.nowFunc().UnixNano()) / float64(time.Second) / m.window)
}

func (m *RateMeter) update() {
	currentWindow := m.windowIndex()
	if currentWindow <= m.lastWindow {
		return
	}
	skipped := currentWindow - m.lastWindow
	alpha, beta := m.alpha, 1-m.alpha
	m.currentRate = math.Pow(beta, float64(skipped-1)) *
		(beta*m.currentRate + alpha*(float64(m.counter)/m.window))
	m.counter = 0
	m.lastWindow = currentWindow
}

// CountUp records n events in the current window.
func (m *RateMeter) CountUp(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.update()
	m.counter += n
}

// CurrentRate returns the smoothed rate in events per second.
func (m *RateMeter) CurrentRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.update()
	return m.currentRate
}
