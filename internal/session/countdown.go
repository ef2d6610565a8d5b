package session

import (
	"sync"
	"time"
)

// Countdown reports the remaining interview time every tick and fires its
// expiry callback exactly once when the time runs out.
type Countdown struct {
	total time.Duration
	tick  time.Duration

	mu        sync.Mutex
	remaining time.Duration
	running   bool
	expired   bool
	stop      chan struct{}
	onTick    func(remaining time.Duration)
	onExpire  func()
}

func NewCountdown(total, tick time.Duration) *Countdown {
	if tick <= 0 {
		tick = time.Second
	}
	if total < 0 {
		total = 0
	}
	return &Countdown{total: total, tick: tick, remaining: total}
}

func (c *Countdown) OnTick(callback func(remaining time.Duration)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTick = callback
}

func (c *Countdown) OnExpire(callback func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onExpire = callback
}

// Start begins ticking. Calling it again, or after Stop, does nothing.
func (c *Countdown) Start() {
	c.mu.Lock()
	if c.running || c.expired || c.stop != nil {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stop = make(chan struct{})
	stop := c.stop
	c.mu.Unlock()

	go c.loop(stop)
}

func (c *Countdown) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if !c.running {
			c.mu.Unlock()
			return
		}
		c.remaining -= c.tick
		if c.remaining < 0 {
			c.remaining = 0
		}
		remaining := c.remaining
		tickCallback := c.onTick
		var expireCallback func()
		if remaining == 0 {
			c.running = false
			c.expired = true
			expireCallback = c.onExpire
		}
		c.mu.Unlock()

		if tickCallback != nil {
			tickCallback(remaining)
		}
		if remaining == 0 {
			if expireCallback != nil {
				expireCallback()
			}
			return
		}
	}
}

// Stop halts ticking; no callback fires afterwards.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop == nil {
		c.stop = make(chan struct{})
		close(c.stop)
		return
	}
	if c.running {
		c.running = false
		close(c.stop)
	}
}

func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}
