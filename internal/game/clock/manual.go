package clock

import (
	"sync"
	"time"
)

// ManualClock 手动推进的时钟，用于确定性测试
// 回调在 Advance 的调用者 goroutine 上执行，执行期间不持有锁，回调内可以继续注册或取消定时器
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers map[*manualTimer]struct{}
}

type manualTimer struct {
	clock  *ManualClock
	at     time.Time
	period time.Duration
	seq    uint64
	f      func()
}

// NewManualClock 创建手动时钟
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{
		now:    start,
		timers: make(map[*manualTimer]struct{}),
	}
}

// Now 当前时间
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc 在 d 之后执行一次 f
func (c *ManualClock) AfterFunc(d time.Duration, f func()) Timer {
	return c.add(d, 0, f)
}

// Every 每隔 d 执行一次 f
func (c *ManualClock) Every(d time.Duration, f func()) Timer {
	if d <= 0 {
		d = time.Millisecond
	}
	return c.add(d, d, f)
}

func (c *ManualClock) add(d, period time.Duration, f func()) *manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d < 0 {
		d = 0
	}
	c.seq++
	t := &manualTimer{clock: c, at: c.now.Add(d), period: period, seq: c.seq, f: f}
	c.timers[t] = struct{}{}
	return t
}

// Advance 推进时间，按到期顺序执行期间所有到期的回调
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		t := c.nextDue(target)
		if t == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = t.at
		if t.period > 0 {
			t.at = t.at.Add(t.period)
		} else {
			delete(c.timers, t)
		}
		f := t.f
		c.mu.Unlock()

		f()
	}
}

// Pending 等待中的定时器数量
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// nextDue 返回最早到期的定时器，调用方需持有锁
func (c *ManualClock) nextDue(target time.Time) *manualTimer {
	var next *manualTimer
	for t := range c.timers {
		if t.at.After(target) {
			continue
		}
		if next == nil || t.at.Before(next.at) || (t.at.Equal(next.at) && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if _, ok := t.clock.timers[t]; !ok {
		return false
	}
	delete(t.clock.timers, t)
	return true
}
