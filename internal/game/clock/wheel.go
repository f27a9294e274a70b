package clock

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/RussellLuo/timingwheel"
)

const (
	// DefaultTick 默认时间轮刻度
	DefaultTick = 5 * time.Millisecond
	// DefaultWheelSize 默认时间轮槽位数
	DefaultWheelSize int64 = 64
)

// WheelClock 基于分层时间轮的时钟
// 所有会话共享一个时间轮
type WheelClock struct {
	tw      *timingwheel.TimingWheel
	once    sync.Once
	stopped atomic.Bool
}

// NewWheelClock 创建时间轮时钟，tick 小于1毫秒时使用默认值
func NewWheelClock(tick time.Duration, wheelSize int64) *WheelClock {
	if tick < time.Millisecond {
		tick = DefaultTick
	}
	if wheelSize <= 0 {
		wheelSize = DefaultWheelSize
	}
	return &WheelClock{tw: timingwheel.NewTimingWheel(tick, wheelSize)}
}

// Start 启动时间轮
func (c *WheelClock) Start() {
	c.once.Do(c.tw.Start)
}

// Stop 停止时间轮，之后到期的任务不再执行
func (c *WheelClock) Stop() {
	if c.stopped.CompareAndSwap(false, true) {
		c.tw.Stop()
	}
}

// Now 当前时间
func (c *WheelClock) Now() time.Time {
	return time.Now()
}

// AfterFunc 在 d 之后执行一次 f
func (c *WheelClock) AfterFunc(d time.Duration, f func()) Timer {
	return c.tw.AfterFunc(d, f)
}

// Every 每隔 d 执行一次 f
func (c *WheelClock) Every(d time.Duration, f func()) Timer {
	t := &everyTimer{}
	s := everyScheduler{interval: d, stopped: &t.stopped}
	t.inner = c.tw.ScheduleFunc(s, func() {
		if !t.stopped.Load() {
			f()
		}
	})
	return t
}

// everyScheduler 固定间隔调度，停止后返回零值结束调度
type everyScheduler struct {
	interval time.Duration
	stopped  *atomic.Bool
}

func (s everyScheduler) Next(prev time.Time) time.Time {
	if s.stopped.Load() {
		return time.Time{}
	}
	return prev.Add(s.interval)
}

// everyTimer 周期定时器
// 周期任务执行时会重新入队，Stop 之后由标志位拦截残留的执行
type everyTimer struct {
	inner   *timingwheel.Timer
	stopped atomic.Bool
}

func (t *everyTimer) Stop() bool {
	if !t.stopped.CompareAndSwap(false, true) {
		return false
	}
	if t.inner != nil {
		t.inner.Stop()
	}
	return true
}
