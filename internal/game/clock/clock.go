// Package clock 提供会话和转轮使用的时钟抽象
//
// 生产环境使用基于时间轮的 WheelClock，测试使用可手动推进的 ManualClock。
package clock

import "time"

// Timer 可取消的定时器
type Timer interface {
	// Stop 取消定时器，定时器仍处于等待状态时返回 true
	Stop() bool
}

// Clock 时钟
type Clock interface {
	// Now 当前时间
	Now() time.Time
	// AfterFunc 在 d 之后执行一次 f
	AfterFunc(d time.Duration, f func()) Timer
	// Every 每隔 d 执行一次 f，直到定时器被停止
	Every(d time.Duration, f func()) Timer
}
