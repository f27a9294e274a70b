// Package reel 卷轴编排：每个卷轴的刷新节拍、错峰停轮和展示用的转动动力学
package reel

import (
	"errors"
	"time"
)

var ErrInvalidTiming = errors.New("无效的卷轴时间配置")

// Timing 卷轴时间参数
type Timing struct {
	BaseDelay  time.Duration `mapstructure:"base_delay" json:"base_delay" yaml:"base_delay"`    // 第一个卷轴的停轮延迟
	Stagger    time.Duration `mapstructure:"stagger" json:"stagger" yaml:"stagger"`             // 相邻卷轴的停轮间隔
	JitterMax  time.Duration `mapstructure:"jitter_max" json:"jitter_max" yaml:"jitter_max"`    // 停轮抖动上限（不含）
	RedrawBase time.Duration `mapstructure:"redraw_base" json:"redraw_base" yaml:"redraw_base"` // 第一个卷轴的刷新周期
	RedrawStep time.Duration `mapstructure:"redraw_step" json:"redraw_step" yaml:"redraw_step"` // 每个卷轴增加的刷新周期
}

// DefaultTiming 默认时间参数
func DefaultTiming() Timing {
	return Timing{
		BaseDelay:  1100 * time.Millisecond,
		Stagger:    220 * time.Millisecond,
		JitterMax:  200 * time.Millisecond,
		RedrawBase: 80 * time.Millisecond,
		RedrawStep: 12 * time.Millisecond,
	}
}

// Validate 验证时间参数
func (t Timing) Validate() error {
	// 错开间隔必须为正，卷轴才会自左向右停轮
	if t.BaseDelay <= 0 || t.RedrawBase <= 0 || t.Stagger <= 0 {
		return ErrInvalidTiming
	}
	if t.JitterMax < 0 || t.RedrawStep < 0 {
		return ErrInvalidTiming
	}
	return nil
}

// RedrawInterval 第 i 个卷轴的刷新周期
func (t Timing) RedrawInterval(i int) time.Duration {
	return t.RedrawBase + time.Duration(i)*t.RedrawStep
}

// StopDelay 第 i 个卷轴从开始到停轮的延迟
func (t Timing) StopDelay(i int, jitter time.Duration) time.Duration {
	return t.BaseDelay + time.Duration(i)*t.Stagger + jitter
}

// MaxStopDelay 最后一个卷轴可能的最晚停轮时间
func (t Timing) MaxStopDelay(reels int) time.Duration {
	if reels <= 0 {
		return 0
	}
	jitter := t.JitterMax - time.Millisecond
	if jitter < 0 {
		jitter = 0
	}
	return t.StopDelay(reels-1, jitter)
}
