package reel

import (
	"errors"
	"time"

	"github.com/wfunc/neon-reels/internal/game/clock"
	"github.com/wfunc/neon-reels/internal/game/slot"
	"go.uber.org/zap"
)

// Phase 卷轴阶段
type Phase string

const (
	PhaseIdle     Phase = "idle"     // 静止
	PhaseSpinning Phase = "spinning" // 转动中，按周期刷新
	PhaseSettling Phase = "settling" // 停轮中，抽取最终符号
	PhaseStopped  Phase = "stopped"  // 已停止，等待本轮结算
)

var (
	ErrNoClock     = errors.New("缺少时钟")
	ErrNoGenerator = errors.New("缺少网格生成器")
	ErrNoDispatch  = errors.New("缺少事件派发函数")
	ErrBadShape    = errors.New("卷轴数和行数必须为正数")
)

// Jitter 停轮抖动来源
type Jitter interface {
	Next(max time.Duration) time.Duration
}

// ReportFunc 卷轴事件回调
type ReportFunc func(spinID uint64, reel int, row slot.Row)

// Config 编排器配置
type Config struct {
	Clock     clock.Clock
	Generator *slot.Generator
	Jitter    Jitter
	Timing    Timing
	Reels     int
	Rows      int
	Logger    *zap.Logger

	// Post 把定时器回调投递到所属会话的事件循环
	Post func(func())
	// OnRedraw 转动中的卷轴刷新了一次符号
	OnRedraw ReportFunc
	// OnStop 卷轴停轮并给出最终符号
	OnStop ReportFunc
}

// View 卷轴只读视图
type View struct {
	Index    int      `json:"index"`
	Phase    Phase    `json:"phase"`
	Row      slot.Row `json:"row"`
	Dynamics Dynamics `json:"dynamics"`
}

type reelState struct {
	phase    Phase
	row      slot.Row
	dynamics Dynamics
	redraw   clock.Timer
	stop     clock.Timer
}

// Choreographer 多卷轴编排器
//
// 每个卷轴持有一个刷新定时器和一个停轮定时器，都由本次旋转的令牌标记。
// 定时器回调经 Post 回到事件循环后先校验令牌，过期的回调直接丢弃。
// 除构造函数外，所有方法只能在所属事件循环中调用。
type Choreographer struct {
	cfg      Config
	logger   *zap.Logger
	reels    []*reelState
	spinID   uint64
	lastStep time.Time
}

// NewChoreographer 创建编排器，初始网格随机生成
func NewChoreographer(cfg Config) (*Choreographer, error) {
	switch {
	case cfg.Clock == nil:
		return nil, ErrNoClock
	case cfg.Generator == nil:
		return nil, ErrNoGenerator
	case cfg.Post == nil:
		return nil, ErrNoDispatch
	case cfg.Reels <= 0 || cfg.Rows <= 0:
		return nil, ErrBadShape
	}
	if err := cfg.Timing.Validate(); err != nil {
		return nil, err
	}
	if cfg.Jitter == nil {
		cfg.Jitter = slot.NewJitterSource(slot.NewCryptoRandomGenerator())
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Choreographer{
		cfg:      cfg,
		logger:   logger,
		reels:    make([]*reelState, cfg.Reels),
		lastStep: cfg.Clock.Now(),
	}
	for i := range c.reels {
		c.reels[i] = &reelState{phase: PhaseIdle, row: cfg.Generator.BuildRow(cfg.Rows)}
	}
	return c, nil
}

// Start 以新令牌启动所有卷轴，之前的定时器全部取消
func (c *Choreographer) Start(spinID uint64) {
	c.Cancel()
	c.Advance()
	c.spinID = spinID

	for i, r := range c.reels {
		r.phase = PhaseSpinning
		r.dynamics.Start(i)

		r.redraw = c.cfg.Clock.Every(c.cfg.Timing.RedrawInterval(i), func() {
			c.cfg.Post(func() { c.redraw(spinID, i) })
		})

		jitter := c.cfg.Jitter.Next(c.cfg.Timing.JitterMax)
		delay := c.cfg.Timing.StopDelay(i, jitter)
		r.stop = c.cfg.Clock.AfterFunc(delay, func() {
			c.cfg.Post(func() { c.stopReel(spinID, i) })
		})

		c.logger.Debug("卷轴开始转动",
			zap.Uint64("spin_id", spinID),
			zap.Int("reel", i),
			zap.Duration("stop_delay", delay))
	}
}

// Cancel 取消所有卷轴定时器，转动中的卷轴回到静止
// 已投递但尚未执行的回调会因令牌失效被丢弃
func (c *Choreographer) Cancel() {
	for _, r := range c.reels {
		c.stopTimers(r)
		if r.phase == PhaseSpinning || r.phase == PhaseSettling {
			r.phase = PhaseIdle
		}
	}
	c.spinID = 0
}

// Settle 本轮结束：卷轴回到静止并复位动力学
func (c *Choreographer) Settle() {
	for _, r := range c.reels {
		c.stopTimers(r)
		r.phase = PhaseIdle
		r.dynamics.Settle()
	}
	c.spinID = 0
	c.lastStep = c.cfg.Clock.Now()
}

// SpinID 当前令牌，0 表示没有进行中的旋转
func (c *Choreographer) SpinID() uint64 {
	return c.spinID
}

// Advance 按时钟推进动力学
func (c *Choreographer) Advance() {
	now := c.cfg.Clock.Now()
	elapsed := now.Sub(c.lastStep)
	c.lastStep = now
	if elapsed <= 0 {
		return
	}

	// 按帧积分，避免一次大步长跳过下限
	const frame = 16 * time.Millisecond
	for elapsed > 0 {
		step := frame
		if elapsed < step {
			step = elapsed
		}
		for i, r := range c.reels {
			r.dynamics.Step(i, r.phase == PhaseSpinning, step.Seconds())
		}
		elapsed -= step
	}
}

// Views 所有卷轴的只读视图
func (c *Choreographer) Views() []View {
	views := make([]View, len(c.reels))
	for i, r := range c.reels {
		row := make(slot.Row, len(r.row))
		copy(row, r.row)
		views[i] = View{Index: i, Phase: r.phase, Row: row, Dynamics: r.dynamics}
	}
	return views
}

// Grid 当前所有卷轴的符号
func (c *Choreographer) Grid() slot.Grid {
	grid := make(slot.Grid, len(c.reels))
	for i, r := range c.reels {
		row := make(slot.Row, len(r.row))
		copy(row, r.row)
		grid[i] = row
	}
	return grid
}

func (c *Choreographer) redraw(spinID uint64, i int) {
	r := c.reels[i]
	if spinID != c.spinID || r.phase != PhaseSpinning {
		return
	}
	r.row = c.cfg.Generator.BuildRow(c.cfg.Rows)
	if c.cfg.OnRedraw != nil {
		c.cfg.OnRedraw(spinID, i, r.row)
	}
}

func (c *Choreographer) stopReel(spinID uint64, i int) {
	r := c.reels[i]
	if spinID != c.spinID || r.phase != PhaseSpinning {
		c.logger.Debug("丢弃过期的停轮回调",
			zap.Uint64("spin_id", spinID),
			zap.Uint64("current_spin_id", c.spinID),
			zap.Int("reel", i))
		return
	}

	c.Advance()
	c.stopTimers(r)
	r.phase = PhaseSettling
	r.row = c.cfg.Generator.BuildRow(c.cfg.Rows)
	r.dynamics.Kick()
	final := make(slot.Row, len(r.row))
	copy(final, r.row)

	if c.cfg.OnStop != nil {
		c.cfg.OnStop(spinID, i, final)
	}
	if r.phase == PhaseSettling {
		r.phase = PhaseStopped
	}
}

func (c *Choreographer) stopTimers(r *reelState) {
	if r.redraw != nil {
		r.redraw.Stop()
		r.redraw = nil
	}
	if r.stop != nil {
		r.stop.Stop()
		r.stop = nil
	}
}
