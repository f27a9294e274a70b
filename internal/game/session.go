package game

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/neon-reels/internal/game/clock"
	"github.com/wfunc/neon-reels/internal/game/reel"
	"github.com/wfunc/neon-reels/internal/game/slot"
	"go.uber.org/zap"
)

// 事件循环任务队列长度
const taskQueueSize = 256

// SessionConfig 会话配置
type SessionConfig struct {
	ID     string
	Logger *zap.Logger
	Clock  clock.Clock
	Random slot.RandomSource // 符号抽样随机源，nil 时使用加密随机源
	Jitter reel.Jitter       // 停轮抖动来源，nil 时使用加密随机源
	Slot   *slot.SlotConfig
	Rules  Rules
	Timing reel.Timing
}

// Session 单台老虎机会话
//
// 所有状态只在 Run 启动的事件循环中修改。公开方法把任务投递到循环并等待执行完成，
// 定时器回调同样以任务形式回到循环，并携带旋转令牌，过期的回调会被丢弃。
type Session struct {
	id        string
	logger    *zap.Logger
	clock     clock.Clock
	rules     Rules
	slotCfg   *slot.SlotConfig
	evaluator *slot.Evaluator
	choreo    *reel.Choreographer
	sm        *StateMachine

	tasks     chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	started   atomic.Bool

	createdAt    time.Time
	lastActivity atomic.Int64

	subMu       sync.RWMutex
	subscribers map[int]func(Snapshot)
	nextSubID   int

	// 以下字段只在事件循环中访问
	balance       int64
	bet           int64
	spinBet       int64
	lastWin       int64
	status        slot.Message
	highlighted   slot.SymbolID
	history       []HistoryEntry
	demoRemaining int
	isDemo        bool
	spinSeq       uint64
	currentSpin   uint64
	stopped       map[int]slot.Row
	demoTimer     clock.Timer
	demoToken     uint64
	stats         Statistics
	version       uint64
}

// NewSession 创建会话，需调用 Run 启动事件循环
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Clock == nil {
		return nil, reel.ErrNoClock
	}
	if cfg.Slot == nil {
		cfg.Slot = slot.GetDefaultConfig()
	}
	if cfg.Timing == (reel.Timing{}) {
		cfg.Timing = reel.DefaultTiming()
	}
	if err := cfg.Rules.Validate(); err != nil {
		return nil, err
	}
	evaluator, err := slot.NewEvaluator(cfg.Slot)
	if err != nil {
		return nil, err
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("session_id", cfg.ID))

	s := &Session{
		id:          cfg.ID,
		logger:      logger,
		clock:       cfg.Clock,
		rules:       cfg.Rules,
		slotCfg:     cfg.Slot,
		evaluator:   evaluator,
		sm:          NewStateMachine(cfg.ID, logger),
		tasks:       make(chan func(), taskQueueSize),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		createdAt:   cfg.Clock.Now(),
		subscribers: make(map[int]func(Snapshot)),
		balance:     cfg.Rules.InitialBalance,
		bet:         cfg.Rules.DefaultBet,
		status:      slot.StatusMessage(slot.CategoryReady),
	}
	s.touch()

	generator := slot.NewGenerator(slot.NewSampler(cfg.Slot.Catalog, cfg.Random))
	s.choreo, err = reel.NewChoreographer(reel.Config{
		Clock:     cfg.Clock,
		Generator: generator,
		Jitter:    cfg.Jitter,
		Timing:    cfg.Timing,
		Reels:     cfg.Slot.Reels,
		Rows:      cfg.Slot.Rows,
		Logger:    logger,
		Post:      s.post,
		OnRedraw:  s.onReelRedraw,
		OnStop:    s.onReelStop,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ID 会话ID
func (s *Session) ID() string {
	return s.id
}

// CreatedAt 创建时间
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// LastActivity 最后一次外部操作的时间
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// Rules 会话创建时的规则，之后不再变化
func (s *Session) Rules() Rules {
	return s.rules
}

// State 当前状态
func (s *Session) State() GameState {
	return s.sm.GetState()
}

// Done 事件循环退出后关闭
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Run 运行事件循环，直到 ctx 结束或会话被关闭
func (s *Session) Run(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	defer close(s.done)
	defer s.closeOnce.Do(func() { close(s.quit) })

	s.logger.Info("会话事件循环启动")
	for {
		select {
		case <-ctx.Done():
			s.teardown()
			return
		case <-s.quit:
			s.teardown()
			return
		case task := <-s.tasks:
			task()
		}
	}
}

// Close 关闭会话并等待事件循环退出
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
	if s.started.Load() {
		<-s.done
	}
}

// Spin 开始一次旋转
func (s *Session) Spin(isDemo bool) SpinOutcome {
	s.touch()
	outcome := OutcomeClosed
	if err := s.do(func() { outcome = s.spin(isDemo) }); err != nil {
		return OutcomeClosed
	}
	return outcome
}

// HandleDemo 启动演示：本次加上追加的 DemoChain 次，共 DemoChain+1 次旋转
func (s *Session) HandleDemo() SpinOutcome {
	s.touch()
	outcome := OutcomeClosed
	err := s.do(func() {
		if s.sm.GetState() != StateIdle {
			outcome = OutcomeIgnored
			return
		}
		s.demoRemaining = s.rules.DemoChain
		outcome = s.spin(true)
	})
	if err != nil {
		return OutcomeClosed
	}
	return outcome
}

// SetBet 设置下注，只影响之后开始的旋转
func (s *Session) SetBet(amount int64) error {
	s.touch()
	return s.do(func() {
		if s.bet == amount {
			return
		}
		s.logger.Debug("下注变更", zap.Int64("from", s.bet), zap.Int64("to", amount))
		s.bet = amount
		s.publish(EventKindBetChanged)
	})
}

// Reset 取消进行中的旋转并恢复初始状态
func (s *Session) Reset() error {
	s.touch()
	return s.do(func() {
		s.abortRound()
		s.choreo.Settle()
		s.balance = s.rules.InitialBalance
		s.bet = s.rules.DefaultBet
		s.lastWin = 0
		s.highlighted = ""
		s.history = nil
		s.demoRemaining = 0
		s.isDemo = false
		s.currentSpin = 0
		s.stopped = nil
		s.stats = Statistics{}
		s.status = slot.StatusMessage(slot.CategoryReady)
		s.logger.Info("会话已重置")
		s.publish(EventKindReset)
	})
}

// Snapshot 获取当前快照
func (s *Session) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := s.do(func() { snap = s.snapshot(EventKindState) })
	return snap, err
}

// Info 会话摘要
func (s *Session) Info() (SessionInfo, error) {
	var info SessionInfo
	err := s.do(func() {
		info = SessionInfo{
			SessionID:    s.id,
			State:        s.sm.GetState(),
			Balance:      s.balance,
			Bet:          s.bet,
			Statistics:   s.stats,
			CreatedAt:    s.createdAt,
			LastActivity: s.LastActivity(),
		}
	})
	return info, err
}

// Subscribe 订阅快照，返回取消订阅函数
// 回调在事件循环中同步执行，不能阻塞，也不能调用会话的公开方法
func (s *Session) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subscribers, id)
			s.subMu.Unlock()
		})
	}
}

// do 投递任务并等待执行完成
func (s *Session) do(task func()) error {
	applied := make(chan struct{})
	select {
	case s.tasks <- func() { task(); close(applied) }:
	case <-s.quit:
		return ErrSessionClosed
	}
	select {
	case <-applied:
		return nil
	case <-s.quit:
		return ErrSessionClosed
	}
}

// post 投递任务，不等待
func (s *Session) post(task func()) {
	select {
	case s.tasks <- task:
	case <-s.quit:
	}
}

func (s *Session) touch() {
	s.lastActivity.Store(s.clock.Now().UnixNano())
}

// spin 旋转流程，只在事件循环中调用
func (s *Session) spin(isDemo bool) SpinOutcome {
	if s.sm.GetState() != StateIdle {
		s.logger.Debug("正在旋转，忽略请求", zap.Bool("demo", isDemo))
		return OutcomeIgnored
	}
	if !isDemo {
		s.demoRemaining = 0
	}

	if s.balance < s.bet {
		if !isDemo {
			s.cancelDemoTimer()
			s.status = slot.StatusMessage(slot.CategoryInsufficientFunds)
			s.logger.Info("余额不足，拒绝旋转",
				zap.Int64("balance", s.balance),
				zap.Int64("bet", s.bet))
			s.publish(EventKindSpinRejected)
			return OutcomeRejected
		}
		subsidy := s.bet * s.rules.DemoSubsidyFactor
		s.balance += subsidy
		s.stats.Subsidies += subsidy
		s.logger.Info("演示模式补贴余额", zap.Int64("subsidy", subsidy))
	}

	s.cancelTimers()
	if err := s.sm.Trigger(EventStartSpin); err != nil {
		s.logger.Error("状态转换失败", zap.Error(err))
		return OutcomeIgnored
	}

	s.spinSeq++
	s.currentSpin = s.spinSeq
	s.isDemo = isDemo
	s.spinBet = s.bet
	s.stopped = make(map[int]slot.Row, s.slotCfg.Reels)
	s.balance -= s.spinBet
	s.lastWin = 0
	s.highlighted = ""
	if isDemo {
		s.status = slot.StatusMessage(slot.CategoryDemoSpinning)
	} else {
		s.status = slot.StatusMessage(slot.CategorySpinning)
	}

	s.choreo.Start(s.currentSpin)
	s.logger.Info("开始旋转",
		zap.Uint64("spin_id", s.currentSpin),
		zap.Bool("demo", isDemo),
		zap.Int64("bet", s.spinBet),
		zap.Int64("balance", s.balance),
		zap.Int("demo_remaining", s.demoRemaining))
	s.publish(EventKindSpinStarted)
	return OutcomeStarted
}

func (s *Session) onReelRedraw(spinID uint64, reelIndex int, _ slot.Row) {
	if spinID != s.currentSpin || s.sm.GetState() != StateSpinning {
		return
	}
	s.publish(EventKindReelRedrawn)
}

// onReelStop 处理卷轴停轮报告，顺序无关，只统计不同卷轴
func (s *Session) onReelStop(spinID uint64, reelIndex int, row slot.Row) {
	if spinID != s.currentSpin || s.sm.GetState() != StateSpinning {
		s.logger.Debug("丢弃过期的停轮报告",
			zap.Uint64("spin_id", spinID),
			zap.Uint64("current_spin_id", s.currentSpin),
			zap.Int("reel", reelIndex))
		return
	}
	if reelIndex < 0 || reelIndex >= s.slotCfg.Reels {
		s.logger.Warn("无效的卷轴索引", zap.Int("reel", reelIndex))
		return
	}
	if _, dup := s.stopped[reelIndex]; dup {
		s.logger.Debug("丢弃重复的停轮报告", zap.Int("reel", reelIndex))
		return
	}

	s.stopped[reelIndex] = row
	if len(s.stopped) < s.slotCfg.Reels {
		s.publish(EventKindReelStopped)
		return
	}
	s.settle()
}

// settle 全部卷轴停轮后结算
func (s *Session) settle() {
	if err := s.sm.Trigger(EventReelsStopped); err != nil {
		s.logger.Error("状态转换失败", zap.Error(err))
		return
	}

	grid := make(slot.Grid, s.slotCfg.Reels)
	for i := range grid {
		grid[i] = s.stopped[i]
	}
	result := s.evaluator.Evaluate(grid, s.spinBet)

	s.lastWin = result.WinAmount
	s.balance += result.WinAmount
	s.status = result.Message
	s.highlighted = result.HighlightedSymbolID
	s.stats.record(s.spinBet, result, s.isDemo)

	payline := make([]slot.SymbolID, 0, len(grid))
	for _, sym := range grid.Payline() {
		payline = append(payline, sym.ID)
	}
	entry := HistoryEntry{
		SpinID:  s.currentSpin,
		Bet:     s.spinBet,
		Demo:    s.isDemo,
		Result:  result,
		Payline: payline,
		At:      s.clock.Now(),
	}
	s.history = append([]HistoryEntry{entry}, s.history...)
	if len(s.history) > s.rules.HistorySize {
		s.history = s.history[:s.rules.HistorySize]
	}

	if s.isDemo && s.demoRemaining > 0 {
		s.demoRemaining--
		s.scheduleDemo()
	} else {
		s.demoRemaining = 0
		s.choreo.Settle()
	}

	if err := s.sm.Trigger(EventSettle); err != nil {
		s.logger.Error("状态转换失败", zap.Error(err))
	}

	s.logger.Info("旋转结算",
		zap.Uint64("spin_id", s.currentSpin),
		zap.Int64("bet", s.spinBet),
		zap.Int64("win", result.WinAmount),
		zap.Int("streak", result.MatchStreak),
		zap.String("symbol", string(result.HighlightedSymbolID)),
		zap.String("category", string(result.Message.Category)),
		zap.Int64("balance", s.balance))
	s.publish(EventKindSpinSettled)
}

// scheduleDemo 停顿后继续下一次演示旋转
func (s *Session) scheduleDemo() {
	s.cancelDemoTimer()
	s.demoToken++
	token := s.demoToken
	s.demoTimer = s.clock.AfterFunc(s.rules.DemoPause, func() {
		s.post(func() { s.runQueuedDemo(token) })
	})
}

func (s *Session) runQueuedDemo(token uint64) {
	if token != s.demoToken || s.demoTimer == nil {
		return
	}
	s.demoTimer = nil
	s.spin(true)
}

func (s *Session) cancelDemoTimer() {
	if s.demoTimer != nil {
		s.demoTimer.Stop()
		s.demoTimer = nil
	}
	s.demoToken++
}

// cancelTimers 取消所有本会话的定时器
func (s *Session) cancelTimers() {
	s.cancelDemoTimer()
	s.choreo.Cancel()
}

// abortRound 取消进行中的一轮并回到空闲
func (s *Session) abortRound() {
	s.cancelTimers()
	if !s.sm.CanTransition(EventCancel) {
		return
	}
	if err := s.sm.Trigger(EventCancel); err != nil {
		s.sm.Reset()
	}
}

func (s *Session) teardown() {
	s.abortRound()
	s.subMu.Lock()
	s.subscribers = make(map[int]func(Snapshot))
	s.subMu.Unlock()
	s.logger.Info("会话已关闭",
		zap.Int("total_spins", s.stats.TotalSpins),
		zap.Int64("total_bet", s.stats.TotalBet),
		zap.Int64("total_win", s.stats.TotalWin))
}

// snapshot 构造快照，只在事件循环中调用
func (s *Session) snapshot(event EventKind) Snapshot {
	s.choreo.Advance()
	s.version++

	views := s.choreo.Views()
	paylineRow := s.slotCfg.PaylineRow()
	reels := make([]ReelView, len(views))
	for i, v := range views {
		winning := s.highlighted != "" && paylineRow < len(v.Row) && v.Row[paylineRow].ID == s.highlighted
		reels[i] = ReelView{View: v, Winning: winning}
	}

	history := make([]HistoryEntry, len(s.history))
	for i, h := range s.history {
		h.Payline = append([]slot.SymbolID(nil), h.Payline...)
		history[i] = h
	}

	state := s.sm.GetState()
	return Snapshot{
		SessionID:           s.id,
		Version:             s.version,
		Event:               event,
		State:               state,
		Balance:             s.balance,
		Bet:                 s.bet,
		LastWin:             s.lastWin,
		Status:              s.status,
		IsSpinning:          state != StateIdle,
		IsDemo:              s.isDemo,
		HighlightedSymbolID: s.highlighted,
		History:             history,
		DemoChainRemaining:  s.demoRemaining,
		Reels:               reels,
		Statistics:          s.stats,
		AdvertisedRTP:       s.slotCfg.AdvertisedRTP,
		Timestamp:           s.clock.Now(),
	}
}

// publish 向订阅者推送快照
func (s *Session) publish(event EventKind) {
	s.subMu.RLock()
	if len(s.subscribers) == 0 {
		s.subMu.RUnlock()
		return
	}
	subs := make([]func(Snapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.subMu.RUnlock()

	snap := s.snapshot(event)
	for _, fn := range subs {
		fn(snap)
	}
}
