package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/neon-reels/internal/game/clock"
	"github.com/wfunc/neon-reels/internal/game/reel"
	"github.com/wfunc/neon-reels/internal/game/slot"
)

// fixedJitter 固定停轮抖动
type fixedJitter time.Duration

func (j fixedJitter) Next(time.Duration) time.Duration { return time.Duration(j) }

// sequenceJitter 按卷轴顺序依次返回抖动
type sequenceJitter struct {
	values []time.Duration
	next   int
}

func (j *sequenceJitter) Next(time.Duration) time.Duration {
	v := j.values[j.next%len(j.values)]
	j.next++
	return v
}

// constRandom 固定掷点，0 时总是抽到目录第一个符号
type constRandom float64

func (r constRandom) Float64() float64 { return float64(r) }
func (r constRandom) IntN(int) int     { return 0 }

// eventRecorder 记录订阅到的快照事件
type eventRecorder struct {
	mu     sync.Mutex
	events []EventKind
	last   Snapshot
}

func (r *eventRecorder) record(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s.Event)
	r.last = s
}

func (r *eventRecorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == kind {
			n++
		}
	}
	return n
}

type sessionEnv struct {
	t     *testing.T
	clock *clock.ManualClock
	s     *Session
	rec   *eventRecorder
}

// 一次旋转最长耗时：1100 + 4×220 + 抖动
const fullSpin = 2500 * time.Millisecond

func newSessionEnv(t *testing.T, modify ...func(cfg *SessionConfig)) *sessionEnv {
	t.Helper()
	mc := clock.NewManualClock(time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC))
	cfg := SessionConfig{
		ID:     "test-session",
		Clock:  mc,
		Random: slot.NewSeededRandom(77),
		Jitter: fixedJitter(40 * time.Millisecond),
		Rules:  DefaultRules(),
		Timing: reel.DefaultTiming(),
	}
	for _, m := range modify {
		m(&cfg)
	}

	s, err := NewSession(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	t.Cleanup(func() {
		s.Close()
		cancel()
	})

	rec := &eventRecorder{}
	s.Subscribe(rec.record)
	return &sessionEnv{t: t, clock: mc, s: s, rec: rec}
}

// advance 以10ms步长推进时钟，每步等待事件循环处理完投递的任务
func (e *sessionEnv) advance(d time.Duration) {
	e.t.Helper()
	const step = 10 * time.Millisecond
	for elapsed := time.Duration(0); elapsed < d; elapsed += step {
		e.clock.Advance(step)
		e.snapshot()
	}
}

func (e *sessionEnv) snapshot() Snapshot {
	e.t.Helper()
	snap, err := e.s.Snapshot()
	require.NoError(e.t, err)
	return snap
}

func TestSession_InitialSnapshot(t *testing.T) {
	env := newSessionEnv(t)
	snap := env.snapshot()

	assert.Equal(t, "test-session", snap.SessionID)
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, int64(5000), snap.Balance)
	assert.Equal(t, int64(120), snap.Bet)
	assert.Equal(t, slot.CategoryReady, snap.Status.Category)
	assert.False(t, snap.IsSpinning)
	assert.Empty(t, snap.History)
	assert.Equal(t, 97.1, snap.AdvertisedRTP)
	require.Len(t, snap.Reels, 5)
	for _, r := range snap.Reels {
		assert.Equal(t, reel.PhaseIdle, r.Phase)
		assert.Len(t, r.Row, 3)
	}
}

func TestSession_SpinLifecycle(t *testing.T) {
	env := newSessionEnv(t)

	require.Equal(t, OutcomeStarted, env.s.Spin(false))

	snap := env.snapshot()
	assert.Equal(t, StateSpinning, snap.State)
	assert.True(t, snap.IsSpinning)
	assert.Equal(t, int64(4880), snap.Balance, "开始旋转时立即扣除下注")
	assert.Zero(t, snap.LastWin)
	assert.Equal(t, slot.CategorySpinning, snap.Status.Category)
	for _, r := range snap.Reels {
		assert.Equal(t, reel.PhaseSpinning, r.Phase)
	}

	env.advance(fullSpin)

	snap = env.snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.False(t, snap.IsSpinning)
	require.Len(t, snap.History, 1)
	entry := snap.History[0]
	assert.Equal(t, int64(120), entry.Bet)
	assert.False(t, entry.Demo)
	assert.Len(t, entry.Payline, 5)
	assert.Equal(t, entry.Result.WinAmount, snap.LastWin)
	assert.Equal(t, int64(4880)+snap.LastWin, snap.Balance)
	assert.Equal(t, entry.Result.Message, snap.Status)
	assert.Equal(t, 1, snap.Statistics.TotalSpins)

	// 非演示旋转结束后卷轴回到正对姿态
	for _, r := range snap.Reels {
		assert.Equal(t, reel.PhaseIdle, r.Phase)
		assert.Equal(t, reel.Dynamics{}, r.Dynamics)
	}

	assert.Equal(t, 1, env.rec.count(EventKindSpinStarted))
	assert.Equal(t, 4, env.rec.count(EventKindReelStopped))
	assert.Equal(t, 1, env.rec.count(EventKindSpinSettled))
	assert.Greater(t, env.rec.count(EventKindReelRedrawn), 0)
	assert.Zero(t, env.clock.Pending())
}

func TestSession_OutOfOrderStops(t *testing.T) {
	env := newSessionEnv(t, func(cfg *SessionConfig) {
		cfg.Timing.Stagger = 100 * time.Millisecond
		cfg.Jitter = &sequenceJitter{values: []time.Duration{
			190 * time.Millisecond, 0, 150 * time.Millisecond, 0, 0,
		}}
	})

	// 记录每次停轮快照中新停下的卷轴
	var (
		mu    sync.Mutex
		order []int
		seen  = map[int]bool{}
	)
	env.s.Subscribe(func(snap Snapshot) {
		if snap.Event != EventKindReelStopped && snap.Event != EventKindSpinSettled {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		for i, r := range snap.Reels {
			if seen[i] {
				continue
			}
			if r.Phase == reel.PhaseStopped || snap.Event == EventKindSpinSettled {
				seen[i] = true
				order = append(order, i)
			}
		}
	})

	require.Equal(t, OutcomeStarted, env.s.Spin(false))
	env.advance(fullSpin)

	snap := env.snapshot()
	assert.Equal(t, StateIdle, snap.State)
	require.Len(t, snap.History, 1)
	assert.Equal(t, int64(5000-120)+snap.LastWin, snap.Balance)
	assert.Equal(t, snap.History[0].Result.WinAmount, snap.LastWin)
	assert.Len(t, snap.History[0].Payline, 5)

	// 卷轴1先于卷轴0停下，结算只发生一次
	mu.Lock()
	assert.Equal(t, []int{1, 0, 2, 3, 4}, order)
	mu.Unlock()
	assert.Equal(t, 4, env.rec.count(EventKindReelStopped))
	assert.Equal(t, 1, env.rec.count(EventKindSpinSettled))
	assert.Equal(t, 1, snap.Statistics.TotalSpins)
	assert.Zero(t, env.clock.Pending())
}

func TestSession_PaylineEvaluatedFromStoppedReels(t *testing.T) {
	env := newSessionEnv(t)

	for i := 0; i < 5; i++ {
		require.Equal(t, OutcomeStarted, env.s.Spin(false))
		env.advance(fullSpin)

		snap := env.snapshot()
		entry := snap.History[0]

		evaluator, err := slot.NewEvaluator(slot.GetDefaultConfig())
		require.NoError(t, err)
		catalog := slot.DefaultCatalog()
		grid := make(slot.Grid, len(entry.Payline))
		for j, id := range entry.Payline {
			sym, ok := catalog.Lookup(id)
			require.True(t, ok)
			grid[j] = slot.Row{sym}
		}
		assert.Equal(t, evaluator.Evaluate(grid, entry.Bet), entry.Result)
	}
}

func TestSession_MegaJackpot(t *testing.T) {
	env := newSessionEnv(t, func(cfg *SessionConfig) {
		cfg.Random = constRandom(0)
	})

	require.Equal(t, OutcomeStarted, env.s.Spin(false))
	env.advance(fullSpin)

	snap := env.snapshot()
	assert.Equal(t, int64(3600), snap.LastWin)
	assert.Equal(t, int64(5000-120+3600), snap.Balance)
	assert.Equal(t, slot.SymbolWild, snap.HighlightedSymbolID)
	assert.Equal(t, slot.CategoryMegaJackpot, snap.Status.Category)
	assert.Equal(t, 5, snap.History[0].Result.MatchStreak)
	for _, r := range snap.Reels {
		assert.True(t, r.Winning)
	}
	assert.Equal(t, int64(3600), snap.Statistics.BiggestWin)
	assert.Equal(t, 3000.0, snap.Statistics.RTP)
}

func TestSession_IgnoredWhileSpinning(t *testing.T) {
	env := newSessionEnv(t)

	require.Equal(t, OutcomeStarted, env.s.Spin(false))
	assert.Equal(t, OutcomeIgnored, env.s.Spin(false))
	assert.Equal(t, OutcomeIgnored, env.s.Spin(true))
	assert.Equal(t, OutcomeIgnored, env.s.HandleDemo())

	env.advance(500 * time.Millisecond)
	assert.Equal(t, OutcomeIgnored, env.s.Spin(false))

	snap := env.snapshot()
	assert.Equal(t, int64(4880), snap.Balance, "只扣一次下注")
	assert.Zero(t, snap.DemoChainRemaining)

	env.advance(fullSpin)
	assert.Len(t, env.snapshot().History, 1)
}

func TestSession_InsufficientFunds(t *testing.T) {
	env := newSessionEnv(t, func(cfg *SessionConfig) {
		cfg.Rules.InitialBalance = 100
	})

	assert.Equal(t, OutcomeRejected, env.s.Spin(false))

	snap := env.snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, int64(100), snap.Balance)
	assert.Equal(t, slot.CategoryInsufficientFunds, snap.Status.Category)
	assert.Empty(t, snap.History)
	assert.Zero(t, env.clock.Pending())
	assert.Equal(t, 1, env.rec.count(EventKindSpinRejected))
}

func TestSession_DemoSubsidy(t *testing.T) {
	env := newSessionEnv(t, func(cfg *SessionConfig) {
		cfg.Rules.InitialBalance = 100
		cfg.Rules.DemoChain = 0
	})

	require.Equal(t, OutcomeStarted, env.s.HandleDemo())

	snap := env.snapshot()
	assert.Equal(t, int64(100+120*8-120), snap.Balance)
	assert.Equal(t, int64(960), snap.Statistics.Subsidies)
	assert.True(t, snap.IsDemo)
	assert.Equal(t, slot.CategoryDemoSpinning, snap.Status.Category)
}

func TestSession_DemoChain(t *testing.T) {
	env := newSessionEnv(t)

	require.Equal(t, OutcomeStarted, env.s.HandleDemo())
	assert.Equal(t, 2, env.snapshot().DemoChainRemaining)

	env.advance(fullSpin)
	snap := env.snapshot()
	assert.Equal(t, 1, snap.DemoChainRemaining)
	assert.Equal(t, StateIdle, snap.State, "演示停顿期间处于空闲")
	for _, r := range snap.Reels {
		assert.Equal(t, reel.PhaseStopped, r.Phase, "演示链中间不复位卷轴")
	}

	env.advance(3 * (fullSpin + time.Second))

	snap = env.snapshot()
	assert.Equal(t, 3, env.rec.count(EventKindSpinStarted))
	assert.Equal(t, 3, env.rec.count(EventKindSpinSettled))
	assert.Zero(t, snap.DemoChainRemaining)
	assert.Equal(t, StateIdle, snap.State)
	require.Len(t, snap.History, 3)
	for _, h := range snap.History {
		assert.True(t, h.Demo)
	}
	assert.Equal(t, 3, snap.Statistics.DemoSpins)
	for _, r := range snap.Reels {
		assert.Equal(t, reel.PhaseIdle, r.Phase)
		assert.Equal(t, reel.Dynamics{}, r.Dynamics)
	}
	assert.Zero(t, env.clock.Pending())
}

func TestSession_DemoPauseRespected(t *testing.T) {
	env := newSessionEnv(t)

	require.Equal(t, OutcomeStarted, env.s.HandleDemo())
	// 最后一个卷轴在 1100+880+40ms 停轮
	env.advance(2020 * time.Millisecond)
	require.Equal(t, 1, env.rec.count(EventKindSpinSettled))

	env.advance(650 * time.Millisecond)
	assert.Equal(t, 1, env.rec.count(EventKindSpinStarted))

	env.advance(100 * time.Millisecond)
	assert.Equal(t, 2, env.rec.count(EventKindSpinStarted))
}

func TestSession_ManualSpinCancelsDemoChain(t *testing.T) {
	env := newSessionEnv(t)

	require.Equal(t, OutcomeStarted, env.s.HandleDemo())
	env.advance(fullSpin)
	require.Equal(t, 1, env.snapshot().DemoChainRemaining)

	// 演示停顿期间手动旋转
	require.Equal(t, OutcomeStarted, env.s.Spin(false))
	assert.Zero(t, env.snapshot().DemoChainRemaining)

	env.advance(3 * (fullSpin + time.Second))
	snap := env.snapshot()
	assert.Equal(t, 2, env.rec.count(EventKindSpinStarted))
	require.Len(t, snap.History, 2)
	assert.False(t, snap.History[0].Demo)
	assert.True(t, snap.History[1].Demo)
}

func TestSession_HistoryCap(t *testing.T) {
	env := newSessionEnv(t)

	for i := 0; i < 6; i++ {
		require.Equal(t, OutcomeStarted, env.s.Spin(false), "第 %d 次旋转", i+1)
		env.advance(fullSpin)
	}

	snap := env.snapshot()
	require.Len(t, snap.History, 5)
	for i, h := range snap.History {
		assert.Equal(t, uint64(6-i), h.SpinID, "最新的记录在前")
	}
	assert.Equal(t, 6, snap.Statistics.TotalSpins)
	assert.Equal(t, int64(720), snap.Statistics.TotalBet)
	assert.Equal(t, int64(5000-720)+snap.Statistics.TotalWin, snap.Balance)
}

func TestSession_ResetCancelsSpin(t *testing.T) {
	env := newSessionEnv(t)

	require.Equal(t, OutcomeStarted, env.s.Spin(false))
	env.advance(1200 * time.Millisecond)
	require.Equal(t, 1, env.rec.count(EventKindReelStopped))

	require.NoError(t, env.s.Reset())
	assert.Zero(t, env.clock.Pending(), "重置后不应有残留定时器")

	env.advance(3 * fullSpin)

	snap := env.snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, int64(5000), snap.Balance)
	assert.Empty(t, snap.History)
	assert.Zero(t, snap.Statistics.TotalSpins)
	assert.Equal(t, slot.CategoryReady, snap.Status.Category)
	assert.Equal(t, 1, env.rec.count(EventKindReelStopped), "取消后不再有停轮报告")
	assert.Zero(t, env.rec.count(EventKindSpinSettled))
	assert.Equal(t, 1, env.rec.count(EventKindReset))

	// 重置后可以正常开始新一轮
	require.Equal(t, OutcomeStarted, env.s.Spin(false))
	env.advance(fullSpin)
	assert.Len(t, env.snapshot().History, 1)
}

func TestSession_StaleAndDuplicateReports(t *testing.T) {
	env := newSessionEnv(t)

	require.Equal(t, OutcomeStarted, env.s.Spin(false))
	env.advance(fullSpin)
	require.Equal(t, OutcomeStarted, env.s.Spin(false))

	catalog := slot.DefaultCatalog()
	bogus := slot.Row{catalog.At(0), catalog.At(0), catalog.At(0)}

	stoppedCount := func() int {
		n := 0
		require.NoError(t, env.s.do(func() { n = len(env.s.stopped) }))
		return n
	}

	// 上一轮的停轮报告
	require.NoError(t, env.s.do(func() { env.s.onReelStop(1, 0, bogus) }))
	assert.Zero(t, stoppedCount())

	// 无效卷轴索引
	require.NoError(t, env.s.do(func() { env.s.onReelStop(2, 7, bogus) }))
	assert.Zero(t, stoppedCount())

	env.advance(1200 * time.Millisecond)
	require.Equal(t, 1, stoppedCount())

	var before slot.Row
	require.NoError(t, env.s.do(func() { before = env.s.stopped[0] }))

	// 重复报告不覆盖已记录的卷轴
	require.NoError(t, env.s.do(func() { env.s.onReelStop(2, 0, bogus) }))
	assert.Equal(t, 1, stoppedCount())
	var after slot.Row
	require.NoError(t, env.s.do(func() { after = env.s.stopped[0] }))
	assert.Equal(t, before, after)

	env.advance(fullSpin)
	snap := env.snapshot()
	require.Len(t, snap.History, 2)
	assert.Equal(t, uint64(2), snap.History[0].SpinID)
}

func TestSession_SetBet(t *testing.T) {
	env := newSessionEnv(t)

	require.NoError(t, env.s.SetBet(300))
	assert.Equal(t, int64(300), env.snapshot().Bet)
	assert.Equal(t, 1, env.rec.count(EventKindBetChanged))

	// 相同下注不产生事件
	require.NoError(t, env.s.SetBet(300))
	assert.Equal(t, 1, env.rec.count(EventKindBetChanged))

	require.Equal(t, OutcomeStarted, env.s.Spin(false))
	require.NoError(t, env.s.SetBet(50))
	env.advance(fullSpin)

	snap := env.snapshot()
	assert.Equal(t, int64(50), snap.Bet)
	assert.Equal(t, int64(300), snap.History[0].Bet, "旋转中修改下注只影响下一轮")
	assert.Equal(t, int64(5000-300)+snap.LastWin, snap.Balance)
}

func TestSession_Close(t *testing.T) {
	env := newSessionEnv(t)

	require.Equal(t, OutcomeStarted, env.s.Spin(false))
	env.s.Close()

	select {
	case <-env.s.Done():
	case <-time.After(time.Second):
		t.Fatal("事件循环未退出")
	}

	assert.Zero(t, env.clock.Pending())
	assert.Equal(t, OutcomeClosed, env.s.Spin(false))
	assert.Equal(t, OutcomeClosed, env.s.HandleDemo())
	assert.ErrorIs(t, env.s.SetBet(100), ErrSessionClosed)
	assert.ErrorIs(t, env.s.Reset(), ErrSessionClosed)
	_, err := env.s.Snapshot()
	assert.ErrorIs(t, err, ErrSessionClosed)

	// 关闭后推进时钟不会触发任何回调
	env.clock.Advance(10 * time.Second)
	env.s.Close()
}

func TestSession_ContextCancelStopsLoop(t *testing.T) {
	mc := clock.NewManualClock(time.Now())
	s, err := NewSession(SessionConfig{Clock: mc, Rules: DefaultRules()})
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID())

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)

	assert.Equal(t, OutcomeStarted, s.Spin(false))
	cancel()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("事件循环未退出")
	}
	assert.Zero(t, mc.Pending())
	assert.Equal(t, OutcomeClosed, s.Spin(false))
}

func TestSession_Unsubscribe(t *testing.T) {
	env := newSessionEnv(t)

	rec := &eventRecorder{}
	unsubscribe := env.s.Subscribe(rec.record)
	require.NoError(t, env.s.SetBet(200))
	unsubscribe()
	unsubscribe()
	require.NoError(t, env.s.SetBet(300))

	env.snapshot()
	assert.Equal(t, 1, rec.count(EventKindBetChanged))
	assert.Equal(t, int64(200), rec.last.Bet)
}

func TestSession_SnapshotIsImmutable(t *testing.T) {
	env := newSessionEnv(t)

	require.Equal(t, OutcomeStarted, env.s.Spin(false))
	env.advance(fullSpin)

	snap := env.snapshot()
	snap.History[0].Payline[0] = "tampered"
	snap.Reels[0].Row[0] = slot.Symbol{ID: "tampered"}

	again := env.snapshot()
	assert.NotEqual(t, slot.SymbolID("tampered"), again.History[0].Payline[0])
	assert.NotEqual(t, slot.SymbolID("tampered"), again.Reels[0].Row[0].ID)
	assert.Greater(t, again.Version, snap.Version)
}

func TestNewSession_InvalidConfig(t *testing.T) {
	_, err := NewSession(SessionConfig{Rules: DefaultRules()})
	assert.ErrorIs(t, err, reel.ErrNoClock)

	rules := DefaultRules()
	rules.HistorySize = 0
	_, err = NewSession(SessionConfig{Clock: clock.NewManualClock(time.Now()), Rules: rules})
	assert.ErrorIs(t, err, ErrInvalidRules)

	bad := slot.GetDefaultConfig()
	bad.Reels = 2
	_, err = NewSession(SessionConfig{Clock: clock.NewManualClock(time.Now()), Rules: DefaultRules(), Slot: bad})
	assert.ErrorIs(t, err, slot.ErrInvalidReels)
}
