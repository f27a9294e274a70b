package game

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// GameState 会话状态枚举
type GameState string

const (
	StateIdle     GameState = "idle"     // 空闲，可以开始旋转
	StateSpinning GameState = "spinning" // 卷轴转动中
	StateSettling GameState = "settling" // 全部停轮，结算中
)

// 状态机事件
const (
	EventStartSpin    = "start_spin"    // 开始旋转
	EventReelsStopped = "reels_stopped" // 全部卷轴停轮
	EventSettle       = "settle"        // 结算完成
	EventCancel       = "cancel"        // 取消本轮
)

// StateTransition 状态转换定义
type StateTransition struct {
	From  GameState
	Event string
	To    GameState
}

// StateMachine 会话状态机
// 只记录状态和转换规则，业务动作由会话在转换前后完成
type StateMachine struct {
	mu           sync.RWMutex
	currentState GameState
	sessionID    string
	transitions  map[string]StateTransition
	logger       *zap.Logger
	lastUpdate   time.Time

	onStateChange func(from, to GameState, event string)
}

// NewStateMachine 创建状态机
func NewStateMachine(sessionID string, logger *zap.Logger) *StateMachine {
	if logger == nil {
		logger = zap.NewNop()
	}
	sm := &StateMachine{
		currentState: StateIdle,
		sessionID:    sessionID,
		transitions:  make(map[string]StateTransition),
		logger:       logger,
		lastUpdate:   time.Now(),
	}
	sm.initTransitions()
	return sm
}

// initTransitions 初始化状态转换规则
func (sm *StateMachine) initTransitions() {
	sm.addTransition(StateTransition{From: StateIdle, Event: EventStartSpin, To: StateSpinning})
	sm.addTransition(StateTransition{From: StateSpinning, Event: EventReelsStopped, To: StateSettling})
	sm.addTransition(StateTransition{From: StateSettling, Event: EventSettle, To: StateIdle})

	// 取消：任何进行中的状态都回到空闲
	sm.addTransition(StateTransition{From: StateSpinning, Event: EventCancel, To: StateIdle})
	sm.addTransition(StateTransition{From: StateSettling, Event: EventCancel, To: StateIdle})
}

// addTransition 添加状态转换
func (sm *StateMachine) addTransition(transition StateTransition) {
	sm.transitions[sm.transitionKey(transition.From, transition.Event)] = transition
}

// transitionKey 生成转换键
func (sm *StateMachine) transitionKey(state GameState, event string) string {
	return fmt.Sprintf("%s:%s", state, event)
}

// Trigger 触发事件
func (sm *StateMachine) Trigger(event string) error {
	sm.mu.Lock()
	transition, exists := sm.transitions[sm.transitionKey(sm.currentState, event)]
	if !exists {
		state := sm.currentState
		sm.mu.Unlock()
		return fmt.Errorf("无效的状态转换: 状态=%s, 事件=%s, 可用事件=%v", state, event, sm.GetValidEvents())
	}

	from := sm.currentState
	sm.currentState = transition.To
	sm.lastUpdate = time.Now()
	onChange := sm.onStateChange
	sm.mu.Unlock()

	sm.logger.Debug("状态转换",
		zap.String("session_id", sm.sessionID),
		zap.String("from", string(from)),
		zap.String("to", string(transition.To)),
		zap.String("event", event))

	if onChange != nil {
		onChange(from, transition.To, event)
	}
	return nil
}

// GetState 获取当前状态
func (sm *StateMachine) GetState() GameState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.currentState
}

// OnStateChange 设置状态变更回调
func (sm *StateMachine) OnStateChange(fn func(from, to GameState, event string)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onStateChange = fn
}

// CanTransition 检查当前状态能否响应事件
func (sm *StateMachine) CanTransition(event string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	_, exists := sm.transitions[sm.transitionKey(sm.currentState, event)]
	return exists
}

// GetValidEvents 获取当前状态下的有效事件
func (sm *StateMachine) GetValidEvents() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var events []string
	for _, t := range sm.transitions {
		if t.From == sm.currentState {
			events = append(events, t.Event)
		}
	}
	sort.Strings(events)
	return events
}

// Reset 回到空闲状态
func (sm *StateMachine) Reset() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.currentState = StateIdle
	sm.lastUpdate = time.Now()
}
