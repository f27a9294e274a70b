package game

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/neon-reels/internal/game/clock"
	"github.com/wfunc/neon-reels/internal/game/reel"
	"github.com/wfunc/neon-reels/internal/game/slot"
	"go.uber.org/zap"
)

// ManagerConfig 会话管理器配置
type ManagerConfig struct {
	Logger         *zap.Logger
	Clock          clock.Clock
	Slot           *slot.SlotConfig
	Rules          Rules
	Timing         reel.Timing
	SessionTimeout time.Duration // 不活跃超时，0 表示不清理
	MaxSessions    int           // 0 表示不限制

	// NewRandom 为每个会话创建随机源，nil 时使用加密随机源
	NewRandom func() slot.RandomSource
}

// SessionManager 会话管理器
// 管理多台相互独立的老虎机，每个会话拥有自己的事件循环
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	cfg      ManagerConfig
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewSessionManager 创建会话管理器
func NewSessionManager(cfg ManagerConfig) (*SessionManager, error) {
	if cfg.Clock == nil {
		return nil, reel.ErrNoClock
	}
	if cfg.Slot == nil {
		cfg.Slot = slot.GetDefaultConfig()
	}
	if err := slot.ValidateConfig(cfg.Slot); err != nil {
		return nil, err
	}
	if err := cfg.Rules.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timing == (reel.Timing{}) {
		cfg.Timing = reel.DefaultTiming()
	}
	if err := cfg.Timing.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &SessionManager{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// CreateSession 创建并启动会话，sessionID 为空时自动生成
func (sm *SessionManager) CreateSession(sessionID string) (*Session, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.cfg.MaxSessions > 0 && len(sm.sessions) >= sm.cfg.MaxSessions {
		return nil, ErrSessionLimit
	}
	if _, exists := sm.sessions[sessionID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, sessionID)
	}

	var random slot.RandomSource
	if sm.cfg.NewRandom != nil {
		random = sm.cfg.NewRandom()
	}
	session, err := NewSession(SessionConfig{
		ID:     sessionID,
		Logger: sm.logger,
		Clock:  sm.cfg.Clock,
		Random: random,
		Slot:   sm.cfg.Slot,
		Rules:  sm.cfg.Rules,
		Timing: sm.cfg.Timing,
	})
	if err != nil {
		return nil, err
	}

	session.sm.OnStateChange(func(from, to GameState, event string) {
		sm.logger.Debug("游戏状态变更",
			zap.String("session_id", sessionID),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.String("event", event))
	})

	sm.sessions[sessionID] = session
	go session.Run(sm.ctx)

	sm.logger.Info("创建游戏会话",
		zap.String("session_id", sessionID),
		zap.Int("active_sessions", len(sm.sessions)))
	return session, nil
}

// GetSession 获取会话
func (sm *SessionManager) GetSession(sessionID string) (*Session, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[sessionID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return session, nil
}

// GetOrCreateSession 获取会话，不存在时创建
func (sm *SessionManager) GetOrCreateSession(sessionID string) (*Session, bool, error) {
	if sessionID != "" {
		if session, err := sm.GetSession(sessionID); err == nil {
			return session, false, nil
		}
	}
	session, err := sm.CreateSession(sessionID)
	if err != nil {
		return nil, false, err
	}
	return session, true, nil
}

// RemoveSession 关闭并移除会话
func (sm *SessionManager) RemoveSession(sessionID string) error {
	sm.mu.Lock()
	session, exists := sm.sessions[sessionID]
	if !exists {
		sm.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	delete(sm.sessions, sessionID)
	sm.mu.Unlock()

	session.Close()
	sm.logger.Info("移除游戏会话", zap.String("session_id", sessionID))
	return nil
}

// CleanupInactiveSessions 清理不活跃的会话，返回清理数量
func (sm *SessionManager) CleanupInactiveSessions() int {
	if sm.cfg.SessionTimeout <= 0 {
		return 0
	}
	now := sm.cfg.Clock.Now()

	sm.mu.Lock()
	var expired []*Session
	for id, session := range sm.sessions {
		if now.Sub(session.LastActivity()) > sm.cfg.SessionTimeout {
			expired = append(expired, session)
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()

	for _, session := range expired {
		session.Close()
		sm.logger.Info("清理超时会话",
			zap.String("session_id", session.ID()),
			zap.Duration("inactive", now.Sub(session.LastActivity())))
	}
	return len(expired)
}

// StartCleanupTask 启动定期清理任务
func (sm *SessionManager) StartCleanupTask(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				sm.logger.Info("停止会话清理任务")
				return
			case <-sm.ctx.Done():
				return
			case <-ticker.C:
				if n := sm.CleanupInactiveSessions(); n > 0 {
					sm.logger.Info("会话清理完成", zap.Int("removed", n))
				}
			}
		}
	}()
}

// GetActiveSessions 获取活跃会话数
func (sm *SessionManager) GetActiveSessions() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// ListSessions 所有会话摘要，按创建时间排序
func (sm *SessionManager) ListSessions() []SessionInfo {
	sm.mu.RLock()
	sessions := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		sessions = append(sessions, s)
	}
	sm.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		info, err := s.Info()
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].SessionID < infos[j].SessionID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Rules 会话规则
func (sm *SessionManager) Rules() Rules {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.cfg.Rules
}

// UpdateRules 更新规则，只影响之后创建的会话
func (sm *SessionManager) UpdateRules(rules Rules) error {
	if err := rules.Validate(); err != nil {
		return err
	}
	sm.mu.Lock()
	sm.cfg.Rules = rules
	sm.mu.Unlock()

	sm.logger.Info("会话规则已更新",
		zap.Int64("default_bet", rules.DefaultBet),
		zap.Int64("min_bet", rules.MinBet),
		zap.Int64("max_bet", rules.MaxBet))
	return nil
}

// SlotConfig 老虎机配置
func (sm *SessionManager) SlotConfig() *slot.SlotConfig {
	return sm.cfg.Slot
}

// Shutdown 关闭所有会话
func (sm *SessionManager) Shutdown() {
	sm.mu.Lock()
	sessions := sm.sessions
	sm.sessions = make(map[string]*Session)
	sm.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	sm.cancel()
	sm.logger.Info("会话管理器已关闭", zap.Int("closed", len(sessions)))
}
