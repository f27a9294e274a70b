package game

import (
	"fmt"
	"time"
)

// Rules 会话规则
type Rules struct {
	InitialBalance    int64         `mapstructure:"initial_balance" json:"initial_balance" yaml:"initial_balance"`
	DefaultBet        int64         `mapstructure:"default_bet" json:"default_bet" yaml:"default_bet"`
	MinBet            int64         `mapstructure:"min_bet" json:"min_bet" yaml:"min_bet"`
	MaxBet            int64         `mapstructure:"max_bet" json:"max_bet" yaml:"max_bet"`
	BetStep           int64         `mapstructure:"bet_step" json:"bet_step" yaml:"bet_step"`
	QuickBets         []int64       `mapstructure:"quick_bets" json:"quick_bets" yaml:"quick_bets"`
	DemoSubsidyFactor int64         `mapstructure:"demo_subsidy_factor" json:"demo_subsidy_factor" yaml:"demo_subsidy_factor"` // 演示补贴 = 下注 × 系数
	DemoChain         int           `mapstructure:"demo_chain" json:"demo_chain" yaml:"demo_chain"`                            // 演示模式追加的旋转次数
	DemoPause         time.Duration `mapstructure:"demo_pause" json:"demo_pause" yaml:"demo_pause"`                            // 演示旋转之间的停顿
	HistorySize       int           `mapstructure:"history_size" json:"history_size" yaml:"history_size"`
}

// DefaultRules 默认规则
func DefaultRules() Rules {
	return Rules{
		InitialBalance:    5000,
		DefaultBet:        120,
		MinBet:            20,
		MaxBet:            600,
		BetStep:           10,
		QuickBets:         []int64{50, 120, 240, 360, 480},
		DemoSubsidyFactor: 8,
		DemoChain:         2,
		DemoPause:         700 * time.Millisecond,
		HistorySize:       5,
	}
}

// Validate 验证规则
func (r Rules) Validate() error {
	switch {
	case r.InitialBalance < 0:
		return fmt.Errorf("%w: 初始余额不能为负", ErrInvalidRules)
	case r.MinBet <= 0 || r.MaxBet < r.MinBet:
		return fmt.Errorf("%w: 下注范围 [%d, %d]", ErrInvalidRules, r.MinBet, r.MaxBet)
	case r.BetStep <= 0:
		return fmt.Errorf("%w: 下注步长必须为正数", ErrInvalidRules)
	case r.DemoSubsidyFactor <= 0:
		return fmt.Errorf("%w: 演示补贴系数必须为正数", ErrInvalidRules)
	case r.DemoChain < 0:
		return fmt.Errorf("%w: 演示次数不能为负", ErrInvalidRules)
	case r.DemoPause < 0:
		return fmt.Errorf("%w: 演示停顿不能为负", ErrInvalidRules)
	case r.HistorySize <= 0:
		return fmt.Errorf("%w: 历史记录容量必须为正数", ErrInvalidRules)
	}
	if err := r.ValidateBet(r.DefaultBet); err != nil {
		return fmt.Errorf("%w: 默认下注: %v", ErrInvalidRules, err)
	}
	for _, b := range r.QuickBets {
		if err := r.ValidateBet(b); err != nil {
			return fmt.Errorf("%w: 快捷下注: %v", ErrInvalidRules, err)
		}
	}
	return nil
}

// ValidateBet 验证下注是否在范围内且符合步长
// 会话本身接受任意下注，由调用方在入口处校验
func (r Rules) ValidateBet(amount int64) error {
	if amount < r.MinBet || amount > r.MaxBet {
		return fmt.Errorf("%w: %d 不在 [%d, %d] 范围内", ErrInvalidBet, amount, r.MinBet, r.MaxBet)
	}
	if r.BetStep > 0 && (amount-r.MinBet)%r.BetStep != 0 {
		return fmt.Errorf("%w: %d 不是步长 %d 的整数倍", ErrInvalidBet, amount, r.BetStep)
	}
	return nil
}
