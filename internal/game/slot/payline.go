package slot

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Evaluator 中间行支付线结算器
type Evaluator struct {
	config *SlotConfig
}

// NewEvaluator 创建支付线结算器
func NewEvaluator(config *SlotConfig) (*Evaluator, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	return &Evaluator{config: config}, nil
}

// lineCount 支付线上某个符号的出现次数
type lineCount struct {
	symbol Symbol
	count  int
	order  int
}

// Evaluate 对完整网格结算
//
// 最佳符号的选择顺序：出现次数降序，赔付倍率降序，目录顺序。
// 结果与 map 遍历顺序无关，同一网格和下注永远得到相同结果。
func (e *Evaluator) Evaluate(grid Grid, bet int64) SpinResult {
	counts := e.countPayline(grid)
	if len(counts) == 0 {
		return nearMiss(0)
	}
	best := counts[0]

	if best.count < MinWinStreak {
		return nearMiss(best.count)
	}

	win := e.Payout(best.symbol, best.count, bet)
	category := e.category(best.symbol.ID, best.count)

	return SpinResult{
		WinAmount:           win,
		HighlightedSymbolID: best.symbol.ID,
		MatchStreak:         best.count,
		Message: Message{
			Category: category,
			Text:     fmt.Sprintf("%s %dx %s", CategoryText(category), best.count, best.symbol.Label),
			Streak:   best.count,
			SymbolID: best.symbol.ID,
		},
	}
}

// Payout 计算赔付：round(下注 × 符号倍率 × 连线倍率)，四舍五入到整数且不为负
func (e *Evaluator) Payout(symbol Symbol, streak int, bet int64) int64 {
	if bet <= 0 || streak < MinWinStreak {
		return 0
	}
	streakMultiplier := e.StreakMultiplier(streak)
	win := decimal.NewFromInt(bet).
		Mul(symbol.Multiplier).
		Mul(streakMultiplier).
		Round(0)
	if win.IsNegative() {
		return 0
	}
	return win.IntPart()
}

// StreakMultiplier 连线倍率，超出表的连线数取表中最大连线数的倍率
func (e *Evaluator) StreakMultiplier(streak int) decimal.Decimal {
	if m, ok := e.config.StreakMultipliers[streak]; ok {
		return m
	}
	if streak > e.config.Reels {
		return e.config.StreakMultipliers[e.config.Reels]
	}
	return decimal.Zero
}

// countPayline 统计支付线并按选择顺序排序
func (e *Evaluator) countPayline(grid Grid) []lineCount {
	byID := make(map[SymbolID]*lineCount)
	for _, sym := range grid.Payline() {
		if lc, ok := byID[sym.ID]; ok {
			lc.count++
			continue
		}
		order := e.config.Catalog.Position(sym.ID)
		if order < 0 {
			order = e.config.Catalog.Len()
		}
		byID[sym.ID] = &lineCount{symbol: sym, count: 1, order: order}
	}

	counts := make([]lineCount, 0, len(byID))
	for _, lc := range byID {
		counts = append(counts, *lc)
	}
	sort.Slice(counts, func(i, j int) bool {
		a, b := counts[i], counts[j]
		if a.count != b.count {
			return a.count > b.count
		}
		if c := a.symbol.Multiplier.Cmp(b.symbol.Multiplier); c != 0 {
			return c > 0
		}
		if a.order != b.order {
			return a.order < b.order
		}
		return a.symbol.ID < b.symbol.ID
	})
	return counts
}

// category 按 (符号, 连线数) 静态查表选择消息类别
func (e *Evaluator) category(id SymbolID, streak int) MessageCategory {
	switch {
	case id == e.config.WildSymbol && streak == e.config.Reels:
		return CategoryMegaJackpot
	case id == e.config.SevenSymbol && streak >= 4:
		return CategoryLegendary
	default:
		return CategoryWinningLine
	}
}

// Config 返回结算配置
func (e *Evaluator) Config() *SlotConfig {
	return e.config
}

func nearMiss(streak int) SpinResult {
	return SpinResult{
		WinAmount:   0,
		MatchStreak: streak,
		Message: Message{
			Category: CategoryNearMiss,
			Text:     CategoryText(CategoryNearMiss),
			Streak:   streak,
		},
	}
}
