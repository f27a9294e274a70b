package slot

import (
	"github.com/shopspring/decimal"
)

// SimulationResult 模拟结果
type SimulationResult struct {
	TotalSpins   int                     `json:"total_spins"`
	TotalBet     int64                   `json:"total_bet"`
	TotalWin     int64                   `json:"total_win"`
	RTP          float64                 `json:"rtp"`      // 百分比
	HitRate      float64                 `json:"hit_rate"` // 中奖频率
	BiggestWin   int64                   `json:"biggest_win"`
	StreakCounts map[int]int             `json:"streak_counts"` // 中奖连线数分布
	Categories   map[MessageCategory]int `json:"categories"`
}

// Simulate 批量模拟（用于估算RTP）
// 与会话不同，模拟不经过转轮编排，直接生成最终网格结算
func Simulate(generator *Generator, evaluator *Evaluator, spins int, bet int64) *SimulationResult {
	cfg := evaluator.Config()
	res := &SimulationResult{
		TotalSpins:   spins,
		StreakCounts: make(map[int]int),
		Categories:   make(map[MessageCategory]int),
	}

	hits := 0
	for i := 0; i < spins; i++ {
		grid := generator.BuildGrid(cfg.Reels, cfg.Rows)
		result := evaluator.Evaluate(grid, bet)

		res.TotalBet += bet
		res.TotalWin += result.WinAmount
		res.Categories[result.Message.Category]++
		if result.IsWin() {
			hits++
			res.StreakCounts[result.MatchStreak]++
		}
		if result.WinAmount > res.BiggestWin {
			res.BiggestWin = result.WinAmount
		}
	}

	res.RTP = RTPPercent(res.TotalWin, res.TotalBet)
	if spins > 0 {
		res.HitRate = float64(hits) / float64(spins)
	}
	return res
}

// RTPPercent 计算返还率百分比，保留两位小数
func RTPPercent(totalWin, totalBet int64) float64 {
	if totalBet <= 0 {
		return 0
	}
	rtp := decimal.NewFromInt(totalWin).
		Div(decimal.NewFromInt(totalBet)).
		Mul(decimal.NewFromInt(100)).
		Round(2)
	f, _ := rtp.Float64()
	return f
}
