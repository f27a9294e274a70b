package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	jsoniter "github.com/json-iterator/go"
	"github.com/wfunc/neon-reels/internal/config"
	"github.com/wfunc/neon-reels/internal/game/slot"
)

func main() {
	var (
		configPath = flag.String("config", "", "配置文件路径")
		spins      = flag.Int("spins", 1000000, "模拟旋转次数")
		bet        = flag.Int64("bet", 0, "每次下注，0 表示使用默认下注")
		seed       = flag.Uint64("seed", 0, "随机种子，0 表示使用加密随机源")
		asJSON     = flag.Bool("json", false, "以JSON格式输出")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	slotCfg, err := cfg.Game.Slot.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "老虎机配置无效: %v\n", err)
		os.Exit(1)
	}
	if *bet <= 0 {
		*bet = cfg.Game.Session.DefaultBet
	}
	if *spins <= 0 {
		fmt.Fprintln(os.Stderr, "旋转次数必须为正数")
		os.Exit(1)
	}

	var random slot.RandomSource = slot.NewCryptoRandomGenerator()
	if *seed != 0 {
		random = slot.NewSeededRandom(*seed)
	}
	evaluator, err := slot.NewEvaluator(slotCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "创建结算器失败: %v\n", err)
		os.Exit(1)
	}
	generator := slot.NewGenerator(slot.NewSampler(slotCfg.Catalog, random))

	res := slot.Simulate(generator, evaluator, *spins, *bet)

	if *asJSON {
		out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(res, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "序列化失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
		return
	}
	printReport(res, slotCfg.AdvertisedRTP)
}

// printReport 打印模拟报告
func printReport(res *slot.SimulationResult, advertised float64) {
	fmt.Println("=== 霓虹老虎机 RTP 模拟 ===")
	fmt.Printf("旋转次数: %d\n", res.TotalSpins)
	fmt.Printf("总下注:   %d\n", res.TotalBet)
	fmt.Printf("总返还:   %d\n", res.TotalWin)
	fmt.Printf("实测RTP:  %.2f%%（展示 %.1f%%）\n", res.RTP, advertised)
	fmt.Printf("中奖频率: %.4f\n", res.HitRate)
	fmt.Printf("最大单次: %d\n", res.BiggestWin)

	streaks := make([]int, 0, len(res.StreakCounts))
	for n := range res.StreakCounts {
		streaks = append(streaks, n)
	}
	sort.Ints(streaks)
	fmt.Println("连线分布:")
	for _, n := range streaks {
		fmt.Printf("  %d 连: %d\n", n, res.StreakCounts[n])
	}

	categories := make([]string, 0, len(res.Categories))
	for c := range res.Categories {
		categories = append(categories, string(c))
	}
	sort.Strings(categories)
	fmt.Println("结果类别:")
	for _, c := range categories {
		fmt.Printf("  %-18s %d\n", c, res.Categories[slot.MessageCategory(c)])
	}
}
