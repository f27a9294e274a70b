package slot

// 消息类别 -> 展示文案
var categoryTexts = map[MessageCategory]string{
	CategoryReady:             "准备就绪，按下 SPIN！",
	CategorySpinning:          "卷轴转动中...",
	CategoryDemoSpinning:      "演示模式转动中...",
	CategoryInsufficientFunds: "余额不足，请启动演示或降低下注。",
	CategoryNearMiss:          "差一点！中间线凑齐3个以上相同符号即可中奖。",
	CategoryWinningLine:       "中奖线！",
	CategoryLegendary:         "传奇幸运7！🔥",
	CategoryMegaJackpot:       "超级Wild大奖！✨",
}

// CategoryText 获取类别文案
func CategoryText(category MessageCategory) string {
	if text, ok := categoryTexts[category]; ok {
		return text
	}
	return string(category)
}

// StatusMessage 构造不带连线信息的状态消息
func StatusMessage(category MessageCategory) Message {
	return Message{Category: category, Text: CategoryText(category)}
}
