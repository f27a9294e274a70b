package slot

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	require.NoError(t, ValidateConfig(cfg))
	assert.Equal(t, 5, cfg.Reels)
	assert.Equal(t, 3, cfg.Rows)
	assert.Equal(t, 1, cfg.PaylineRow())
	assert.Equal(t, 97.1, cfg.AdvertisedRTP)
	assert.True(t, cfg.StreakMultipliers[3].Equal(decimal.RequireFromString("1.15")))
	assert.True(t, cfg.StreakMultipliers[4].Equal(decimal.RequireFromString("1.6")))
	assert.True(t, cfg.StreakMultipliers[5].Equal(decimal.RequireFromString("2.5")))
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *SlotConfig)
		wantErr error
	}{
		{
			name:    "卷轴太少",
			modify:  func(c *SlotConfig) { c.Reels = 2 },
			wantErr: ErrInvalidReels,
		},
		{
			name:    "行数为零",
			modify:  func(c *SlotConfig) { c.Rows = 0 },
			wantErr: ErrInvalidRows,
		},
		{
			name:    "缺少目录",
			modify:  func(c *SlotConfig) { c.Catalog = nil },
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "缺少连线倍率",
			modify:  func(c *SlotConfig) { delete(c.StreakMultipliers, 4) },
			wantErr: ErrInvalidStreak,
		},
		{
			name:    "六卷轴缺少6连倍率",
			modify:  func(c *SlotConfig) { c.Reels = 6 },
			wantErr: ErrInvalidStreak,
		},
		{
			name: "连线倍率不递增",
			modify: func(c *SlotConfig) {
				c.StreakMultipliers[5] = decimal.RequireFromString("1.6")
			},
			wantErr: ErrInvalidStreak,
		},
		{
			name:    "连线倍率为零",
			modify:  func(c *SlotConfig) { c.StreakMultipliers[3] = decimal.Zero },
			wantErr: ErrInvalidStreak,
		},
		{
			name:    "Wild不在目录中",
			modify:  func(c *SlotConfig) { c.WildSymbol = "ghost" },
			wantErr: ErrSpecialNotInTable,
		},
		{
			name:   "关闭特殊符号",
			modify: func(c *SlotConfig) { c.WildSymbol = ""; c.SevenSymbol = "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.modify(cfg)

			err := ValidateConfig(cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}

	assert.ErrorIs(t, ValidateConfig(nil), ErrInvalidConfig)
}

func TestNewEvaluator_InvalidConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Rows = -1

	evaluator, err := NewEvaluator(cfg)
	assert.ErrorIs(t, err, ErrInvalidRows)
	assert.Nil(t, evaluator)
}
