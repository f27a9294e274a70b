package slot

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// 默认符号ID
const (
	SymbolWild    SymbolID = "wild"
	SymbolSeven   SymbolID = "seven"
	SymbolDiamond SymbolID = "diamond"
	SymbolBar     SymbolID = "bar"
	SymbolCherry  SymbolID = "cherry"
	SymbolBell    SymbolID = "bell"
)

var (
	ErrCatalogTooSmall  = errors.New("符号目录至少需要2个符号")
	ErrDuplicateSymbol  = errors.New("符号ID重复")
	ErrInvalidWeight    = errors.New("符号权重必须为正数")
	ErrInvalidPayout    = errors.New("符号赔付倍率必须为正数")
	ErrEmptySymbolID    = errors.New("符号ID不能为空")
	ErrSymbolNotInTable = errors.New("符号不在目录中")
)

// DefaultSymbols 霓虹主题默认符号表（按目录顺序）
func DefaultSymbols() []Symbol {
	return []Symbol{
		{ID: SymbolWild, Label: "Neon Wild", Icon: "★", Weight: 8, Multiplier: decimal.NewFromInt(12)},
		{ID: SymbolSeven, Label: "Lucky 7", Icon: "7️⃣", Weight: 10, Multiplier: decimal.NewFromInt(9)},
		{ID: SymbolDiamond, Label: "Crystal", Icon: "💎", Weight: 14, Multiplier: decimal.NewFromInt(6)},
		{ID: SymbolBar, Label: "BAR", Icon: "🟥", Weight: 16, Multiplier: decimal.RequireFromString("4.2")},
		{ID: SymbolCherry, Label: "Cherry", Icon: "🍒", Weight: 20, Multiplier: decimal.NewFromInt(3)},
		{ID: SymbolBell, Label: "Bell", Icon: "🔔", Weight: 22, Multiplier: decimal.RequireFromString("2.4")},
	}
}

// Catalog 固定顺序的符号目录
type Catalog struct {
	symbols     []Symbol
	index       map[SymbolID]int
	totalWeight float64
}

// NewCatalog 创建符号目录并校验
func NewCatalog(symbols []Symbol) (*Catalog, error) {
	if len(symbols) < 2 {
		return nil, ErrCatalogTooSmall
	}

	c := &Catalog{
		symbols: make([]Symbol, len(symbols)),
		index:   make(map[SymbolID]int, len(symbols)),
	}
	copy(c.symbols, symbols)

	for i, s := range c.symbols {
		if s.ID == "" {
			return nil, ErrEmptySymbolID
		}
		if _, exists := c.index[s.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSymbol, s.ID)
		}
		if !(s.Weight > 0) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidWeight, s.ID)
		}
		if !s.Multiplier.IsPositive() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPayout, s.ID)
		}
		c.index[s.ID] = i
		c.totalWeight += s.Weight
	}

	return c, nil
}

// DefaultCatalog 默认符号目录
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultSymbols())
	if err != nil {
		panic(err)
	}
	return c
}

// Symbols 返回符号副本（目录顺序）
func (c *Catalog) Symbols() []Symbol {
	out := make([]Symbol, len(c.symbols))
	copy(out, c.symbols)
	return out
}

// Len 符号数量
func (c *Catalog) Len() int {
	return len(c.symbols)
}

// At 按目录位置取符号
func (c *Catalog) At(i int) Symbol {
	return c.symbols[i]
}

// Lookup 按ID查找符号
func (c *Catalog) Lookup(id SymbolID) (Symbol, bool) {
	i, ok := c.index[id]
	if !ok {
		return Symbol{}, false
	}
	return c.symbols[i], true
}

// Contains 判断符号是否属于目录
func (c *Catalog) Contains(id SymbolID) bool {
	_, ok := c.index[id]
	return ok
}

// Position 符号的目录位置，不存在返回-1
func (c *Catalog) Position(id SymbolID) int {
	if i, ok := c.index[id]; ok {
		return i
	}
	return -1
}

// TotalWeight 权重总和
func (c *Catalog) TotalWeight() float64 {
	return c.totalWeight
}

// Probability 符号的理论出现概率
func (c *Catalog) Probability(id SymbolID) float64 {
	s, ok := c.Lookup(id)
	if !ok {
		return 0
	}
	return s.Weight / c.totalWeight
}
