package slot

// Sampler 按权重抽取符号
type Sampler struct {
	catalog *Catalog
	rng     RandomSource
}

// NewSampler 创建加权抽样器，rng 为 nil 时使用加密随机源
func NewSampler(catalog *Catalog, rng RandomSource) *Sampler {
	if rng == nil {
		rng = NewCryptoRandomGenerator()
	}
	return &Sampler{catalog: catalog, rng: rng}
}

// Sample 抽取一个符号
// 在 [0,总权重) 内掷点，按目录顺序累加权重，返回第一个累计值 >= 掷点的符号
func (s *Sampler) Sample() Symbol {
	roll := s.rng.Float64() * s.catalog.TotalWeight()

	cursor := 0.0
	for i := 0; i < s.catalog.Len(); i++ {
		sym := s.catalog.At(i)
		cursor += sym.Weight
		if cursor >= roll {
			return sym
		}
	}

	// 浮点误差导致未命中时回退到最后一个符号
	return s.catalog.At(s.catalog.Len() - 1)
}

// Catalog 返回抽样使用的目录
func (s *Sampler) Catalog() *Catalog {
	return s.catalog
}

// Generator 网格生成器
type Generator struct {
	sampler *Sampler
}

// NewGenerator 创建网格生成器
func NewGenerator(sampler *Sampler) *Generator {
	return &Generator{sampler: sampler}
}

// BuildRow 生成一个卷轴上的 rows 个独立符号
func (g *Generator) BuildRow(rows int) Row {
	row := make(Row, rows)
	for i := range row {
		row[i] = g.sampler.Sample()
	}
	return row
}

// BuildGrid 生成 reels 列 × rows 行的完整网格
func (g *Generator) BuildGrid(reels, rows int) Grid {
	grid := make(Grid, reels)
	for i := range grid {
		grid[i] = g.BuildRow(rows)
	}
	return grid
}

// Catalog 返回生成器使用的目录
func (g *Generator) Catalog() *Catalog {
	return g.sampler.Catalog()
}
