package slot

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand/v2"
	"sync"
	"time"
)

// CryptoRandomGenerator 加密安全的随机数生成器
// 读取 crypto/rand 失败时退化为按时间播种的伪随机源，不返回错误
type CryptoRandomGenerator struct {
	mu       sync.Mutex
	fallback *mrand.Rand
}

// NewCryptoRandomGenerator 创建加密随机数生成器
func NewCryptoRandomGenerator() *CryptoRandomGenerator {
	return &CryptoRandomGenerator{}
}

// Float64 生成 [0,1) 内的随机数
func (g *CryptoRandomGenerator) Float64() float64 {
	v, ok := g.next64()
	if !ok {
		return g.fallbackFloat64()
	}
	// 取高53位，保证均匀且严格小于1
	return float64(v>>11) / (1 << 53)
}

// IntN 生成 [0,n) 内的随机整数
func (g *CryptoRandomGenerator) IntN(n int) int {
	if n <= 1 {
		return 0
	}
	v, ok := g.next64()
	if !ok {
		return g.fallbackIntN(n)
	}
	// 拒绝采样消除取模偏差
	limit := ^uint64(0) - ^uint64(0)%uint64(n)
	for v >= limit {
		if v, ok = g.next64(); !ok {
			return g.fallbackIntN(n)
		}
	}
	return int(v % uint64(n))
}

func (g *CryptoRandomGenerator) next64() (uint64, bool) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, false
	}
	return binary.LittleEndian.Uint64(buf[:]), true
}

// fallbackRand 懒加载的时间种子伪随机源，调用方需持有 g.mu
func (g *CryptoRandomGenerator) fallbackRand() *mrand.Rand {
	if g.fallback == nil {
		seed := uint64(time.Now().UnixNano())
		g.fallback = mrand.New(mrand.NewPCG(seed, seed>>1|1))
	}
	return g.fallback
}

func (g *CryptoRandomGenerator) fallbackFloat64() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fallbackRand().Float64()
}

func (g *CryptoRandomGenerator) fallbackIntN(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fallbackRand().IntN(n)
}

// SeededRandom 可复现的伪随机源，用于模拟和测试
type SeededRandom struct {
	mu sync.Mutex
	r  *mrand.Rand
}

// NewSeededRandom 创建固定种子的随机源
func NewSeededRandom(seed uint64) *SeededRandom {
	return &SeededRandom{r: mrand.New(mrand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Float64 生成 [0,1) 内的随机数
func (s *SeededRandom) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

// IntN 生成 [0,n) 内的随机整数
func (s *SeededRandom) IntN(n int) int {
	if n <= 1 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}

// JitterSource 停轮抖动来源
// 优先使用加密随机源；不可用时退化为当前时间取模
type JitterSource struct {
	src RandomSource
	now func() time.Time
}

// NewJitterSource 创建抖动来源，src 为 nil 时只使用时间取模
func NewJitterSource(src RandomSource) *JitterSource {
	return &JitterSource{src: src, now: time.Now}
}

// Next 返回 [0,max) 毫秒的抖动
func (j *JitterSource) Next(max time.Duration) time.Duration {
	ms := int(max / time.Millisecond)
	if ms <= 0 {
		return 0
	}
	if j.src != nil {
		return time.Duration(j.src.IntN(ms)) * time.Millisecond
	}
	return time.Duration(j.now().UnixMilli()%int64(ms)) * time.Millisecond
}
