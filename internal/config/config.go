package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/wfunc/neon-reels/internal/game"
	"github.com/wfunc/neon-reels/internal/game/reel"
	"github.com/wfunc/neon-reels/internal/game/slot"
	"gopkg.in/yaml.v3"
)

// EnvPrefix 环境变量前缀，例如 NEON_REELS_SERVER_PORT
const EnvPrefix = "NEON_REELS"

var ErrInvalidConfig = errors.New("配置验证失败")

// Config 全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Game      GameConfig      `mapstructure:"game"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr 监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// WebSocketConfig WebSocket配置
type WebSocketConfig struct {
	Path              string        `mapstructure:"path"`
	ReadBufferSize    int           `mapstructure:"read_buffer_size"`
	WriteBufferSize   int           `mapstructure:"write_buffer_size"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
	SendBufferSize    int           `mapstructure:"send_buffer_size"` // 每个连接的发送队列长度
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	PongTimeout       time.Duration `mapstructure:"pong_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	EnableCompression bool          `mapstructure:"enable_compression"`
}

// GameConfig 游戏配置
type GameConfig struct {
	Slot    SlotConfig    `mapstructure:"slot"`
	Session SessionConfig `mapstructure:"session"`
	Timing  TimingConfig  `mapstructure:"timing"`
}

// SlotConfig 老虎机配置
type SlotConfig struct {
	Reels             int                `mapstructure:"reels"`
	Rows              int                `mapstructure:"rows"`
	Symbols           []SymbolConfig     `mapstructure:"symbols"`
	StreakMultipliers map[string]float64 `mapstructure:"streak_multipliers"` // 连线数 -> 倍率
	WildSymbol        string             `mapstructure:"wild_symbol"`
	SevenSymbol       string             `mapstructure:"seven_symbol"`
	AdvertisedRTP     float64            `mapstructure:"advertised_rtp"`
}

// SymbolConfig 符号配置
type SymbolConfig struct {
	ID         string  `mapstructure:"id"`
	Label      string  `mapstructure:"label"`
	Icon       string  `mapstructure:"icon"`
	Weight     float64 `mapstructure:"weight"`
	Multiplier float64 `mapstructure:"multiplier"`
}

// SessionConfig 会话配置
type SessionConfig struct {
	game.Rules      `mapstructure:",squash"`
	MaxSessions     int           `mapstructure:"max_sessions"`
	SessionTimeout  time.Duration `mapstructure:"session_timeout"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// TimingConfig 卷轴时间配置
type TimingConfig struct {
	reel.Timing `mapstructure:",squash"`
	WheelTick   time.Duration `mapstructure:"wheel_tick"` // 时间轮精度
	WheelSize   int64         `mapstructure:"wheel_size"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"` // 模块 -> 级别
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		var loaded *Config
		v = newViper(configPath)
		if loaded, err = load(v); err != nil {
			return
		}
		mu.Lock()
		cfg = loaded
		mu.Unlock()
	})

	return err
}

// Load 读取并校验一份独立的配置，不影响全局实例
func Load(configPath string) (*Config, error) {
	return load(newViper(configPath))
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()

	// 设置配置文件路径
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// 设置环境变量前缀
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

func load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认配置
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件: %w", err)
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("解析配置: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// WebSocket默认配置
	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 4096)
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("websocket.send_buffer_size", 256)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_timeout", "60s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.enable_compression", false)

	// 老虎机默认配置
	slotDefaults := slot.GetDefaultConfig()
	symbols := make([]map[string]interface{}, 0, slotDefaults.Catalog.Len())
	for _, s := range slotDefaults.Catalog.Symbols() {
		symbols = append(symbols, map[string]interface{}{
			"id":         string(s.ID),
			"label":      s.Label,
			"icon":       s.Icon,
			"weight":     s.Weight,
			"multiplier": s.Multiplier.InexactFloat64(),
		})
	}
	streaks := make(map[string]interface{}, len(slotDefaults.StreakMultipliers))
	for n, m := range slotDefaults.StreakMultipliers {
		streaks[strconv.Itoa(n)] = m.InexactFloat64()
	}
	v.SetDefault("game.slot.reels", slotDefaults.Reels)
	v.SetDefault("game.slot.rows", slotDefaults.Rows)
	v.SetDefault("game.slot.symbols", symbols)
	v.SetDefault("game.slot.streak_multipliers", streaks)
	v.SetDefault("game.slot.wild_symbol", string(slotDefaults.WildSymbol))
	v.SetDefault("game.slot.seven_symbol", string(slotDefaults.SevenSymbol))
	v.SetDefault("game.slot.advertised_rtp", slotDefaults.AdvertisedRTP)

	// 会话默认配置
	rules := game.DefaultRules()
	v.SetDefault("game.session.initial_balance", rules.InitialBalance)
	v.SetDefault("game.session.default_bet", rules.DefaultBet)
	v.SetDefault("game.session.min_bet", rules.MinBet)
	v.SetDefault("game.session.max_bet", rules.MaxBet)
	v.SetDefault("game.session.bet_step", rules.BetStep)
	v.SetDefault("game.session.quick_bets", rules.QuickBets)
	v.SetDefault("game.session.demo_subsidy_factor", rules.DemoSubsidyFactor)
	v.SetDefault("game.session.demo_chain", rules.DemoChain)
	v.SetDefault("game.session.demo_pause", rules.DemoPause.String())
	v.SetDefault("game.session.history_size", rules.HistorySize)
	v.SetDefault("game.session.max_sessions", 1000)
	v.SetDefault("game.session.session_timeout", "30m")
	v.SetDefault("game.session.cleanup_interval", "1m")

	// 卷轴时间默认配置
	timing := reel.DefaultTiming()
	v.SetDefault("game.timing.base_delay", timing.BaseDelay.String())
	v.SetDefault("game.timing.stagger", timing.Stagger.String())
	v.SetDefault("game.timing.jitter_max", timing.JitterMax.String())
	v.SetDefault("game.timing.redraw_base", timing.RedrawBase.String())
	v.SetDefault("game.timing.redraw_step", timing.RedrawStep.String())
	v.SetDefault("game.timing.wheel_tick", "5ms")
	v.SetDefault("game.timing.wheel_size", 64)

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "neon-reels.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: 端口 %d 无效", ErrInvalidConfig, c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("%w: 未知的运行模式 %q", ErrInvalidConfig, c.Server.Mode)
	}
	if !strings.HasPrefix(c.WebSocket.Path, "/") {
		return fmt.Errorf("%w: websocket.path 必须以 / 开头", ErrInvalidConfig)
	}
	if c.WebSocket.SendBufferSize <= 0 {
		return fmt.Errorf("%w: websocket.send_buffer_size 必须为正数", ErrInvalidConfig)
	}
	switch c.Log.Output {
	case "stdout", "file", "both":
	default:
		return fmt.Errorf("%w: 未知的日志输出 %q", ErrInvalidConfig, c.Log.Output)
	}

	if _, err := c.Game.Slot.Build(); err != nil {
		return fmt.Errorf("%w: game.slot: %v", ErrInvalidConfig, err)
	}
	if err := c.Game.Session.Rules.Validate(); err != nil {
		return fmt.Errorf("%w: game.session: %v", ErrInvalidConfig, err)
	}
	if c.Game.Session.MaxSessions < 0 || c.Game.Session.SessionTimeout < 0 {
		return fmt.Errorf("%w: game.session 会话上限和超时不能为负", ErrInvalidConfig)
	}
	if c.Game.Session.SessionTimeout > 0 && c.Game.Session.CleanupInterval <= 0 {
		return fmt.Errorf("%w: game.session.cleanup_interval 必须为正数", ErrInvalidConfig)
	}
	if err := c.Game.Timing.Timing.Validate(); err != nil {
		return fmt.Errorf("%w: game.timing: %v", ErrInvalidConfig, err)
	}
	if c.Game.Timing.WheelTick < time.Millisecond || c.Game.Timing.WheelSize <= 0 {
		return fmt.Errorf("%w: game.timing 时间轮参数无效", ErrInvalidConfig)
	}
	return nil
}

// Build 根据配置构建老虎机配置
func (s SlotConfig) Build() (*slot.SlotConfig, error) {
	symbols := make([]slot.Symbol, 0, len(s.Symbols))
	for _, sc := range s.Symbols {
		symbols = append(symbols, slot.Symbol{
			ID:         slot.SymbolID(sc.ID),
			Label:      sc.Label,
			Icon:       sc.Icon,
			Weight:     sc.Weight,
			Multiplier: decimal.NewFromFloat(sc.Multiplier),
		})
	}
	catalog, err := slot.NewCatalog(symbols)
	if err != nil {
		return nil, err
	}

	streaks := make(map[int]decimal.Decimal, len(s.StreakMultipliers))
	for key, m := range s.StreakMultipliers {
		n, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: 连线数 %q 不是整数", slot.ErrInvalidStreak, key)
		}
		streaks[n] = decimal.NewFromFloat(m)
	}

	built := &slot.SlotConfig{
		Reels:             s.Reels,
		Rows:              s.Rows,
		Catalog:           catalog,
		StreakMultipliers: streaks,
		WildSymbol:        slot.SymbolID(s.WildSymbol),
		SevenSymbol:       slot.SymbolID(s.SevenSymbol),
		AdvertisedRTP:     s.AdvertisedRTP,
	}
	if err := slot.ValidateConfig(built); err != nil {
		return nil, err
	}
	return built, nil
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化，只有通过校验的配置才会生效
func Watch(callback func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Fprintf(os.Stderr, "配置重载失败: %v\n", err)
			return
		}
		if err := newCfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "配置重载被拒绝: %v\n", err)
			return
		}

		mu.Lock()
		cfg = newCfg
		mu.Unlock()

		if callback != nil {
			callback(newCfg)
		}
	})
	v.WatchConfig()
}

// Dump 以YAML格式输出当前生效的全部配置
func Dump() ([]byte, error) {
	if v == nil {
		return nil, errors.New("配置未初始化")
	}
	return yaml.Marshal(v.AllSettings())
}
