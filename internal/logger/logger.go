package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wfunc/neon-reels/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// 常用模块名
const (
	ModuleGame      = "game"
	ModuleWebSocket = "websocket"
	ModuleAPI       = "api"
)

// state 一次 Init 构建出的全部日志器
type state struct {
	root    *zap.Logger
	helper  *zap.Logger // 包级便捷方法使用，多跳过一层调用栈
	level   zap.AtomicLevel
	modules map[string]*zap.Logger
	levels  map[string]zap.AtomicLevel
	files   []*lumberjack.Logger
}

var (
	current *state
	mu      sync.RWMutex

	fallbackOnce sync.Once
	fallback     *zap.Logger
)

// Init 初始化日志系统，可重复调用以应用新配置
func Init(cfg *config.LogConfig) error {
	s, err := build(cfg)
	if err != nil {
		return err
	}

	mu.Lock()
	old := current
	current = s
	mu.Unlock()

	if old != nil {
		_ = old.root.Sync()
		old.close()
	}
	return nil
}

func build(cfg *config.LogConfig) (*state, error) {
	// 创建编码器配置
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	// 根据格式选择编码器
	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	s := &state{
		level:   zap.NewAtomicLevelAt(parseLevel(cfg.Level)),
		modules: make(map[string]*zap.Logger),
		levels:  make(map[string]zap.AtomicLevel),
	}

	// 输出目标
	var writers []zapcore.WriteSyncer
	var errorWriter zapcore.WriteSyncer
	if cfg.Output == "stdout" || cfg.Output == "both" || cfg.Output == "" {
		writers = append(writers, zapcore.Lock(os.Stdout))
	}
	if cfg.Output == "file" || cfg.Output == "both" {
		logDir := cfg.File.Path
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, fmt.Errorf("创建日志目录: %w", err)
		}

		// 文件写入器（支持日志轮转）
		fileWriter := s.rotate(filepath.Join(logDir, cfg.File.Filename), cfg.File)
		writers = append(writers, zapcore.AddSync(fileWriter))

		// 单独的错误日志文件
		errorWriter = zapcore.AddSync(s.rotate(filepath.Join(logDir, "error.log"), cfg.File))
	}

	newCore := func(enabler zapcore.LevelEnabler) zapcore.Core {
		cores := make([]zapcore.Core, 0, len(writers)+1)
		for _, w := range writers {
			cores = append(cores, zapcore.NewCore(encoder, w, enabler))
		}
		if errorWriter != nil {
			cores = append(cores, zapcore.NewCore(encoder, errorWriter, zapcore.ErrorLevel))
		}
		return zapcore.NewTee(cores...)
	}

	s.root = zap.New(
		newCore(s.level),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	s.helper = s.root.WithOptions(zap.AddCallerSkip(1))

	// 初始化模块日志器
	for module, levelStr := range cfg.Modules {
		moduleLevel := zap.NewAtomicLevelAt(parseLevel(levelStr))
		s.levels[module] = moduleLevel
		s.modules[module] = zap.New(
			newCore(moduleLevel),
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		).Named(module)
	}

	return s, nil
}

func (s *state) rotate(filename string, cfg config.LogFileConfig) *lumberjack.Logger {
	w := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    cfg.MaxSize,    // MB
		MaxAge:     cfg.MaxAge,     // days
		MaxBackups: cfg.MaxBackups, // 保留文件数
		Compress:   cfg.Compress,
	}
	s.files = append(s.files, w)
	return w
}

func (s *state) close() {
	for _, f := range s.files {
		_ = f.Close()
	}
}

// parseLevel 解析日志级别
func parseLevel(levelStr string) zapcore.Level {
	level, err := zapcore.ParseLevel(levelStr)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

func load() *state {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func defaultLogger() *zap.Logger {
	fallbackOnce.Do(func() {
		l, err := zap.NewProduction()
		if err != nil {
			l = zap.NewNop()
		}
		fallback = l
	})
	return fallback
}

// GetLogger 获取日志器
func GetLogger() *zap.Logger {
	if s := load(); s != nil {
		return s.root
	}
	// 未初始化时使用默认配置
	return defaultLogger()
}

func helper() *zap.Logger {
	if s := load(); s != nil {
		return s.helper
	}
	return defaultLogger().WithOptions(zap.AddCallerSkip(1))
}

// GetModuleLogger 获取模块日志器，未单独配置的模块沿用全局级别
func GetModuleLogger(module string) *zap.Logger {
	s := load()
	if s == nil {
		return defaultLogger().Named(module)
	}
	if l, ok := s.modules[module]; ok {
		return l
	}
	return s.root.Named(module)
}

// SetLevel 动态设置全局日志级别
func SetLevel(levelStr string) {
	if s := load(); s != nil {
		s.level.SetLevel(parseLevel(levelStr))
	}
}

// ApplyLevels 按新配置调整全局和模块日志级别，不重建输出
func ApplyLevels(cfg *config.LogConfig) {
	s := load()
	if s == nil {
		return
	}
	s.level.SetLevel(parseLevel(cfg.Level))
	for module, levelStr := range cfg.Modules {
		if lvl, ok := s.levels[module]; ok {
			lvl.SetLevel(parseLevel(levelStr))
		}
	}
}

// Sync 同步日志缓冲区
func Sync() error {
	if s := load(); s != nil {
		return s.root.Sync()
	}
	return nil
}

// Cleanup 同步并关闭日志文件
func Cleanup() {
	mu.Lock()
	s := current
	current = nil
	mu.Unlock()

	if s == nil {
		return
	}
	// 同步标准输出在部分平台上会返回 EINVAL，忽略
	_ = s.root.Sync()
	s.close()
}

// Debug 输出调试日志
func Debug(msg string, fields ...zap.Field) {
	helper().Debug(msg, fields...)
}

// Info 输出信息日志
func Info(msg string, fields ...zap.Field) {
	helper().Info(msg, fields...)
}

// Warn 输出警告日志
func Warn(msg string, fields ...zap.Field) {
	helper().Warn(msg, fields...)
}

// Error 输出错误日志
func Error(msg string, fields ...zap.Field) {
	helper().Error(msg, fields...)
}

// Fatal 输出致命错误日志并退出程序
func Fatal(msg string, fields ...zap.Field) {
	helper().Fatal(msg, fields...)
}

// LogRequest 记录请求日志
func LogRequest(method, path string, statusCode int, latency time.Duration, clientIP string) {
	GetModuleLogger(ModuleAPI).Info("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", statusCode),
		zap.Duration("latency", latency),
		zap.String("client_ip", clientIP),
	)
}

// LogError 记录错误日志（带堆栈）
func LogError(err error, msg string, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	helper().Error(msg, fields...)
}

// LogPanic 记录panic日志
func LogPanic(recovered interface{}, stack []byte) {
	helper().Error("panic recovered",
		zap.Any("panic", recovered),
		zap.ByteString("stack", stack),
	)
}

// LogGameEvent 记录游戏事件
func LogGameEvent(event string, sessionID string, data map[string]interface{}) {
	GetModuleLogger(ModuleGame).Info("game_event",
		zap.String("event", event),
		zap.String("session_id", sessionID),
		zap.Any("data", data),
	)
}

// LogWebSocketMessage 记录WebSocket消息
func LogWebSocketMessage(direction string, messageType string, payload interface{}) {
	GetModuleLogger(ModuleWebSocket).Debug("ws_message",
		zap.String("direction", direction), // "send" or "receive"
		zap.String("type", messageType),
		zap.Any("payload", payload),
	)
}
