package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/wfunc/neon-reels/internal/api"
	"github.com/wfunc/neon-reels/internal/config"
	apperrors "github.com/wfunc/neon-reels/internal/errors"
	"github.com/wfunc/neon-reels/internal/game"
	"github.com/wfunc/neon-reels/internal/game/clock"
	"github.com/wfunc/neon-reels/internal/logger"
	ws "github.com/wfunc/neon-reels/internal/websocket"
	"go.uber.org/zap"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	clock   *clock.WheelClock
	manager *game.SessionManager
	hub     *ws.Hub
	http    *http.Server

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
		printConfig = flag.Bool("print-config", false, "以YAML格式输出生效配置后退出")
	)
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	if *printConfig {
		out, err := config.Dump()
		if err != nil {
			fmt.Printf("输出配置失败: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		os.Exit(0)
	}

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Cleanup()

	server := NewServer(cfg)
	if err := server.Start(); err != nil {
		logger.Fatal("服务器启动失败", zap.Error(err))
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("服务器已安全关闭")
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		logger: logger.GetLogger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("正在启动霓虹老虎机服务器...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode))

	if err := s.initComponents(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrUnknown, "初始化组件失败")
	}
	s.startServices()

	// 监听配置变化
	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("配置已更新，正在重新加载...")
		s.reloadConfig(newCfg)
	})

	s.logger.Info("服务器启动成功",
		zap.String("http", s.cfg.Server.Addr()),
		zap.String("websocket", s.cfg.WebSocket.Path))
	return nil
}

// initComponents 初始化组件
func (s *Server) initComponents() error {
	slotCfg, err := s.cfg.Game.Slot.Build()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrConfigValidate, "老虎机配置无效")
	}

	timing := s.cfg.Game.Timing
	s.clock = clock.NewWheelClock(timing.WheelTick, timing.WheelSize)

	s.manager, err = game.NewSessionManager(game.ManagerConfig{
		Logger:         logger.GetModuleLogger(logger.ModuleGame),
		Clock:          s.clock,
		Slot:           slotCfg,
		Rules:          s.cfg.Game.Session.Rules,
		Timing:         timing.Timing,
		SessionTimeout: s.cfg.Game.Session.SessionTimeout,
		MaxSessions:    s.cfg.Game.Session.MaxSessions,
	})
	if err != nil {
		return apperrors.FromGame(err)
	}

	wsCfg := s.cfg.WebSocket
	wsLogger := logger.GetModuleLogger(logger.ModuleWebSocket)
	s.hub = ws.NewHub(ws.NewGameMessageHandler(s.manager, wsLogger), ws.Options{
		PingInterval:   wsCfg.PingInterval,
		PongTimeout:    wsCfg.PongTimeout,
		WriteTimeout:   wsCfg.WriteTimeout,
		MaxMessageSize: wsCfg.MaxMessageSize,
		SendBufferSize: wsCfg.SendBufferSize,
	}, wsLogger)

	router := api.NewRouter(s.manager, s.hub, api.Options{
		Mode:              s.cfg.Server.Mode,
		WebSocketPath:     wsCfg.Path,
		ReadBufferSize:    wsCfg.ReadBufferSize,
		WriteBufferSize:   wsCfg.WriteBufferSize,
		EnableCompression: wsCfg.EnableCompression,
	}, logger.GetModuleLogger(logger.ModuleAPI))

	s.http = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      router.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	s.logger.Info("所有组件初始化完成",
		zap.Int("reels", slotCfg.Reels),
		zap.Int("rows", slotCfg.Rows),
		zap.Int("symbols", slotCfg.Catalog.Len()))
	return nil
}

// startServices 启动服务
func (s *Server) startServices() {
	s.clock.Start()
	if interval := s.cfg.Game.Session.CleanupInterval; interval > 0 {
		s.manager.StartCleanupTask(s.ctx, interval)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run(s.ctx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP服务异常退出", zap.Error(err))
			s.cancel()
		}
	}()
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
	case <-s.ctx.Done():
	}
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 停止接收新请求
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP服务关闭失败", zap.Error(err))
	}

	// 关闭连接中心与清理任务
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("所有服务已正常关闭")
	case <-shutdownCtx.Done():
		s.logger.Warn("关闭超时，强制退出")
		return apperrors.New(apperrors.ErrTimeout, "关闭超时")
	}

	s.manager.Shutdown()
	s.clock.Stop()

	if err := logger.Sync(); err != nil {
		fmt.Printf("同步日志失败: %v\n", err)
	}
	return nil
}

// reloadConfig 重新加载配置
// 日志级别立即生效，规则只影响之后创建的会话
func (s *Server) reloadConfig(newCfg *config.Config) {
	logger.ApplyLevels(&newCfg.Log)

	if err := s.manager.UpdateRules(newCfg.Game.Session.Rules); err != nil {
		s.logger.Warn("会话规则未更新", zap.Error(err))
	}
	s.cfg = newCfg
	s.logger.Info("配置重新加载完成")
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("霓虹老虎机服务器\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
