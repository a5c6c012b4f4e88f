package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ceyewan/minichat/internal/clog"
	"github.com/ceyewan/minichat/internal/config"
	"github.com/ceyewan/minichat/internal/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if err := clog.Init(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	logger := clog.Module("main")

	srv, err := server.New(cfg)
	if err != nil {
		logger.Error("初始化服务器失败", clog.Err(err))
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("收到退出信号", clog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("服务器异常退出", clog.Err(err))
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭失败", clog.Err(err))
		os.Exit(1)
	}
	logger.Info("服务器已退出")
}
