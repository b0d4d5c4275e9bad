package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"nofx/config"
	"nofx/exchange"
	"nofx/logger"
	"nofx/manager"
	"nofx/market"
	"nofx/provider"
)

func main() {
	fmt.Println("╔════════════════════════════════════════════════════════════╗")
	fmt.Println("║    网格交易控制面 - 多交易员共享账户                     ║")
	fmt.Println("╚════════════════════════════════════════════════════════════╝")
	fmt.Println()

	// 配置文件路径，默认config.json，可通过第一个参数覆盖
	cfgPath := "config.json"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	if err := logger.Init(cfg.Log); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	logger.Infof("main: loaded config from %s, %d traders, %d symbols", cfgPath, len(cfg.TraderIDs), len(cfg.AllowedSymbols))

	var gw exchange.Gateway
	var refresher *market.LiveRefresher
	if cfg.BinanceAPIKey == "" || cfg.BinanceAPISecret == "" {
		logger.Warnf("main: BINANCE_API_KEY/BINANCE_API_SECRET not set, running against the in-memory fake gateway")
		gw = exchange.NewFake()
	} else {
		futures.UseTestnet = cfg.BinanceTestnet
		gw = exchange.NewBinanceGateway(cfg.BinanceAPIKey, cfg.BinanceAPISecret, 10)
	}

	// 具体的决策供应商（对外部LLM的HTTP调用）不在本仓库范围内；
	// 此处用固定HOLD占位，便于在无外部依赖的情况下跑通整条管道。
	providers := make(map[string]provider.Provider, len(cfg.TraderIDs))
	for _, id := range cfg.TraderIDs {
		providers[id] = provider.NewFixedHold()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	system, err := manager.Bootstrap(ctx, cfg, gw, providers)
	if err != nil {
		log.Fatalf("初始化系统失败: %v", err)
	}

	if _, isFake := gw.(*exchange.Fake); !isFake {
		refresher = market.NewLiveRefresher(system.Market, cfg.AllowedSymbols, cfg.KlineInterval, 50)
		if err := refresher.Start(); err != nil {
			logger.Warnf("main: live kline refresher failed to start, falling back to TTL-only caching: %v", err)
			refresher = nil
		}
	}

	fmt.Println()
	fmt.Println("交易员:")
	for _, id := range cfg.TraderIDs {
		fmt.Printf("  • %s\n", id)
	}
	fmt.Println()
	fmt.Printf("决策周期: %s, 对账周期: %s\n", cfg.Scheduler.DecisionIntervalDuration(), cfg.Scheduler.ReconcileIntervalDuration())
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println()

	system.Scheduler.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println()
	logger.Infof("main: shutdown signal received, stopping scheduler")
	if refresher != nil {
		refresher.Stop()
	}
	system.Scheduler.Stop(10 * time.Second)
	logger.Infof("main: stopped cleanly")
}
