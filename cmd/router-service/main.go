package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"fundrouter.com/internal/app/reconciler"
	"fundrouter.com/internal/core/handler"
	"fundrouter.com/internal/core/service"
	"fundrouter.com/internal/infra/ethereum"
	"fundrouter.com/internal/infra/persistence"
	"fundrouter.com/internal/server"
	"fundrouter.com/pkg/config"
	"fundrouter.com/pkg/logger"
	"fundrouter.com/pkg/metrics"
	"fundrouter.com/pkg/orm"
	"fundrouter.com/pkg/safe"
	"fundrouter.com/pkg/xredis"
)

type Config struct {
	Name string `mapstructure:"name"`

	Http struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`

	Mysql struct {
		DSN         string `mapstructure:"dsn"`
		MaxIdle     int    `mapstructure:"max_idle"`
		MaxOpen     int    `mapstructure:"max_open"`
		MaxLifetime int    `mapstructure:"max_lifetime"`
	} `mapstructure:"mysql"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Chain struct {
		RpcUrl     string `mapstructure:"rpc_url"`
		Deployer   string `mapstructure:"deployer"`
		Treasury   string `mapstructure:"treasury"`
		PrivateKey string `mapstructure:"private_key"`
	} `mapstructure:"chain"`

	Reconcile struct {
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"reconcile"`

	Route struct {
		Concurrency int `mapstructure:"concurrency"`
	} `mapstructure:"route"`
}

func main() {
	// 1. 加载配置
	var c Config
	if _, err := config.LoadAndWatch("router", &c); err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// 2. 初始化基础设施
	logger.Init(c.Name, "info")
	defer logger.Sync()

	metrics.MustRegister()

	db := orm.NewMySQL(&orm.Config{
		DSN:         c.Mysql.DSN,
		MaxIdle:     c.Mysql.MaxIdle,
		MaxOpen:     c.Mysql.MaxOpen,
		MaxLifetime: c.Mysql.MaxLifetime,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. 链上适配器 + 签名者
	if !common.IsHexAddress(c.Chain.Deployer) || !common.IsHexAddress(c.Chain.Treasury) {
		logger.Fatal(ctx, "chain.deployer / chain.treasury 必须是合法地址")
	}
	chain, err := ethereum.New(c.Chain.RpcUrl, common.HexToAddress(c.Chain.Deployer))
	if err != nil {
		logger.Fatal(ctx, "ETH adapter init failed", zap.Error(err))
	}
	signer, err := ethereum.NewLocalSigner(c.Chain.PrivateKey)
	if err != nil {
		logger.Fatal(ctx, "load signing key failed", zap.Error(err))
	}

	// 4. 归集锁：配了 redis 用分布式锁，否则退化为进程内锁
	var locker service.SweepLocker
	if c.Redis.Addr != "" {
		rdb := xredis.NewRedis(&xredis.Config{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
		locker = service.NewRedisSweepLocker(rdb)
	} else {
		logger.Warn(ctx, "redis 未配置，归集锁退化为进程内实现 (多副本部署必须配 redis)")
		locker = service.NewMemorySweepLocker()
	}

	// 5. 组件装配 (依赖注入)
	repo := persistence.New(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Fatal(ctx, "migrate failed", zap.Error(err))
	}

	addressSvc := service.NewAddressService(chain, signer)
	depositSvc := service.NewDepositService(repo, addressSvc)
	routingSvc := service.NewRoutingService(repo, chain, signer, locker, common.HexToAddress(c.Chain.Treasury))
	routingSvc.SetConcurrency(c.Route.Concurrency)
	reconcileSvc := service.NewReconcileService(repo, chain)

	logger.Info(ctx, "✅ Infrastructure initialized")

	// 6. 后台对账循环
	loop := reconciler.New(reconcileSvc, c.Reconcile.Interval)
	safe.GoCtx(ctx, loop.Start)

	// 7. HTTP 服务
	srv := server.NewRouter(c.Http.Addr, handler.NewDepositHandler(depositSvc, routingSvc))
	safe.Go(func() {
		logger.Info(ctx, "🚀 HTTP listening", zap.String("addr", c.Http.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "http server failed", zap.Error(err))
		}
	})

	// 8. 优雅退出
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info(ctx, "Shutdown signal received...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "http shutdown failed", zap.Error(err))
	}
}
