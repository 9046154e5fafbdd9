package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprom "github.com/zsais/go-gin-prometheus"

	"fundrouter.com/internal/core/handler"
	"fundrouter.com/pkg/middleware"
	"fundrouter.com/pkg/ratelimit"
)

// NewRouter 组装 HTTP 服务
func NewRouter(addr string, deposit *handler.DepositHandler) *http.Server {
	// 限流。清理协程跟随进程生命周期
	store := ratelimit.NewStore(100, 200, 10*time.Minute)
	store.StartJanitor(context.Background(), time.Minute)

	r := gin.New()
	// 监控
	p := ginprom.NewPrometheus("fundrouter")
	p.Use(r)
	r.Use(
		middleware.ReqId(),
		cors.Default(), // 前端直连，先放开
		middleware.Recover(),
		middleware.RateLimit(store),
	)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.POST("/deposits", deposit.Create)
		api.GET("/deposits", deposit.List)
		api.POST("/route", deposit.Route)
	}

	return &http.Server{
		Addr:           addr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   60 * time.Second, // /route 会同步等链上确认，放宽一点
		MaxHeaderBytes: 1 << 20,
	}
}
