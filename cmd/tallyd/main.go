package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/sooomo/tally/cache"
	"github.com/sooomo/tally/config"
	"github.com/sooomo/tally/crypto"
	tnet "github.com/sooomo/tally/net"
)

func initLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func main() {
	configPath := flag.String("config", "", "path to yaml config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := initLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store tnet.TallyStore
	var nonces nonceStore
	if cfg.CacheEnabled() {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		s, err := cache.Dial(dialCtx, &redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.Prefix, cfg.Redis.TTL)
		cancel()
		if err != nil {
			logger.Error("failed to connect redis", slog.String("addr", cfg.Redis.Addr), slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := s.Close(); err != nil {
				logger.Error("failed to close redis", slog.Any("error", err))
			}
		}()
		store = s
		nonces = s
		logger.Info("tally cache enabled", slog.String("addr", cfg.Redis.Addr), slog.Duration("ttl", cfg.Redis.TTL))
	}

	engine, err := newEngine(cfg, store, nonces, logger)
	if err != nil {
		logger.Error("failed to build router", slog.Any("error", err))
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("tallyd listening", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
	logger.Info("tallyd stopped")
}

type nonceStore interface {
	MarkNonce(ctx context.Context, nonce string) (bool, error)
}

// nonce 存储出错时拒绝请求
func replayGuard(nonces nonceStore, logger *slog.Logger) func(ctx context.Context, nonce string) bool {
	return func(ctx context.Context, nonce string) bool {
		first, err := nonces.MarkNonce(ctx, nonce)
		if err != nil {
			logger.Warn("failed to mark nonce", slog.Any("error", err))
			return false
		}
		return first
	}
}

// nonces 为空时不做重放拦截
func newEngine(cfg *config.Config, store tnet.TallyStore, nonces nonceStore, logger *slog.Logger) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))
	if cfg.RateLimit > 0 {
		r.Use(tnet.RateLimitMiddleware(rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)))
	}

	var signer crypto.Signer
	if cfg.SignEnabled() {
		s, err := crypto.NewEd25519SignerFromString(cfg.Sign.RemotePublicKey, cfg.Sign.SelfPrivateKey)
		if err != nil {
			return nil, err
		}
		signer = s
		tnet.InitSignHeaders(cfg.Sign.BizType)
		r.Use(tnet.SignatureMiddleware(func(*gin.Context) crypto.Signer { return signer }, nil, cfg.MaxBodyBytes))
		// 先验签再登记 nonce，未签名的请求无法占用 nonce
		if nonces != nil {
			r.Use(tnet.ReplayInterceptMiddleware(replayGuard(nonces, logger)))
		} else {
			logger.Warn("signing enabled without redis, replay protection disabled")
		}
	}

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	tnet.NewCounter(store, cfg.MaxBodyBytes).Register(r, signer, nil)
	return r, nil
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)))
	}
}
