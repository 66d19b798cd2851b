package server

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/tvshelf/imgcache/internal/imagecache"
)

// CacheService 描述 HTTP 层依赖的缓存能力，*imagecache.Manager 即为实现。
type CacheService interface {
	ResolveBlob(ctx context.Context, url string) imagecache.Resolution
	Stats() imagecache.Stats
	SetEnabled(ctx context.Context, enabled bool) error
	RecomputeSize(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger *logrus.Logger
	Cache  CacheService
	// Gatherer 为空时不注册 /-/metrics。
	Gatherer prometheus.Gatherer
}

const contextKeyRequestID = "_imgcache_request_id"

// NewApp builds a Fiber application exposing the image endpoint and the
// /-/ admin routes.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("cache service is required")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts.Logger))

	h := &handlers{cache: opts.Cache, logger: opts.Logger}
	app.Get("/images", h.serveImage)
	app.Get("/-/cache", h.stats)
	app.Put("/-/cache/enabled", h.setEnabled)
	app.Post("/-/cache/recompute", h.recompute)
	app.Delete("/-/cache", h.clear)

	if opts.Gatherer != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID 并记录访问日志。
func requestContextMiddleware(logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		start := time.Now()
		err := c.Next()

		logger.WithFields(logrus.Fields{
			"action":     "request",
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
			"request_id": reqID,
			"elapsed_ms": time.Since(start).Milliseconds(),
		}).Debug("request served")
		return err
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
