package server

import (
	"encoding/json"
	"net/url"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

// 响应头 X-Image-Cache 的取值。
const (
	headerImageCache = "X-Image-Cache"
	cacheHit         = "HIT"
	cacheMiss        = "MISS"
	cacheBypass      = "BYPASS"
)

type handlers struct {
	cache  CacheService
	logger *logrus.Logger
}

type enabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// serveImage 解析 url：本地 blob 直接返回文件，其他情况 302 到原始地址。
func (h *handlers) serveImage(c fiber.Ctx) error {
	rawURL := c.Query("url")
	if rawURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "url_required"})
	}
	if !isHTTPURL(rawURL) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_url"})
	}

	res := h.cache.ResolveBlob(c.Context(), rawURL)
	if !res.Cached {
		c.Set(headerImageCache, cacheBypass)
		return c.Redirect().Status(fiber.StatusFound).To(rawURL)
	}

	if res.Hit {
		c.Set(headerImageCache, cacheHit)
	} else {
		c.Set(headerImageCache, cacheMiss)
	}
	return c.SendFile(res.Ref)
}

// isHTTPURL 仅接受带 host 的 http/https 绝对地址。
func isHTTPURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return false
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https"
}

func (h *handlers) stats(c fiber.Ctx) error {
	return c.JSON(h.cache.Stats())
}

func (h *handlers) setEnabled(c fiber.Ctx) error {
	var req enabledRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil || req.Enabled == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
	}

	if err := h.cache.SetEnabled(c.Context(), *req.Enabled); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"action":     "set_enabled",
			"enabled":    *req.Enabled,
			"request_id": RequestID(c),
		}).Warn("切换缓存开关失败")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "set_enabled_failed"})
	}
	return c.JSON(h.cache.Stats())
}

func (h *handlers) recompute(c fiber.Ctx) error {
	if _, err := h.cache.RecomputeSize(c.Context()); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"action":     "recompute",
			"request_id": RequestID(c),
		}).Warn("重算缓存大小失败")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "recompute_failed"})
	}
	return c.JSON(h.cache.Stats())
}

func (h *handlers) clear(c fiber.Ctx) error {
	if err := h.cache.Clear(c.Context()); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"action":     "clear",
			"request_id": RequestID(c),
		}).Warn("清空缓存失败")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "clear_failed"})
	}
	return c.JSON(h.cache.Stats())
}
