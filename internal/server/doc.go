// Package server hosts the Fiber HTTP service in front of the image cache.
// It exposes the image resolve endpoint, a small /-/ admin surface for cache
// stats, the enabled toggle, recompute and clear, plus the Prometheus scrape
// endpoint. Handlers depend on the CacheService interface so tests can run
// against a real Manager backed by temp directories.
package server
