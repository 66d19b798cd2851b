package server

import (
	"net"
	"net/http"
	"time"

	"github.com/tvshelf/imgcache/internal/config"
)

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   16,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewFetchClient 返回下载图片使用的 http.Client，超时取自 FetchTimeout。
func NewFetchClient(cfg *config.Config) *http.Client {
	timeout := config.DefaultFetchTimeout
	if cfg != nil && cfg.Global.FetchTimeout.DurationValue() > 0 {
		timeout = cfg.Global.FetchTimeout.DurationValue()
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: defaultTransport.Clone(),
	}
}
