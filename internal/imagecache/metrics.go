package imagecache

import "github.com/prometheus/client_golang/prometheus"

// resolve 结果标签。
const (
	resultHit    = "hit"
	resultMiss   = "miss"
	resultBypass = "bypass"
	resultError  = "error"
)

// Metrics 汇总缓存的 Prometheus 指标；nil Metrics 的方法均为空操作。
type Metrics struct {
	resolves     *prometheus.CounterVec
	evictions    prometheus.Counter
	evictedBytes prometheus.Counter
	trackedBytes prometheus.Gauge
}

// NewMetrics 创建指标并注册到 reg。
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imgcache",
			Name:      "resolve_total",
			Help:      "Image resolve calls partitioned by result.",
		}, []string{"result"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imgcache",
			Name:      "evictions_total",
			Help:      "Blobs deleted by trim.",
		}),
		evictedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imgcache",
			Name:      "evicted_bytes_total",
			Help:      "Bytes freed by trim.",
		}),
		trackedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "imgcache",
			Name:      "tracked_bytes",
			Help:      "Current tracked size of the blob directory.",
		}),
	}

	for _, c := range []prometheus.Collector{m.resolves, m.evictions, m.evictedBytes, m.trackedBytes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeResolve(result string) {
	if m == nil {
		return
	}
	m.resolves.WithLabelValues(result).Inc()
}

func (m *Metrics) observeEviction(bytes int64) {
	if m == nil {
		return
	}
	m.evictions.Inc()
	m.evictedBytes.Add(float64(bytes))
}

func (m *Metrics) setTracked(bytes int64) {
	if m == nil {
		return
	}
	m.trackedBytes.Set(float64(bytes))
}
