package dipdeck

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes training progress as Prometheus collectors. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Clusters prometheus.Gauge
	MaxDip   prometheus.Gauge
	Loss     *prometheus.GaugeVec
	Epochs   prometheus.Counter
	Merges   *prometheus.CounterVec
}

// NewMetrics creates unregistered collectors under the given namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Clusters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clusters",
			Help:      "Current number of clusters.",
		}),
		MaxDip: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "max_dip_pvalue",
			Help:      "Largest off-diagonal dip p-value after the last epoch.",
		}),
		Loss: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loss",
			Help:      "Loss terms of the last optimizer step.",
		}, []string{"term"}),
		Epochs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "epochs_total",
			Help:      "Clustering epochs run.",
		}),
		Merges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_total",
			Help:      "Cluster count reductions by kind.",
		}, []string{"kind"}),
	}
}

// Register registers all collectors with r.
func (m *Metrics) Register(r prometheus.Registerer) error {
	if m == nil {
		return errors.New("dipdeck: nil metrics")
	}
	for _, c := range []prometheus.Collector{m.Clusters, m.MaxDip, m.Loss, m.Epochs, m.Merges} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) setClusters(n int) {
	if m == nil {
		return
	}
	m.Clusters.Set(float64(n))
}

func (m *Metrics) observeEpoch(loss StepLoss, maxDip float64) {
	if m == nil {
		return
	}
	m.Epochs.Inc()
	m.MaxDip.Set(maxDip)
	m.Loss.WithLabelValues("reconstruction").Set(loss.Reconstruction)
	m.Loss.WithLabelValues("cluster").Set(loss.Cluster)
	m.Loss.WithLabelValues("total").Set(loss.Total)
}

func (m *Metrics) observeMerge(ev MergeEvent) {
	if m == nil {
		return
	}
	m.Merges.WithLabelValues(string(ev.Kind)).Inc()
	m.Clusters.Set(float64(ev.NClusters))
}
