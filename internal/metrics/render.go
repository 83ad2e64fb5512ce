package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Renderer labels.
const (
	RendererCanvas   = "canvas"
	RendererPreview  = "preview"
	RendererDocument = "document"
)

var (
	renderCardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idcard",
			Subsystem: "render",
			Name:      "cards_total",
			Help:      "Cards rendered, by renderer.",
		},
		[]string{"renderer"},
	)

	renderPlaceholdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idcard",
			Subsystem: "render",
			Name:      "placeholders_total",
			Help:      "Image elements painted as placeholders, by renderer.",
		},
		[]string{"renderer"},
	)

	renderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "idcard",
			Subsystem: "render",
			Name:      "duration_seconds",
			Help:      "Render call latency in seconds, by renderer.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"renderer"},
	)
)

// ObserveRender records one render call.
func ObserveRender(renderer string, cards, placeholders int, started time.Time) {
	renderCardsTotal.WithLabelValues(renderer).Add(float64(cards))
	renderPlaceholdersTotal.WithLabelValues(renderer).Add(float64(placeholders))
	renderDuration.WithLabelValues(renderer).Observe(time.Since(started).Seconds())
}
