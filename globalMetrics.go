package casan

import (
	"github.com/coalalib/casan/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are registered once on the default Prometheus registry.
var Metrics = metrics.New("casan", prometheus.DefaultRegisterer)
