// Package metrics holds the Prometheus counters of the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type MetricsList struct {
	ReceivedMessages *prometheus.CounterVec
	SentMessages     *prometheus.CounterVec
	SentMessageError *prometheus.CounterVec
	DecodeErrors     *prometheus.CounterVec
	ReceiveErrors    *prometheus.CounterVec
	Duplicates       *prometheus.CounterVec
	Retransmissions  prometheus.Counter
	ExpiredMessages  prometheus.Counter
	Unresponsive     prometheus.Counter
	Associations     prometheus.Counter
	SlaveResets      prometheus.Counter
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	HTTPRequests     *prometheus.CounterVec
}

// New registers the gateway metrics on reg under namespace.
func New(namespace string, reg prometheus.Registerer) *MetricsList {
	if namespace == "" {
		namespace = "casan"
	}
	f := promauto.With(reg)

	return &MetricsList{
		ReceivedMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "received_messages_total",
			Help:      "CoAP datagrams received, by link and type",
		}, []string{"link", "type"}),
		SentMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sent_messages_total",
			Help:      "CoAP datagrams sent, by link and type",
		}, []string{"link", "type"}),
		SentMessageError: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "Failed link writes",
		}, []string{"link"}),
		DecodeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Received datagrams dropped because they did not decode",
		}, []string{"link"}),
		ReceiveErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receive_errors_total",
			Help:      "Failed link reads, retried after a pause",
		}, []string{"link"}),
		Duplicates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_total",
			Help:      "Duplicate CON/NON datagrams absorbed or answered from the dedup store",
		}, []string{"link"}),
		Retransmissions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retransmissions_total",
			Help:      "CON retransmissions",
		}),
		ExpiredMessages: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_messages_total",
			Help:      "Outstanding messages dropped at expiry",
		}),
		Unresponsive: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unresponsive_total",
			Help:      "CON requests that exhausted their retransmissions",
		}),
		Associations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "associations_total",
			Help:      "Successful slave associations",
		}),
		SlaveResets: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slave_resets_total",
			Help:      "Slaves reset to INACTIVE after their TTL",
		}),
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Requests answered from the response cache",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Response cache lookups without a match",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests handled by the bridge, by namespace and status",
		}, []string{"namespace", "status"}),
	}
}
