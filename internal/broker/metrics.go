package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are registered once at package init so creating many
// PublisherHandle/SubscriberHandle values in tests or across a process
// never triggers a duplicate-registration panic.
var (
	messagesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "edgegateway",
		Subsystem: "broker",
		Name:      "messages_published_total",
		Help:      "Messages accepted by a publisher's transport socket.",
	})
	messagesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "edgegateway",
		Subsystem: "broker",
		Name:      "messages_delivered_total",
		Help:      "Messages successfully decoded and handed to a subscriber callback.",
	})
	malformedDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "edgegateway",
		Subsystem: "broker",
		Name:      "malformed_frames_dropped_total",
		Help:      "Frames dropped for missing a topic terminator or failing message decode.",
	})
	activeWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "edgegateway",
		Subsystem: "broker",
		Name:      "active_subscriber_workers",
		Help:      "Subscriber receive workers currently running.",
	})
)
