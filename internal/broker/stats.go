package broker

import (
	dto "github.com/prometheus/client_model/go"
)

// Stats is a point-in-time snapshot of the broker's Prometheus counters,
// exposed to the admin API's BrokerStats command without requiring callers
// to scrape the process's metrics endpoint.
type Stats struct {
	MessagesPublished float64
	MessagesDelivered float64
	MalformedDropped  float64
	ActiveWorkers     float64
}

// CurrentStats reads the package-level counters/gauge via the Prometheus
// client's Write method, the supported way to read a collector's current
// value outside of a scrape.
func CurrentStats() Stats {
	return Stats{
		MessagesPublished: readCounter(messagesPublished),
		MessagesDelivered: readCounter(messagesDelivered),
		MalformedDropped:  readCounter(malformedDropped),
		ActiveWorkers:     readGauge(activeWorkers),
	}
}

func readCounter(c interface{ Write(*dto.Metric) error }) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func readGauge(g interface{ Write(*dto.Metric) error }) float64 {
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
