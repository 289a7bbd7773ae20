package service

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the marketplace counters. A nil *Metrics records nothing.
type Metrics struct {
	listingsCreated     prometheus.Counter
	moderationDecisions *prometheus.CounterVec
	messagesSent        prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		listingsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ilanhub",
			Name:      "listings_created_total",
			Help:      "Listings submitted for moderation.",
		}),
		moderationDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ilanhub",
			Name:      "moderation_decisions_total",
			Help:      "Listing moderation decisions by outcome.",
		}, []string{"decision"}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ilanhub",
			Name:      "messages_sent_total",
			Help:      "Buyer/seller messages sent.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.listingsCreated, m.moderationDecisions, m.messagesSent)
	}
	return m
}

func (m *Metrics) listingCreated() {
	if m != nil {
		m.listingsCreated.Inc()
	}
}

func (m *Metrics) moderationDecision(decision string) {
	if m != nil {
		m.moderationDecisions.WithLabelValues(decision).Inc()
	}
}

func (m *Metrics) messageSent() {
	if m != nil {
		m.messagesSent.Inc()
	}
}
