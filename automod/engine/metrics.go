package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventProcessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "editguard_event_duration_sec",
	Help: "Total duration of edit event processing",
}, []string{"decision"})

var eventProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "editguard_event_processed",
	Help: "Number of edit events processed",
}, []string{"decision"})

var eventErrorCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "editguard_event_errors",
	Help: "Number of edit events which failed processing",
})

var actionsSkippedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "editguard_actions_skipped",
	Help: "Number of enforcement actions not executed because the message was already gone",
}, []string{"kind"})

var ledgerEntries = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "editguard_ledger_entries",
	Help: "Number of messages currently held in the edit ledger",
})
