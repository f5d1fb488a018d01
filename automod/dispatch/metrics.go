package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var dispatchActionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "editguard_dispatch_actions",
	Help: "Number of actions executed, by kind and final status",
}, []string{"kind", "status"})

var dispatchAttemptErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "editguard_dispatch_attempt_errors",
	Help: "Number of failed action attempts, by kind and error class",
}, []string{"kind", "class"})

var dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "editguard_dispatch_duration_sec",
	Help: "Total duration of action execution, including retries",
}, []string{"kind"})
