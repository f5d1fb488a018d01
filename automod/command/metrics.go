package command

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var commandCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "editguard_commands_handled",
	Help: "Number of bot commands handled",
}, []string{"name"})
