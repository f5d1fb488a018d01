package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("editguard")

var updatesReceived = promauto.NewCounter(prometheus.CounterOpts{
	Name: "editguard_updates_received",
	Help: "Number of bot updates received",
})

var editsReceived = promauto.NewCounter(prometheus.CounterOpts{
	Name: "editguard_edits_received",
	Help: "Number of message edit events received",
})

var commandsReceived = promauto.NewCounter(prometheus.CounterOpts{
	Name: "editguard_commands_received",
	Help: "Number of bot commands received",
})
