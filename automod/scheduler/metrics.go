package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var WorkItemsAdded = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "editguard_scheduler_work_items_added_total",
	Help: "Total number of work items added to the pool",
}, []string{"pool"})

var WorkItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "editguard_scheduler_work_items_processed_total",
	Help: "Total number of work items processed by the pool",
}, []string{"pool"})

var WorkItemsActive = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "editguard_scheduler_work_items_active_total",
	Help: "Total number of work items passed into a worker",
}, []string{"pool"})

var WorkItemsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "editguard_scheduler_work_items_failed_total",
	Help: "Total number of work items whose handler returned an error",
}, []string{"pool"})

var WorkersActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "editguard_scheduler_workers_active",
	Help: "Number of workers currently active",
}, []string{"pool"})
