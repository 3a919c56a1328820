package checkpoint

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckpointErrors tracks failed checkpoint operations
	CheckpointErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_checkpoint_errors_total",
			Help: "Total number of checkpoint operation errors",
		},
		[]string{"operation"}, // "load", "save", "clear"
	)

	// CheckpointSaves tracks successfully written checkpoints
	CheckpointSaves = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_checkpoint_saves_total",
			Help: "Total number of checkpoints written",
		},
	)
)
