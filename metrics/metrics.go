// Package metrics defines prometheus metric types for the detection engine
// and provides convenience methods to add accounting around strategy runs.
//
// When defining new operations or metrics, these are helpful values to track:
//   - things coming into or going out of the system: packets, traces, configs.
//   - the success or error status of any of the above.
//   - the distribution of processing latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsLoaded counts packets retrieved from the trace store per
	// strategy and corpus ("positive"/"negative").
	//
	// Provides metric: covertmark_packets_loaded_total
	PacketsLoaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "covertmark_packets_loaded_total",
		Help: "Number of packets loaded into memory for a strategy run.",
	}, []string{"strategy", "corpus"})

	// ConfigsEvaluated counts the number of hyperparameter configurations
	// run to completion per strategy.
	//
	// Provides metric: covertmark_configs_evaluated_total
	ConfigsEvaluated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "covertmark_configs_evaluated_total",
		Help: "Number of strategy configurations evaluated.",
	}, []string{"strategy"})

	// SweepDuration records the wall time taken to evaluate a full
	// hyperparameter sweep.
	//
	// Provides metric: covertmark_sweep_duration_seconds
	SweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "covertmark_sweep_duration_seconds",
		Help: "Distribution of hyperparameter sweep durations.",
		Buckets: []float64{
			.1, .2, .5, 1, 2, 5, 10, 20, 50, 100, 200, 500, 1000,
		},
	}, []string{"strategy"})

	// BestScore records the scoring function's value for the best config
	// chosen at the end of a strategy run.
	//
	// Provides metric: covertmark_best_config_score
	BestScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "covertmark_best_config_score",
		Help: "Score of the best-performing configuration in the last run.",
	}, []string{"strategy"})

	// NoClassifiableTotal counts strategy runs that failed to find any
	// configuration meeting the strategy's minimum detection floor.
	//
	// Provides metric: covertmark_no_classifiable_total
	NoClassifiableTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "covertmark_no_classifiable_total",
		Help: "Number of strategy runs that produced no classifiable configuration.",
	}, []string{"strategy"})

	// CollaboratorFailures counts failures reported by the external
	// parser or trace-store collaborators.
	//
	// Provides metric: covertmark_collaborator_failures_total
	CollaboratorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "covertmark_collaborator_failures_total",
		Help: "Number of fatal failures reported by an external collaborator.",
	}, []string{"collaborator"})
)
