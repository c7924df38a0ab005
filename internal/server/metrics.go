package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	turnsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mockmate_turns_total",
		Help: "Completed interview turns.",
	})
	turnFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mockmate_turn_failures_total",
		Help: "Interview turns aborted by a model failure.",
	})
	codeRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mockmate_code_runs_total",
		Help: "Candidate code executions by outcome.",
	}, []string{"outcome"})
	resumeIngestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mockmate_resume_ingests_total",
		Help: "Successfully ingested resumes.",
	})
	transcriptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mockmate_transcriptions_total",
		Help: "Successful audio transcriptions.",
	})
	synthesesDegradedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mockmate_syntheses_degraded_total",
		Help: "Speech syntheses that fell back to an empty audio file.",
	})
)
