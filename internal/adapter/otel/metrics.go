package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "flowforge"

// Metrics holds all FlowForge metric instruments.
type Metrics struct {
	PhasesStarted   metric.Int64Counter
	PhasesCompleted metric.Int64Counter
	PhasesFailed    metric.Int64Counter
	PhasesCached    metric.Int64Counter
	PhaseRetries    metric.Int64Counter
	PhaseDuration   metric.Float64Histogram
	SwarmRounds     metric.Int64Counter
	WorkflowRuns    metric.Int64Counter
	ApprovalWaits   metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.PhasesStarted, err = meter.Int64Counter("flowforge.phases.started",
		metric.WithDescription("Number of phase executions started"))
	if err != nil {
		return nil, err
	}

	m.PhasesCompleted, err = meter.Int64Counter("flowforge.phases.completed",
		metric.WithDescription("Number of phase executions completed"))
	if err != nil {
		return nil, err
	}

	m.PhasesFailed, err = meter.Int64Counter("flowforge.phases.failed",
		metric.WithDescription("Number of phase executions failed after retries"))
	if err != nil {
		return nil, err
	}

	m.PhasesCached, err = meter.Int64Counter("flowforge.phases.cached",
		metric.WithDescription("Number of phase executions served from cache"))
	if err != nil {
		return nil, err
	}

	m.PhaseRetries, err = meter.Int64Counter("flowforge.phases.retries",
		metric.WithDescription("Number of phase retry attempts"))
	if err != nil {
		return nil, err
	}

	m.PhaseDuration, err = meter.Float64Histogram("flowforge.phase.duration_seconds",
		metric.WithDescription("Phase execution duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.SwarmRounds, err = meter.Int64Counter("flowforge.swarm.rounds",
		metric.WithDescription("Number of swarm rounds executed"))
	if err != nil {
		return nil, err
	}

	m.WorkflowRuns, err = meter.Int64Counter("flowforge.workflow.runs",
		metric.WithDescription("Number of workflow runs started"))
	if err != nil {
		return nil, err
	}

	m.ApprovalWaits, err = meter.Float64Histogram("flowforge.approval.wait_seconds",
		metric.WithDescription("Time spent waiting on human approval"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
