package prometheus

import (
	"time"
)

// Outcome labels shared by the pipeline counters.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
	OutcomePanic   = "panic"

	LookupHit      = "hit"
	LookupRetryHit = "retry_hit"
	LookupMiss     = "miss"

	SourceCache    = "cache"
	SourceStore    = "store"
	SourceEnriched = "enriched"
	SourceFailed   = "failed"
)

var (
	DefaultExternalDurationBuckets = []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 60}
	DefaultLLMDurationBuckets      = []float64{.5, 1, 2, 5, 10, 30, 60, 120}
)

// PipelineMetrics holds the prescription pipeline instruments. A nil
// *PipelineMetrics is valid and records nothing.
type PipelineMetrics struct {
	CandidatesExtracted     HistogramVec
	GrainLookupsTotal       CounterVec
	EnrichmentsTotal        CounterVec
	EnrichmentDuration      HistogramVec
	ExternalRequestDuration HistogramVec
	LLMCallsTotal           CounterVec
	LLMCallDuration         HistogramVec
	FanoutUnitsTotal        CounterVec
	ChartsCreatedTotal      CounterVec
	VoiceDuplicatesTotal    CounterVec
	WorkflowsInFlight       GaugeVec
}

// NewPipelineMetrics registers every pipeline metric on c.
func NewPipelineMetrics(c MetricsCollector) *PipelineMetrics {
	return &PipelineMetrics{
		CandidatesExtracted: c.RegisterHistogram("candidates_extracted",
			"Distinct drug-name candidates found per document", []float64{0, 1, 2, 5, 10, 20, 50, 100}),
		GrainLookupsTotal: c.RegisterCounter("grain_lookups_total",
			"Pill identification lookups by outcome", "outcome"),
		EnrichmentsTotal: c.RegisterCounter("enrichments_total",
			"Drug enrichment results by source", "source"),
		EnrichmentDuration: c.RegisterHistogram("enrichment_duration_seconds",
			"Wall time of one drug enrichment", DefaultExternalDurationBuckets, "source"),
		ExternalRequestDuration: c.RegisterHistogram("external_request_duration_seconds",
			"Latency of calls to external services", DefaultExternalDurationBuckets, "service", "outcome"),
		LLMCallsTotal: c.RegisterCounter("llm_calls_total",
			"Language model calls by prompt and outcome", "prompt", "outcome"),
		LLMCallDuration: c.RegisterHistogram("llm_call_duration_seconds",
			"Language model call latency", DefaultLLMDurationBuckets, "prompt"),
		FanoutUnitsTotal: c.RegisterCounter("fanout_units_total",
			"Fan-out work units by stage and outcome", "stage", "outcome"),
		ChartsCreatedTotal: c.RegisterCounter("charts_created_total",
			"Medical charts persisted by kind", "kind"),
		VoiceDuplicatesTotal: c.RegisterCounter("voice_duplicates_total",
			"Voice uploads answered from an existing chart"),
		WorkflowsInFlight: c.RegisterGauge("workflows_in_flight",
			"Workflows currently running", "workflow"),
	}
}

func (m *PipelineMetrics) RecordCandidates(n int) {
	if m == nil {
		return
	}
	m.CandidatesExtracted.WithLabelValues().Observe(float64(n))
}

func (m *PipelineMetrics) RecordGrainLookup(outcome string) {
	if m == nil {
		return
	}
	m.GrainLookupsTotal.WithLabelValues(outcome).Inc()
}

func (m *PipelineMetrics) RecordEnrichment(source string, d time.Duration) {
	if m == nil {
		return
	}
	m.EnrichmentsTotal.WithLabelValues(source).Inc()
	m.EnrichmentDuration.WithLabelValues(source).Observe(d.Seconds())
}

// ObserveExternal records one call to service; err selects the outcome label.
func (m *PipelineMetrics) ObserveExternal(service string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.ExternalRequestDuration.WithLabelValues(service, outcomeOf(err)).Observe(time.Since(started).Seconds())
}

func (m *PipelineMetrics) RecordLLMCall(prompt string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.LLMCallsTotal.WithLabelValues(prompt, outcomeOf(err)).Inc()
	m.LLMCallDuration.WithLabelValues(prompt).Observe(d.Seconds())
}

func (m *PipelineMetrics) RecordFanoutUnit(stage, outcome string) {
	if m == nil {
		return
	}
	m.FanoutUnitsTotal.WithLabelValues(stage, outcome).Inc()
}

func (m *PipelineMetrics) RecordChartCreated(kind string) {
	if m == nil {
		return
	}
	m.ChartsCreatedTotal.WithLabelValues(kind).Inc()
}

func (m *PipelineMetrics) RecordVoiceDuplicate() {
	if m == nil {
		return
	}
	m.VoiceDuplicatesTotal.WithLabelValues().Inc()
}

// TrackWorkflow increments the in-flight gauge and returns the decrement.
//
//	defer metrics.TrackWorkflow("prescription")()
func (m *PipelineMetrics) TrackWorkflow(workflow string) func() {
	if m == nil {
		return func() {}
	}
	g := m.WorkflowsInFlight.WithLabelValues(workflow)
	g.Inc()
	return g.Dec
}

func outcomeOf(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
