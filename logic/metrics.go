package logic

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"time"
)

type IMetrics interface {
	Gatherer() prometheus.Gatherer
	StartWebRequestIn(label string) IRequestObserver
	ServiceStarted()
	ItemIngested(source string)
	ItemFiltered(source string)
	ReplyOutcome(outcome string)
	TimelineOutcome(outcome string)
	DraftOutcome(outcome string)
	LoopError(loop, kind string)
	LockSkipped(key string)
	PendingDrafts(count int)
}

type IRequestObserver interface {
	Finish()
}

type metrics struct {
	registry         *prometheus.Registry
	webRequestsIn    *prometheus.HistogramVec
	serviceStarted   prometheus.Counter
	itemsIngested    *prometheus.CounterVec
	itemsFiltered    *prometheus.CounterVec
	replyOutcomes    *prometheus.CounterVec
	timelineOutcomes *prometheus.CounterVec
	draftOutcomes    *prometheus.CounterVec
	loopErrors       *prometheus.CounterVec
	lockSkips        *prometheus.CounterVec
	pendingDrafts    prometheus.Gauge
}

func NewMetrics() IMetrics {

	res := metrics{}
	res.registry = prometheus.NewRegistry()
	res.registry.MustRegister(collectors.NewGoCollector())
	res.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	res.webRequestsIn = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "web_requests_in_duration",
		Help: "Duration in seconds of operator API requests served.",
	}, []string{"label"})
	res.registry.MustRegister(res.webRequestsIn)

	res.serviceStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "service_started",
		Help: "Service has started up",
	})
	res.registry.MustRegister(res.serviceStarted)

	res.itemsIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "items_ingested",
		Help: "Inbound items accepted into the inbox",
	}, []string{"source"})
	res.registry.MustRegister(res.itemsIngested)

	res.itemsFiltered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "items_filtered",
		Help: "Inbound items dropped by the quality filter",
	}, []string{"source"})
	res.registry.MustRegister(res.itemsFiltered)

	res.replyOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reply_outcomes",
		Help: "Outcomes of reply attempts",
	}, []string{"outcome"})
	res.registry.MustRegister(res.replyOutcomes)

	res.timelineOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_outcomes",
		Help: "Outcomes of timeline post cycles",
	}, []string{"outcome"})
	res.registry.MustRegister(res.timelineOutcomes)

	res.draftOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "draft_outcomes",
		Help: "Draft state changes",
	}, []string{"outcome"})
	res.registry.MustRegister(res.draftOutcomes)

	res.loopErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loop_errors",
		Help: "Errors that made a background loop back off",
	}, []string{"loop", "kind"})
	res.registry.MustRegister(res.loopErrors)

	res.lockSkips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lock_skips",
		Help: "Cycles skipped because another instance held the lock",
	}, []string{"key"})
	res.registry.MustRegister(res.lockSkips)

	res.pendingDrafts = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pending_drafts",
		Help: "Drafts waiting for an operator decision",
	})
	res.registry.MustRegister(res.pendingDrafts)

	return &res
}

type requestObserver struct {
	label string
	start time.Time
	hgvec *prometheus.HistogramVec
}

func (ro *requestObserver) Finish() {
	elapsed := time.Since(ro.start).Seconds()
	ro.hgvec.WithLabelValues(ro.label).Observe(elapsed)
}

func (m *metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *metrics) StartWebRequestIn(label string) IRequestObserver {
	return &requestObserver{label, time.Now(), m.webRequestsIn}
}

func (m *metrics) ServiceStarted() {
	m.serviceStarted.Add(1)
}

func (m *metrics) ItemIngested(source string) {
	m.itemsIngested.WithLabelValues(source).Inc()
}

func (m *metrics) ItemFiltered(source string) {
	m.itemsFiltered.WithLabelValues(source).Inc()
}

func (m *metrics) ReplyOutcome(outcome string) {
	m.replyOutcomes.WithLabelValues(outcome).Inc()
}

func (m *metrics) TimelineOutcome(outcome string) {
	m.timelineOutcomes.WithLabelValues(outcome).Inc()
}

func (m *metrics) DraftOutcome(outcome string) {
	m.draftOutcomes.WithLabelValues(outcome).Inc()
}

func (m *metrics) LoopError(loop, kind string) {
	m.loopErrors.WithLabelValues(loop, kind).Inc()
}

func (m *metrics) LockSkipped(key string) {
	m.lockSkips.WithLabelValues(key).Inc()
}

func (m *metrics) PendingDrafts(count int) {
	m.pendingDrafts.Set(float64(count))
}
