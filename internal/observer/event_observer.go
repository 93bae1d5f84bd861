package observer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// Bridge names the request handler that produced an event
type Bridge string

const (
	BridgeImage       Bridge = "image"
	BridgeStoredImage Bridge = "stored_image"
	BridgeSymptom     Bridge = "symptom"
)

// DiagnosisEvent represents a diagnosis lifecycle event
type DiagnosisEvent struct {
	EventType      EventType              `json:"event_type"`
	Bridge         Bridge                 `json:"bridge"`
	RequestID      string                 `json:"request_id,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
	ProcessingTime time.Duration          `json:"processing_time"`
	UpstreamTime   time.Duration          `json:"upstream_time,omitempty"`
	Success        bool                   `json:"success"`
	ErrorKind      string                 `json:"error_kind,omitempty"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of diagnosis event
type EventType string

const (
	DiagnosisStarted   EventType = "diagnosis_started"
	DiagnosisCompleted EventType = "diagnosis_completed"
	DiagnosisFailed    EventType = "diagnosis_failed"
	// UpstreamCalled fires once the upstream answered or failed at the transport level
	UpstreamCalled EventType = "upstream_called"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event DiagnosisEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event DiagnosisEvent)
}

// LoggingObserver logs diagnosis events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles diagnosis events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event DiagnosisEvent) {
	fields := logrus.Fields{
		"event_type":         event.EventType,
		"bridge":             event.Bridge,
		"request_id":         event.RequestID,
		"processing_time_ms": event.ProcessingTime.Milliseconds(),
		"success":            event.Success,
	}
	if event.UpstreamTime > 0 {
		fields["upstream_time_ms"] = event.UpstreamTime.Milliseconds()
	}
	if event.ErrorKind != "" {
		fields["error_kind"] = event.ErrorKind
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	switch event.EventType {
	case DiagnosisStarted:
		o.logger.WithFields(fields).Debug("Diagnosis started")
	case DiagnosisCompleted:
		o.logger.WithFields(fields).Info("Diagnosis completed")
	case DiagnosisFailed:
		o.logger.WithFields(fields).Error("Diagnosis failed")
	case UpstreamCalled:
		o.logger.WithFields(fields).Debug("Upstream call finished")
	default:
		o.logger.WithFields(fields).Info("Diagnosis event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// defaultLatencyWindow is how many recent upstream latencies feed the quantiles
const defaultLatencyWindow = 512

// MetricsObserver collects counters and upstream latency statistics
type MetricsObserver struct {
	mu        sync.RWMutex
	started   map[Bridge]int64
	succeeded map[Bridge]int64
	failed    map[Bridge]int64
	errors    map[string]int64

	// ring buffer of upstream latencies in milliseconds
	latencies []float64
	next      int
	filled    bool
}

// NewMetricsObserver creates a new metrics observer keeping the default latency window
func NewMetricsObserver() *MetricsObserver {
	return NewMetricsObserverWithWindow(defaultLatencyWindow)
}

// NewMetricsObserverWithWindow creates a metrics observer keeping the last window latencies
func NewMetricsObserverWithWindow(window int) *MetricsObserver {
	if window <= 0 {
		window = defaultLatencyWindow
	}
	return &MetricsObserver{
		started:   make(map[Bridge]int64),
		succeeded: make(map[Bridge]int64),
		failed:    make(map[Bridge]int64),
		errors:    make(map[string]int64),
		latencies: make([]float64, window),
	}
}

// OnEvent handles diagnosis events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event DiagnosisEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case DiagnosisStarted:
		o.started[event.Bridge]++
	case DiagnosisCompleted:
		o.succeeded[event.Bridge]++
	case DiagnosisFailed:
		o.failed[event.Bridge]++
		if event.ErrorKind != "" {
			o.errors[event.ErrorKind]++
		}
	case UpstreamCalled:
		o.latencies[o.next] = float64(event.UpstreamTime) / float64(time.Millisecond)
		o.next = (o.next + 1) % len(o.latencies)
		if o.next == 0 {
			o.filled = true
		}
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// LatencyStats summarizes recent upstream latencies in milliseconds
type LatencyStats struct {
	Samples int     `json:"samples"`
	MeanMs  float64 `json:"mean_ms"`
	StdDev  float64 `json:"std_dev_ms"`
	P50Ms   float64 `json:"p50_ms"`
	P95Ms   float64 `json:"p95_ms"`
	MaxMs   float64 `json:"max_ms"`
}

// MetricsSnapshot is a point-in-time copy of the collected metrics
type MetricsSnapshot struct {
	Started   map[Bridge]int64 `json:"started"`
	Succeeded map[Bridge]int64 `json:"succeeded"`
	Failed    map[Bridge]int64 `json:"failed"`
	Errors    map[string]int64 `json:"errors_by_kind"`
	Upstream  LatencyStats     `json:"upstream_latency"`
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() MetricsSnapshot {
	o.mu.RLock()
	snapshot := MetricsSnapshot{
		Started:   copyCounts(o.started),
		Succeeded: copyCounts(o.succeeded),
		Failed:    copyCounts(o.failed),
		Errors:    copyCounts(o.errors),
	}
	n := o.next
	if o.filled {
		n = len(o.latencies)
	}
	samples := make([]float64, n)
	copy(samples, o.latencies[:n])
	o.mu.RUnlock()

	snapshot.Upstream = summarize(samples)
	return snapshot
}

func summarize(samples []float64) LatencyStats {
	if len(samples) == 0 {
		return LatencyStats{}
	}
	sort.Float64s(samples)
	mean, std := stat.MeanStdDev(samples, nil)
	if len(samples) == 1 {
		std = 0
	}
	return LatencyStats{
		Samples: len(samples),
		MeanMs:  mean,
		StdDev:  std,
		P50Ms:   stat.Quantile(0.5, stat.Empirical, samples, nil),
		P95Ms:   stat.Quantile(0.95, stat.Empirical, samples, nil),
		MaxMs:   samples[len(samples)-1],
	}
}

func copyCounts[K comparable](in map[K]int64) map[K]int64 {
	out := make(map[K]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers delivers the event to every observer synchronously, in
// subscription order. A panicking observer does not affect the others.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event DiagnosisEvent) {
	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, obs := range observers {
		notify(ctx, obs, event)
	}
}

func notify(ctx context.Context, obs Observer, event DiagnosisEvent) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}
