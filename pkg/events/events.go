// Package events fans change notifications out to external sinks.
package events

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"dbaccountsync/models"
	"dbaccountsync/pkg/logger"
	"dbaccountsync/pkg/metrics"
	"dbaccountsync/repository"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
)

// Event names.
const (
	SessionCompleted = "sync.session.completed"
	InstanceFailed   = "sync.instance.failed"
)

// AccountEvent returns the event name of an account change type.
func AccountEvent(changeType string) string {
	return "account." + changeType
}

// BatchEvent returns the event name of a classification batch status.
func BatchEvent(status string) string {
	return "classification.batch." + status
}

// Event represents a notification payload.
type Event struct {
	Name string    `json:"name"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
	ID   string    `json:"id"`
}

// New stamps an event with an id and the current UTC time.
func New(name string, data any) Event {
	return Event{Name: name, Time: time.Now().UTC(), Data: data, ID: uuid.New().String()}
}

// Sink publishes events.
type Sink interface {
	Name() string
	Emit(ctx context.Context, e Event) error
}

// DLQ stores events a sink could not accept after all retries.
type DLQ interface {
	Store(ctx context.Context, sink string, e Event, attempts int, lastErr string) error
}

// Config provides dispatcher settings.
type Config struct {
	Sinks struct {
		Webhook WebhookConfig `yaml:"webhook"`
		Redis   RedisConfig   `yaml:"redis"`
		Kafka   KafkaConfig   `yaml:"kafka"`
	} `yaml:"sinks"`
	Retry RetryConfig `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
}

// LoadConfig reads YAML from file path. If path is empty, returns zero value.
func LoadConfig(path string) (Config, error) {
	var c Config
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	err = yaml.Unmarshal(data, &c)
	return c, err
}

// Dispatcher broadcasts events to multiple sinks with retries.
type Dispatcher struct {
	sinks        []Sink
	maxAttempts  int
	initialDelay time.Duration
	dlq          DLQ
	wg           sync.WaitGroup
}

// NewDispatcher creates a dispatcher from sinks and retry config.
func NewDispatcher(cfg Config, dlq DLQ, sinks ...Sink) *Dispatcher {
	d := &Dispatcher{maxAttempts: 3, initialDelay: time.Second}
	if cfg.Retry.MaxAttempts > 0 {
		d.maxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.InitialDelay > 0 {
		d.initialDelay = cfg.Retry.InitialDelay
	}
	d.sinks = append(d.sinks, sinks...)
	d.dlq = dlq
	return d
}

// Setup builds every enabled sink of cfg.
func Setup(cfg Config, dlq DLQ) (*Dispatcher, error) {
	var sinks []Sink
	if s := NewWebhookSink(cfg.Sinks.Webhook); s != nil {
		sinks = append(sinks, s)
	}
	rs, err := NewRedisSink(cfg.Sinks.Redis)
	if err != nil {
		return nil, err
	}
	if rs != nil {
		sinks = append(sinks, rs)
	}
	ks, err := NewKafkaSink(cfg.Sinks.Kafka)
	if err != nil {
		return nil, err
	}
	if ks != nil {
		sinks = append(sinks, ks)
	}
	logger.Infof("Event dispatcher configured with %d sink(s)", len(sinks))
	return NewDispatcher(cfg, dlq, sinks...), nil
}

// Dispatch sends the event to all sinks asynchronously.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) {
	if d == nil {
		return
	}
	for _, s := range d.sinks {
		d.wg.Add(1)
		go func(sink Sink) {
			defer d.wg.Done()
			d.retrySend(context.WithoutCancel(ctx), sink, e)
		}(s)
	}
}

// Wait blocks until every in-flight delivery finished or was dead-lettered.
func (d *Dispatcher) Wait() {
	if d != nil {
		d.wg.Wait()
	}
}

func (d *Dispatcher) retrySend(ctx context.Context, s Sink, e Event) {
	delay := d.initialDelay
	var err error
	for i := 1; i <= d.maxAttempts; i++ {
		if err = s.Emit(ctx, e); err == nil {
			return
		}
		if i < d.maxAttempts {
			time.Sleep(delay)
			delay *= 2
		}
	}
	logger.Warnf("Event %s (%s) undeliverable to %s after %d attempts: %v", e.Name, e.ID, s.Name(), d.maxAttempts, err)
	metrics.EventDeliveryFailures.WithLabelValues(s.Name()).Inc()
	if d.dlq != nil {
		if dlqErr := d.dlq.Store(ctx, s.Name(), e, d.maxAttempts, err.Error()); dlqErr != nil {
			logger.Errorf("Failed to store event %s in dead letter table: %v", e.ID, dlqErr)
		}
	}
}

var (
	defaultMu sync.RWMutex
	def       *Dispatcher
)

// SetDefault installs the dispatcher used by Emit.
func SetDefault(d *Dispatcher) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	def = d
}

// Default returns the dispatcher used by Emit, nil when events are disabled.
func Default() *Dispatcher {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return def
}

// Emit sends an event using the global dispatcher if set.
func Emit(ctx context.Context, e Event) {
	Default().Dispatch(ctx, e)
}

// StoreDLQ keeps failed events in the events_failed table.
type StoreDLQ struct {
	repo repository.EventFailureRepository
}

// NewStoreDLQ creates a dead letter queue backed by repo.
func NewStoreDLQ(repo repository.EventFailureRepository) *StoreDLQ {
	return &StoreDLQ{repo: repo}
}

// Store inserts the failed event.
func (q *StoreDLQ) Store(ctx context.Context, sink string, e Event, attempts int, lastErr string) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return q.repo.Create(nil, &models.EventFailure{
		EventID:   e.ID,
		EventType: e.Name,
		Sink:      sink,
		Payload:   datatypes.JSON(data),
		Error:     lastErr,
		Attempts:  attempts,
	})
}
