package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DispatcherConfig tunes the dispatcher.
type DispatcherConfig struct {
	// BufferSize is the queue length between publishers and the forwarding
	// goroutine.
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`
	// PublishTimeout bounds each Exchange.Publish call.
	PublishTimeout time.Duration `json:"publish_timeout" yaml:"publish_timeout"`
}

// DefaultDispatcherConfig returns sensible defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		BufferSize:     256,
		PublishTimeout: 5 * time.Second,
	}
}

// Dispatcher decouples the governance loop from the bus. Publish enqueues and
// returns immediately; a single goroutine marshals and forwards. Publish
// failures are logged and counted but never propagate back: local state has
// already been committed, so delivery is at-most-once.
type Dispatcher struct {
	cfg      DispatcherConfig
	exchange Exchange
	logger   *zap.Logger

	ch       chan Event
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	// onError, when set, observes every failed or dropped publish. The
	// metrics collector hooks in here.
	onError func(topic string)
}

// NewDispatcher creates and starts a dispatcher forwarding to exchange.
func NewDispatcher(cfg DispatcherConfig, exchange Exchange, logger *zap.Logger) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultDispatcherConfig().BufferSize
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultDispatcherConfig().PublishTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		cfg:      cfg,
		exchange: exchange,
		logger:   logger.With(zap.String("component", "dispatcher")),
		ch:       make(chan Event, cfg.BufferSize),
		done:     make(chan struct{}),
	}
	d.wg.Add(1)
	go d.forward()
	return d
}

// OnError registers an observer for failed or dropped publishes. Must be
// called before the first Publish.
func (d *Dispatcher) OnError(fn func(topic string)) {
	d.onError = fn
}

// Publish enqueues the event. It never blocks the governance loop: when the
// queue is full the event is dropped and counted.
func (d *Dispatcher) Publish(event Event) {
	select {
	case d.ch <- event:
	case <-d.done:
	default:
		d.logger.Warn("event queue full, dropping event", zap.String("topic", event.Topic()))
		d.noteError(event.Topic())
	}
}

// Stop drains the queue, forwards what is left, and shuts the dispatcher
// down. Safe to call more than once.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) forward() {
	defer d.wg.Done()
	for {
		select {
		case ev := <-d.ch:
			d.send(ev)
		case <-d.done:
			// drain whatever is already queued, then exit
			for {
				select {
				case ev := <-d.ch:
					d.send(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) send(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		d.logger.Error("event marshal failed",
			zap.String("topic", ev.Topic()),
			zap.Error(err))
		d.noteError(ev.Topic())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.PublishTimeout)
	defer cancel()

	if err := d.exchange.Publish(ctx, ev.Topic(), payload); err != nil {
		d.logger.Error("event publish failed",
			zap.String("topic", ev.Topic()),
			zap.Error(err))
		d.noteError(ev.Topic())
		return
	}
	d.logger.Debug("event published", zap.String("topic", ev.Topic()))
}

func (d *Dispatcher) noteError(topic string) {
	if d.onError != nil {
		d.onError(topic)
	}
}
