package worker

import (
	"fmt"
	"log/slog"

	"github.com/nsqio/go-nsq"

	"longrun/internal/config"
)

// Consumers owns one NSQ consumer per configured job queue. It must be
// started only after every job type is registered, so a delivery never
// races a missing registration at startup.
type Consumers struct {
	engine    *Engine
	consumers []*nsq.Consumer
}

// StartConsumers connects a consumer for each queue in cfg, preferring
// lookupd discovery and falling back to the configured nsqd.
func StartConsumers(cfg *config.Config, engine *Engine) (*Consumers, error) {
	c := &Consumers{engine: engine}

	for _, queue := range cfg.QueueList() {
		nsqCfg := nsq.NewConfig()
		nsqCfg.MaxInFlight = cfg.WorkerMaxInFlight
		// The engine owns the retry ceiling through the record's
		// mirrored attempt counter; NSQ must never drop on its own.
		nsqCfg.MaxAttempts = 0

		consumer, err := nsq.NewConsumer(config.JobTopic(queue), config.WorkerChannel, nsqCfg)
		if err != nil {
			c.Stop()
			return nil, fmt.Errorf("create consumer for queue %q: %w", queue, err)
		}
		consumer.AddConcurrentHandlers(engine, cfg.WorkerConcurrency)

		if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
			slog.Warn("lookupd connection failed, falling back to nsqd",
				"queue", queue, "lookupd", cfg.NSQLookupd, "error", err)
			if err := consumer.ConnectToNSQD(cfg.NSQDHost); err != nil {
				consumer.Stop()
				c.Stop()
				return nil, fmt.Errorf("connect consumer for queue %q: %w", queue, err)
			}
		}

		slog.Info("queue consumer connected", "queue", queue, "topic", config.JobTopic(queue))
		c.consumers = append(c.consumers, consumer)
	}

	return c, nil
}

// Stop gracefully drains every consumer and blocks until they exit.
func (c *Consumers) Stop() {
	for _, consumer := range c.consumers {
		consumer.Stop()
	}
	for _, consumer := range c.consumers {
		<-consumer.StopChan
	}
}
