// Package bridge connects the mission engine to the order message bus.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"

	"droneMissionEngine/internal/allocator"
	"droneMissionEngine/internal/metrics"
	"droneMissionEngine/internal/mission"
	"droneMissionEngine/internal/simulator"
	"droneMissionEngine/models"
)

// Outcome is how an inbound message was settled.
type Outcome string

const (
	OutcomeAck        Outcome = "ack"
	OutcomeRequeue    Outcome = "requeue"
	OutcomeDeadLetter Outcome = "dead_letter"
	OutcomeDuplicate  Outcome = "duplicate"
)

// Delivery is one inbound message. jetstream.Msg satisfies it.
type Delivery interface {
	Data() []byte
	Ack() error
	NakWithDelay(delay time.Duration) error
}

// Publisher publishes to the bus. jetstream.JetStream satisfies it.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Missions creates and looks up missions.
type Missions interface {
	Create(ctx context.Context, req mission.CreateRequest) (*models.Mission, error)
	GetByOrderID(ctx context.Context, orderID string) (*models.Mission, error)
}

// Starter launches flight simulations.
type Starter interface {
	Start(ctx context.Context, missionID string) (simulator.Status, error)
}

// Config names the bus resources and redelivery delays.
type Config struct {
	Stream            string
	Consumer          string
	OrderReadySubject string
	DeliveredSubject  string
	DeadLetterSubject string
	CapacityBackoff   time.Duration
	RetryBackoff      time.Duration
}

// DefaultConfig returns the standard subjects and delays.
func DefaultConfig() Config {
	return Config{
		Stream:            "ORDERS",
		Consumer:          "drone-mission-engine",
		OrderReadySubject: "order.ready",
		DeliveredSubject:  "order.delivered",
		DeadLetterSubject: "order.ready.dead",
		CapacityBackoff:   5 * time.Second,
		RetryBackoff:      10 * time.Second,
	}
}

// Bridge turns order-ready messages into missions.
type Bridge struct {
	cfg      Config
	missions Missions
	sim      Starter
	pub      Publisher
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
}

// New returns a Bridge. sim may be nil when simulations are started elsewhere.
func New(cfg Config, missions Missions, sim Starter, pub Publisher, log logrus.FieldLogger, m *metrics.Metrics) *Bridge {
	return &Bridge{cfg: cfg, missions: missions, sim: sim, pub: pub, log: log, metrics: m}
}

// Handle processes one message and settles it. It never returns an error:
// every failure ends in an ack, a delayed redelivery or a dead letter.
func (b *Bridge) Handle(ctx context.Context, d Delivery) Outcome {
	outcome := b.handle(ctx, d)
	b.metrics.BridgeMessage(string(outcome))
	return outcome
}

func (b *Bridge) handle(ctx context.Context, d Delivery) Outcome {
	req, err := DecodeOrderReady(d.Data())
	if err != nil {
		return b.deadLetter(ctx, d, err)
	}
	log := b.log.WithField("order_id", req.OrderID)

	m, err := b.missions.Create(ctx, req)
	switch {
	case err == nil:
		b.ack(log, d)
		log.WithFields(logrus.Fields{"mission_id": m.ID, "drone_id": m.DroneID}).Info("mission created from order")
		b.start(ctx, log, m.ID)
		return OutcomeAck
	case errors.Is(err, mission.ErrDuplicateOrder):
		// Redelivery of an order that already has a mission.
		b.ack(log, d)
		log.Info("order already has a mission")
		if existing, gerr := b.missions.GetByOrderID(ctx, req.OrderID); gerr == nil {
			b.start(ctx, log, existing.ID)
		}
		return OutcomeDuplicate
	case errors.Is(err, mission.ErrInvalidInput):
		return b.deadLetter(ctx, d, fmt.Errorf("%w: %v", ErrPoison, err))
	case errors.Is(err, allocator.ErrNoCapacity):
		log.WithField("retry_in", b.cfg.CapacityBackoff).Warn("no drone available, requeueing order")
		b.nak(log, d, b.cfg.CapacityBackoff)
		return OutcomeRequeue
	default:
		log.WithError(err).WithField("retry_in", b.cfg.RetryBackoff).Error("create mission failed, requeueing order")
		b.nak(log, d, b.cfg.RetryBackoff)
		return OutcomeRequeue
	}
}

// start launches the simulation, ignoring missions that are finished or already flying.
func (b *Bridge) start(ctx context.Context, log logrus.FieldLogger, missionID string) {
	if b.sim == nil {
		return
	}
	_, err := b.sim.Start(ctx, missionID)
	switch {
	case err == nil, errors.Is(err, simulator.ErrAlreadyRunning), errors.Is(err, simulator.ErrNotFlyable):
	default:
		log.WithError(err).WithField("mission_id", missionID).Error("start simulation")
	}
}

// deadLetter parks the raw payload and acks it. A poison message is never requeued,
// even when parking it fails.
func (b *Bridge) deadLetter(ctx context.Context, d Delivery, cause error) Outcome {
	log := b.log.WithError(cause)
	if b.pub != nil && b.cfg.DeadLetterSubject != "" {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if _, err := b.pub.Publish(pctx, b.cfg.DeadLetterSubject, d.Data()); err != nil {
			b.metrics.Published("error")
			log.WithField("publish_error", err.Error()).Error("dead-letter publish failed, dropping message")
		} else {
			b.metrics.Published("ok")
		}
	}
	log.Warn("poison message acknowledged")
	b.ack(log, d)
	return OutcomeDeadLetter
}

func (b *Bridge) ack(log logrus.FieldLogger, d Delivery) {
	if err := d.Ack(); err != nil {
		log.WithError(err).Warn("ack failed")
	}
}

func (b *Bridge) nak(log logrus.FieldLogger, d Delivery, delay time.Duration) {
	if err := d.NakWithDelay(delay); err != nil {
		log.WithError(err).Warn("nak failed")
	}
}

// Run ensures the stream and durable consumer exist, then consumes order-ready
// messages until ctx is done.
func (b *Bridge) Run(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     b.cfg.Stream,
		Subjects: []string{b.cfg.OrderReadySubject, b.cfg.DeliveredSubject, b.cfg.DeadLetterSubject},
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", b.cfg.Stream, err)
	}
	cons, err := js.CreateOrUpdateConsumer(ctx, b.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       b.cfg.Consumer,
		FilterSubject: b.cfg.OrderReadySubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("ensure consumer %s: %w", b.cfg.Consumer, err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		b.Handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", b.cfg.OrderReadySubject, err)
	}
	b.log.WithFields(logrus.Fields{"stream": b.cfg.Stream, "subject": b.cfg.OrderReadySubject}).Info("consuming orders")

	<-ctx.Done()
	cc.Stop()
	return nil
}
