package bridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"

	"droneMissionEngine/internal/metrics"
	"droneMissionEngine/models"
)

// DeliveredPublisher announces completed missions. It is a mission lifecycle
// listener; publish failures are logged and never undo the transition.
type DeliveredPublisher struct {
	pub     Publisher
	subject string
	timeout time.Duration
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

// NewDeliveredPublisher returns a publisher for subject.
func NewDeliveredPublisher(pub Publisher, subject string, log logrus.FieldLogger, m *metrics.Metrics) *DeliveredPublisher {
	return &DeliveredPublisher{pub: pub, subject: subject, timeout: 5 * time.Second, log: log, metrics: m}
}

// MissionTransitioned publishes OrderDelivered when a mission reaches RETURNED.
func (p *DeliveredPublisher) MissionTransitioned(ctx context.Context, m *models.Mission, from models.MissionStatus) {
	if m == nil || m.Status != models.MissionStatusReturned {
		return
	}
	ev := OrderDelivered{
		OrderID: m.OrderID,
		DroneID: m.DroneID,
		Status:  string(models.MissionStatusDelivered),
	}
	switch {
	case m.DeliveredAt != nil:
		ev.DeliveredAt = m.DeliveredAt.UTC()
	case m.CompletedAt != nil:
		ev.DeliveredAt = m.CompletedAt.UTC()
	default:
		ev.DeliveredAt = time.Now().UTC()
	}
	log := p.log.WithFields(logrus.Fields{"order_id": m.OrderID, "mission_id": m.ID})

	data, err := json.Marshal(ev)
	if err != nil {
		log.WithError(err).Error("encode order delivered event")
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	// The message id lets the stream drop duplicates of a redelivered completion.
	if _, err := p.pub.Publish(pctx, p.subject, data, jetstream.WithMsgID("delivered-"+m.OrderID)); err != nil {
		p.metrics.Published("error")
		log.WithError(err).Error("publish order delivered")
		return
	}
	p.metrics.Published("ok")
	log.Info("order delivered event published")
}
