package rabbitmq

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rotisserie/eris"

	"github.com/nandanugg/geofence-monitor/module/core/domain"
	"github.com/nandanugg/geofence-monitor/module/core/internal/repository/notifier"
)

var _ notifier.NotificationSink = (*NotificationPublisher)(nil)

const (
	ExchangeName = "geofence.events"
	QueueName    = "geofence_alerts"
)

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type NotificationPublisher struct {
	ch channel
}

func NewNotificationPublisher(conn *amqp.Connection) (*NotificationPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, eris.Wrap(err, "rabbitmq: open channel")
	}
	return newNotificationPublisher(ch)
}

func newNotificationPublisher(ch channel) (*NotificationPublisher, error) {
	if err := Declare(ch); err != nil {
		return nil, err
	}
	return &NotificationPublisher{ch: ch}, nil
}

// Declare sets up the fanout exchange and the durable alert queue bound to it.
func Declare(ch channel) error {
	if err := ch.ExchangeDeclare(ExchangeName, "fanout", true, false, false, false, nil); err != nil {
		return eris.Wrap(err, "rabbitmq: declare exchange")
	}
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		return eris.Wrap(err, "rabbitmq: declare queue")
	}
	if err := ch.QueueBind(QueueName, "", ExchangeName, false, nil); err != nil {
		return eris.Wrap(err, "rabbitmq: bind queue")
	}
	return nil
}

// Message is the JSON body published for every notification.
type Message struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Geofence  string          `json:"geofence"`
	Location  MessageLocation `json:"location"`
	Timestamp int64           `json:"timestamp"`
}

type MessageLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (p *NotificationPublisher) Schedule(ctx context.Context, n *domain.Notification) error {
	msg := Message{
		ID:       n.ID,
		Title:    n.Title,
		Body:     n.Body,
		Geofence: n.GeofenceName,
		Location: MessageLocation{
			Latitude:  n.At.Latitude,
			Longitude: n.At.Longitude,
		},
		Timestamp: n.Timestamp.Unix(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return eris.Wrap(err, "rabbitmq: marshal notification")
	}

	err = p.ch.PublishWithContext(ctx, ExchangeName, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   n.ID,
		Body:        body,
	})
	if err != nil {
		return eris.Wrap(err, "rabbitmq: publish notification")
	}
	return nil
}
