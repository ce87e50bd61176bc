package subscriber

import (
	"encoding/json"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nandanugg/geofence-monitor/module/core/domain"
)

const TopicPattern = "/geofence/device/+/fix"

type fixFeed interface {
	Push(fix domain.Fix)
}

// FixSubscriber feeds background fixes received over MQTT into the
// location feed.
type FixSubscriber struct {
	client mqtt.Client
	feed   fixFeed
}

func NewFixSubscriber(client mqtt.Client, feed fixFeed) *FixSubscriber {
	return &FixSubscriber{client: client, feed: feed}
}

func (s *FixSubscriber) Start() error {
	token := s.client.Subscribe(TopicPattern, 1, s.handleMessage)
	token.Wait()
	return eris.Wrapf(token.Error(), "subscriber: subscribe %s", TopicPattern)
}

func (s *FixSubscriber) Stop() {
	token := s.client.Unsubscribe(TopicPattern)
	token.Wait()
	if err := token.Error(); err != nil {
		zap.L().Warn("subscriber: unsubscribe failed", zap.Error(err))
	}
}

func (s *FixSubscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var raw domain.FixMessage
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		zap.L().Warn("subscriber: invalid fix message", zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}

	if err := raw.Validate(); err != nil {
		zap.L().Warn("subscriber: fix rejected",
			zap.String("topic", msg.Topic()),
			zap.String("device_id", raw.DeviceID),
			zap.Error(err),
		)
		return
	}

	s.feed.Push(raw.Fix())
}
