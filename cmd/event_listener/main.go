package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nandanugg/geofence-monitor/config"
)

const (
	exchangeName = "geofence.events"
	queueName    = "geofence_alerts"
)

type notification struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Geofence string `json:"geofence"`
	Location struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
	Timestamp int64 `json:"timestamp"`
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "geofence-event-listener",
	Short: "Print geofence exit notifications from RabbitMQ",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "config file (default ./config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := config.InitLogger(cfg.Log); err != nil {
		return err
	}
	defer func() { _ = zap.L().Sync() }()

	conn, err := config.NewRabbitMQ(cfg.RabbitMQ)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return eris.Wrap(err, "rabbitmq channel")
	}
	defer func() { _ = ch.Close() }()

	if err := ch.ExchangeDeclare(exchangeName, "fanout", true, false, false, false, nil); err != nil {
		return eris.Wrap(err, "declare exchange")
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return eris.Wrap(err, "declare queue")
	}
	if err := ch.QueueBind(queueName, "", exchangeName, false, nil); err != nil {
		return eris.Wrap(err, "bind queue")
	}

	msgs, err := ch.Consume(queueName, "", true, false, false, false, nil)
	if err != nil {
		return eris.Wrap(err, "consume")
	}

	zap.L().Info("waiting for geofence notifications", zap.String("queue", queueName))

	go func() {
		for msg := range msgs {
			handle(msg)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	zap.L().Info("shutting down")
	return nil
}

func handle(msg amqp.Delivery) {
	var n notification
	if err := json.Unmarshal(msg.Body, &n); err != nil {
		zap.L().Warn("dropping malformed notification", zap.Error(err), zap.ByteString("body", msg.Body))
		return
	}
	zap.L().Info(n.Title,
		zap.String("id", n.ID),
		zap.String("body", n.Body),
		zap.String("geofence", n.Geofence),
		zap.Float64("latitude", n.Location.Latitude),
		zap.Float64("longitude", n.Location.Longitude),
		zap.Time("at", time.Unix(n.Timestamp, 0).UTC()),
	)
}
