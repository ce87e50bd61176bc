package main

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nandanugg/geofence-monitor/config"
	"github.com/nandanugg/geofence-monitor/module/core/domain"
	"github.com/nandanugg/geofence-monitor/module/core/geodesic"
)

const topicFormat = "/geofence/device/%s/fix"

var (
	configPath string
	deviceID   string
	interval   time.Duration
	centerLat  float64
	centerLon  float64
	stepMeters float64
	escapeRate float64
)

var rootCmd = &cobra.Command{
	Use:   "geofence-publisher",
	Short: "Publish mock device fixes over MQTT",
	Long:  "Walks a device around a center point and publishes one fix per tick. Some ticks jump well outside the default radius.",
	RunE:  run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&configPath, "config", "", "config file (default ./config.yaml)")
	f.StringVar(&deviceID, "device", "mock-device", "device id")
	f.DurationVar(&interval, "interval", 2*time.Second, "publish interval")
	f.Float64Var(&centerLat, "lat", -6.2088, "walk center latitude")
	f.Float64Var(&centerLon, "lon", 106.8456, "walk center longitude")
	f.Float64Var(&stepMeters, "step", 40, "max step per tick in meters")
	f.Float64Var(&escapeRate, "escape", 0.2, "chance per tick of jumping outside the radius")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if interval <= 0 {
		return eris.New("interval must be positive")
	}
	center := domain.Coordinate{Latitude: centerLat, Longitude: centerLon}
	if err := center.Validate(); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := config.InitLogger(cfg.Log); err != nil {
		return err
	}
	defer func() { _ = zap.L().Sync() }()

	mqttCfg := cfg.MQTT
	mqttCfg.ClientID = "geofence-mock-publisher"
	client, err := config.NewMQTT(mqttCfg)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	topic := fmt.Sprintf(topicFormat, deviceID)
	zap.L().Info("publishing fixes",
		zap.String("broker", mqttCfg.Broker),
		zap.String("topic", topic),
		zap.Duration("interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pos := center
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if rand.Float64() < escapeRate {
			pos = offset(center, cfg.Geofence.RadiusMeters+100+rand.Float64()*400, rand.Float64()*2*math.Pi)
		} else {
			pos = offset(pos, rand.Float64()*stepMeters, rand.Float64()*2*math.Pi)
			if geodesic.Distance(center, pos) > cfg.Geofence.RadiusMeters {
				pos = center
			}
		}

		msg := domain.FixMessage{
			DeviceID:  deviceID,
			Latitude:  pos.Latitude,
			Longitude: pos.Longitude,
			Timestamp: time.Now().Unix(),
			Source:    domain.FixBackground,
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}

		token := client.Publish(topic, 1, false, payload)
		token.Wait()
		if err := token.Error(); err != nil {
			zap.L().Warn("publish failed", zap.Error(err))
			continue
		}

		zap.L().Info("published fix",
			zap.Float64("latitude", pos.Latitude),
			zap.Float64("longitude", pos.Longitude),
			zap.Float64("distance_m", geodesic.Distance(center, pos)),
		)
	}
}

// offset moves c by meters along bearing using an equirectangular approximation.
func offset(c domain.Coordinate, meters, bearing float64) domain.Coordinate {
	dLat := meters * math.Cos(bearing) / geodesic.EarthRadiusMeters
	dLon := meters * math.Sin(bearing) / (geodesic.EarthRadiusMeters * math.Cos(c.Latitude*math.Pi/180))
	return domain.Coordinate{
		Latitude:  c.Latitude + dLat*180/math.Pi,
		Longitude: c.Longitude + dLon*180/math.Pi,
	}
}
