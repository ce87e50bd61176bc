package core

import (
	"context"
	"database/sql"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nandanugg/geofence-monitor/config"
	"github.com/nandanugg/geofence-monitor/module/core/internal/feed"
	handler "github.com/nandanugg/geofence-monitor/module/core/internal/handler/http"
	"github.com/nandanugg/geofence-monitor/module/core/internal/handler/subscriber"
	"github.com/nandanugg/geofence-monitor/module/core/internal/repository/notifier"
	"github.com/nandanugg/geofence-monitor/module/core/internal/repository/notifier/rabbitmq"
	"github.com/nandanugg/geofence-monitor/module/core/internal/repository/notifier/websocket"
	"github.com/nandanugg/geofence-monitor/module/core/internal/repository/snapshot"
	"github.com/nandanugg/geofence-monitor/module/core/internal/repository/snapshot/postgres"
	"github.com/nandanugg/geofence-monitor/module/core/internal/repository/snapshot/sqlite"
	"github.com/nandanugg/geofence-monitor/module/core/internal/repository/snapshot/yamlfile"
	"github.com/nandanugg/geofence-monitor/module/core/service"
)

// Deps are the external connections the module may use. Any of them may be
// nil when the matching transport is disabled.
type Deps struct {
	DB       *sql.DB
	AMQPConn *amqp.Connection
	MQTT     mqtt.Client
}

type Module struct {
	Registry  *service.Registry
	Session   *service.Session
	Feed      *feed.Feed
	Snapshots *service.SnapshotService

	monitor    *service.Monitor
	hub        *websocket.Hub
	repo       snapshot.Repository
	handler    *handler.SessionHandler
	fixHandler *handler.FixHandler
	subscriber *subscriber.FixSubscriber
}

func Build(ctx context.Context, cfg *config.Config, deps Deps) (*Module, error) {
	registry := service.NewRegistry()

	repo, err := OpenSnapshotRepo(ctx, cfg.Store, deps.DB)
	if err != nil {
		return nil, err
	}
	var snapshots *service.SnapshotService
	if repo != nil {
		snapshots = service.NewSnapshotService(repo, registry)
		if err := snapshots.Restore(ctx); err != nil {
			_ = repo.Close()
			return nil, err
		}
		snapshots.Watch()
	}

	hub := websocket.NewHub()
	sinks := notifier.Multi{notifier.NewLogSink(), hub}
	if deps.AMQPConn != nil {
		pub, err := rabbitmq.NewNotificationPublisher(deps.AMQPConn)
		if err != nil {
			return nil, eris.Wrap(err, "core: notification publisher")
		}
		sinks = append(sinks, pub)
	}

	evaluator := service.NewGeofenceEvaluator(service.EvaluationMode(cfg.Monitor.Mode))
	dispatcher := service.NewAlertDispatcher(sinks, cfg.Monitor.AlertCooldown)
	registry.OnChange(dispatcher.Prune)
	monitor := service.NewMonitor(registry, evaluator, dispatcher, cfg.Monitor.QueueSize)

	locationFeed := feed.New(feed.Permissions{
		Foreground: cfg.Location.ForegroundPermission,
		Background: cfg.Location.BackgroundPermission,
	})
	session := service.NewSession(registry, locationFeed, monitor.OnFix, service.SessionConfig{
		Radius:            cfg.Geofence.RadiusMeters,
		Subscribe:         cfg.Location.SubscribeOptions(),
		CurrentFixTimeout: cfg.Location.CurrentFixTimeout,
	})

	m := &Module{
		Registry:   registry,
		Session:    session,
		Feed:       locationFeed,
		Snapshots:  snapshots,
		monitor:    monitor,
		hub:        hub,
		repo:       repo,
		handler:    handler.NewSessionHandler(session, registry),
		fixHandler: handler.NewFixHandler(locationFeed, hub),
	}
	if deps.MQTT != nil {
		m.subscriber = subscriber.NewFixSubscriber(deps.MQTT, locationFeed)
	}
	return m, nil
}

// OpenSnapshotRepo opens the configured snapshot store. The memory driver
// has no store and returns nil.
func OpenSnapshotRepo(ctx context.Context, cfg config.StoreConfig, db *sql.DB) (snapshot.Repository, error) {
	switch cfg.Driver {
	case config.StorePostgres:
		if db == nil {
			return nil, eris.New("core: postgres store needs a database connection")
		}
		repo := postgres.NewGeofenceRepo(db)
		if err := repo.Migrate(ctx); err != nil {
			return nil, err
		}
		return repo, nil
	case config.StoreSQLite:
		repo, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case config.StoreYAML:
		return yamlfile.NewGeofenceRepo(cfg.YAMLPath), nil
	default:
		return nil, nil
	}
}

func (m *Module) RegisterRoutes(r *gin.RouterGroup) {
	m.handler.Register(r)
	m.fixHandler.Register(r)
}

func (m *Module) StartSubscribers() error {
	if m.subscriber == nil {
		return nil
	}
	return m.subscriber.Start()
}

// Run starts the session and serves the monitor and websocket hub until ctx
// is cancelled.
func (m *Module) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.monitor.Run(ctx) })
	g.Go(func() error { return m.hub.Run(ctx) })

	alerts := m.Session.Events(16)
	g.Go(func() error {
		m.forwardAlerts(ctx, alerts)
		return nil
	})
	g.Go(func() error {
		// a failed launch leaves the session in a recoverable state
		if err := m.Session.Start(ctx); err != nil {
			zap.L().Warn("core: session start", zap.Error(err))
		}
		return nil
	})
	return g.Wait()
}

func (m *Module) forwardAlerts(ctx context.Context, alerts <-chan service.UserAlert) {
	for {
		select {
		case <-ctx.Done():
			return
		case a, ok := <-alerts:
			if !ok {
				return
			}
			if err := m.hub.BroadcastAlert(ctx, a); err != nil {
				zap.L().Debug("core: alert not broadcast", zap.Error(err))
			}
		}
	}
}

func (m *Module) Close() error {
	if m.subscriber != nil {
		m.subscriber.Stop()
	}
	m.Feed.Flush()
	m.Session.Close()
	if m.repo != nil {
		return m.repo.Close()
	}
	return nil
}
