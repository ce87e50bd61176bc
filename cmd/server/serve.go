package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nandanugg/geofence-monitor/config"
	"github.com/nandanugg/geofence-monitor/module/core"
)

const shutdownTimeout = 10 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the geofence monitor and its HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		deps, closeDeps, err := connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeDeps()

		module, err := core.Build(ctx, cfg, deps)
		if err != nil {
			return eris.Wrap(err, "core module")
		}
		defer func() { _ = module.Close() }()

		if err := module.StartSubscribers(); err != nil {
			return eris.Wrap(err, "start subscribers")
		}

		gin.SetMode(gin.ReleaseMode)
		r := gin.New()
		r.Use(gin.Recovery())
		config.NewHealthChecker().
			WithPostgres(deps.DB).
			WithRabbitMQ(deps.AMQPConn).
			WithMQTT(deps.MQTT).
			Register(r)
		module.RegisterRoutes(&r.RouterGroup)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return module.Run(gctx) })
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// connect opens the connections the configuration asks for. The returned
// func closes whatever was opened.
func connect(ctx context.Context, cfg *config.Config) (core.Deps, func(), error) {
	var (
		deps    core.Deps
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Store.Driver == config.StorePostgres {
		db, err := config.NewPostgres(ctx, cfg.Store)
		if err != nil {
			return deps, nil, err
		}
		deps.DB = db
		closers = append(closers, func() { _ = db.Close() })
	}

	if cfg.RabbitMQ.Enabled {
		conn, err := config.NewRabbitMQ(cfg.RabbitMQ)
		if err != nil {
			closeAll()
			return deps, nil, err
		}
		deps.AMQPConn = conn
		closers = append(closers, func() { _ = conn.Close() })
	}

	if cfg.MQTT.Enabled {
		client, err := config.NewMQTT(cfg.MQTT)
		if err != nil {
			closeAll()
			return deps, nil, err
		}
		deps.MQTT = client
		closers = append(closers, func() { client.Disconnect(250) })
	}

	return deps, closeAll, nil
}

// openDB is used by commands that only need the snapshot store.
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if cfg.Store.Driver != config.StorePostgres {
		return nil, nil
	}
	return config.NewPostgres(ctx, cfg.Store)
}
