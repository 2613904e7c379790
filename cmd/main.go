package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"helmbridge/internal/handlers"
	"helmbridge/internal/logger"
	"helmbridge/internal/repository"
	"helmbridge/internal/repository/db"
	"helmbridge/internal/server"
	"helmbridge/internal/service"
	"helmbridge/internal/signalk"
	"helmbridge/internal/store"

	"github.com/spf13/viper"
)

const (
	defaultDemoTick         = 1 * time.Second
	defaultSnapshotInterval = 30 * time.Second
)

func main() {
	// load config.yml first so the log level comes from it
	if err := loadConfig(); err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	log := logger.Get(viper.GetString("log.level"))

	// open DB
	sqlDB, err := openDB(log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// live data store
	st := store.New()

	// wire dependencies
	repos := repository.NewRepository(sqlDB)
	feed, sender, client := buildFeed(st, log)
	services := service.NewService(repos, st, sender, serviceConfig(), log)
	if client != nil {
		// connection gains/losses go to the audit log
		client.OnStatus = services.Controls.RecordConnection
	}
	apiHandler := handlers.NewHandler(services, st, log)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// restore last persisted values so the dashboard is not blank on boot
	if err := services.Snapshotter.Restore(ctx); err != nil {
		log.Errorw("snapshot restore failed", "err", err)
	}

	// start the data feed and the periodic snapshotter
	go feed(ctx)
	go services.Snapshotter.Run(ctx, snapshotInterval())

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, viper.GetString("port"), apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, services, st, log)
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	return viper.ReadInConfig()
}

// openDB initializes the SQLite database using configuration.
func openDB(log *logger.Logger) (*sql.DB, error) {
	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", "helmbridge.db")
		dbPath = "helmbridge.db"
	}
	return db.InitDB(dbPath)
}

// buildFeed selects the data source. With server.url configured the gateway
// talks to a real SignalK server; without it a built-in demo source emits
// synthetic boat data and reflects commands back, so the full command cycle
// works offline.
func buildFeed(st *store.Store, log *logger.Logger) (func(context.Context), service.CommandSender, *signalk.Client) {
	if url := viper.GetString("server.url"); url != "" {
		client := signalk.New(signalk.Config{
			URL:        url,
			Token:      viper.GetString("server.token"),
			Paths:      viper.GetStringSlice("server.paths"),
			PutTimeout: viper.GetDuration("server.put_timeout"),
		}, st, log)
		return client.Run, client, client
	}

	log.Infow("server.url not set; running with the built-in demo source")
	demo := service.NewDemoSource(st)
	return func(ctx context.Context) { demo.Run(ctx, demoTick()) }, demo, nil
}

func serviceConfig() service.Config {
	return service.Config{
		VerifyWindow: viper.GetDuration("command.verify_window"),
		GraceWindow:  viper.GetDuration("command.grace_window"),
		StaleTTL:     viper.GetDuration("data.stale_ttl"),
		Units:        viper.GetString("data.units"),
		SigningKey:   viper.GetString("auth.signing_key"),
		TokenTTL:     viper.GetDuration("auth.token_ttl"),
	}
}

func demoTick() time.Duration {
	if d := viper.GetDuration("demo.tick"); d > 0 {
		return d
	}
	return defaultDemoTick
}

func snapshotInterval() time.Duration {
	if d := viper.GetDuration("snapshot.interval"); d > 0 {
		return d
	}
	return defaultSnapshotInterval
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, services *service.Service, st *store.Store, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// fail pending command verifications and stop background goroutines;
	// the snapshotter writes a final snapshot on cancellation
	services.Controls.Close()
	cancel()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}

	st.Close()
}
