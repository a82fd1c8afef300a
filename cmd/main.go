package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blerelay/internal/device"
	"blerelay/internal/diag"
	"blerelay/internal/handlers"
	"blerelay/internal/logger"
	"blerelay/internal/protocol"
	"blerelay/internal/repository"
	"blerelay/internal/server"
	"blerelay/internal/service"
	"blerelay/internal/sim"

	"github.com/spf13/viper"
)

const defaultSimTick = 1 * time.Second

func main() {
	// init logger
	log := logger.Get(logger.InfoLevel)

	// load config.yml
	if err := loadConfig(); err != nil {
		log.Fatalw("error reading config", "err", err)
	}

	// open DB (journal + operator accounts only; device state is in-memory)
	db, err := openDB(log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Fatalw("failed to close sqlite", "err", cerr)
		}
	}()

	// wire protocol profile, a deployment-time choice, never negotiated
	variant := viper.GetString("protocol.variant")
	if variant == "" {
		variant = protocol.VariantJSON
	}
	codec, err := protocol.ForVariant(variant)
	if err != nil {
		log.Fatalw("invalid protocol variant", "err", err)
	}

	ringCap := viper.GetInt("diag.capacity")
	if ringCap <= 0 {
		ringCap = protocol.DefaultRingCapacity(variant)
	}

	signingKey := viper.GetString("auth.signing_key")
	if signingKey == "" {
		log.Fatalw("auth.signing_key must be set in config")
	}

	// wire dependencies
	repos := repository.NewRepository(db)
	appliance := sim.NewAppliance(codec, viper.GetInt64("sim.initial_clock"), log)
	transport := sim.NewTransport(appliance, simTick())
	services := service.NewService(repos, service.Deps{
		Provider:   transport,
		Codec:      codec,
		Store:      device.NewStore(),
		Ring:       diag.NewRing(ringCap),
		Log:        log,
		SigningKey: signingKey,
	})
	apiHandler := handlers.NewHandler(services, log)

	log.Infow("starting", "protocol", variant, "diag_capacity", ringCap)

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, viper.GetString("port"), apiHandler, log)

	// graceful shutdown
	waitForShutdown(srv, services, log)
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	return viper.ReadInConfig()
}

// simTick reads the simulated appliance cadence; the default models the
// appliance's 1 Hz clock.
func simTick() time.Duration {
	if ms := viper.GetInt("sim.tick_ms"); ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultSimTick
}

// openDB initializes the SQLite database using configuration.
func openDB(log *logger.Logger) (*sql.DB, error) {
	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", "app.db")
		dbPath = "app.db"
	}
	return repository.InitDB(dbPath)
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
func waitForShutdown(srv *server.Server, services *service.Service, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// tear down any live device link (stops the appliance ticker)
	services.Session.Disconnect()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
