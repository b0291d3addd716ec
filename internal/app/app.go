package app

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"greenweb/internal/app/bootstrap"
	"greenweb/internal/app/server"
	"greenweb/internal/config"
	"greenweb/internal/database"
	"greenweb/internal/jobs/runtime"
	"greenweb/internal/metrics"
	"greenweb/internal/support"
)

const defaultBackendPort = 8082

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	log.SetLevel(log.DebugLevel)

	backendPortFlag := flag.Int("backend-port", defaultBackendPort, "Port for API server")
	productionFlag := flag.Bool("production", false, "Run in production mode")
	flag.Parse()

	config.SetProductionMode(*productionFlag)
	if *productionFlag {
		log.SetLevel(log.InfoLevel)
	}

	backendPort := resolvePort("BACKEND_PORT", "backend-port", *backendPortFlag)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := support.GetRedisClient()
	if err != nil {
		log.Warn("Redis unavailable, running without config sync and leader election", "error", err)
	} else {
		defer func() {
			if err := support.CloseRedisClient(); err != nil {
				log.Warn("error closing redis client", "error", err)
			}
		}()

		presenceCtx, presenceCancel := context.WithCancel(ctx)
		presenceDone := make(chan struct{})
		go func() {
			defer close(presenceDone)
			runtime.NewPresence(redisClient).Run(presenceCtx)
		}()
		// The presence key is removed before the client closes.
		defer func() {
			presenceCancel()
			<-presenceDone
		}()
	}

	metrics.Register()

	services, err := bootstrap.Setup(ctx, redisClient)
	if err != nil {
		return err
	}
	defer func() {
		if err := services.GeoLite.Close(); err != nil {
			log.Warn("error closing GeoLite reader", "error", err)
		}
		if err := database.Close(); err != nil {
			log.Warn("error closing database", "error", err)
		}
	}()

	return server.New(services.Checker).OpenRoutes(ctx, backendPort)
}

func resolvePort(primaryEnv, legacyEnv string, fallback int) int {
	if port := readPort(primaryEnv); port != 0 {
		return port
	}
	if port := readPort(legacyEnv); port != 0 {
		return port
	}
	return fallback
}

func readPort(envKey string) int {
	raw := os.Getenv(envKey)
	if raw == "" {
		return 0
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port == 0 {
		log.Warn("invalid port override", "env", envKey, "value", raw)
		return 0
	}
	return port
}
