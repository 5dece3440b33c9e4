package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/cosflow/cosflow-web/billing"
	"github.com/cosflow/cosflow-web/i18n"
	"github.com/cosflow/cosflow-web/internal/config"
	"github.com/cosflow/cosflow-web/internal/logging"
	"github.com/cosflow/cosflow-web/server"
	"github.com/cosflow/cosflow-web/upstream"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// a missing .env is fine: production injects the environment directly
	_ = godotenv.Load()

	c := config.New()
	logging.Setup(c.GetEnv())

	if err := run(c); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run(c config.Config) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	if err := i18n.Load(); err != nil {
		return fmt.Errorf("loading translations: %w", err)
	}

	ctx := context.Background()
	events, closeEvents, err := billing.NewEventStore(ctx, c.GetRedisURL())
	if err != nil {
		return err
	}
	defer func() {
		if err := closeEvents(); err != nil {
			log.Warn().Err(err).Msg("closing webhook event store")
		}
	}()

	client := upstream.New(c, upstream.WithWebhookSecret(c.GetBackendWebhookSecret()))
	log.Info().Str("upstream", client.BaseURL()).Msg("Forwarding API calls")
	deps := server.Deps{Upstream: client}
	if c.GetStripeSecretKey() != "" {
		gateway := billing.NewStripeGateway(c.GetStripeSecretKey(), nil)
		deps.Billing = billing.NewService(gateway, c.GetStripePriceID(), c.GetBaseURL())
		deps.Webhook = billing.NewWebhook(c.GetStripeWebhookSecret(), gateway, client, events, c.GetRetryWebhookOnSyncFailure())
	} else {
		log.Warn().Msg("STRIPE_SECRET_KEY not set, billing routes are disabled")
	}

	handler, err := server.New(c, deps)
	if err != nil {
		return err
	}

	displayAppname(c.GetAppName())
	srv := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- listenAndServe(srv)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(srv)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
