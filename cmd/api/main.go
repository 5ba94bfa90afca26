package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/go-logr/logr"

	"github.com/imrishuroy/go-funnel-bot/internal/app"
	"github.com/imrishuroy/go-funnel-bot/internal/config"
	"github.com/imrishuroy/go-funnel-bot/internal/logutil"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logutil.New("info").Error(err, "invalid configuration")
		os.Exit(1)
	}
	log := logutil.New(cfg.LogLevel).WithName("api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error(err, "failed to build app")
		os.Exit(1)
	}
	defer a.Close()

	// RUN_LOCAL=true long-polls Telegram and serves HTTP locally for development.
	if cfg.RunLocal {
		if err := runLocal(ctx, a, cfg.HTTPAddr, log); err != nil {
			log.Error(err, "local run failed")
			os.Exit(1)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(a.Router())

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}

func runLocal(ctx context.Context, a *app.App, addr string, log logr.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("running local server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	pollDone := make(chan struct{})
	go func() {
		log.Info("long polling telegram updates")
		a.Poller().Run(ctx)
		close(pollDone)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-pollDone
	return nil
}
