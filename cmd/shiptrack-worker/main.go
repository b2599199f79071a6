package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aerocargo/shiptrack/config"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.ShipTrack.WorkerHTTPAddr
	if httpAddr == "" {
		httpAddr = ":8081"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var app *workerApp
	readyCh := make(chan struct{})
	onReady := func(a *workerApp) {
		app = a
		close(readyCh)
	}

	workerErr := make(chan error, 1)
	go func() { workerErr <- RunWorker(ctx, cfg, defaultWorkerFactories(), onReady) }()

	<-readyCh

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runWorkerHTTPServer(ctx, workerHTTPOpts{httpAddr: httpAddr, app: app})
	}()

	select {
	case err := <-workerErr:
		if err != nil && err != context.Canceled {
			panic(err)
		}
	case err := <-httpErr:
		if err != nil && err != context.Canceled && err != http.ErrServerClosed {
			panic(err)
		}
	}
}
