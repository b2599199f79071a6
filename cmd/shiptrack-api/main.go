package main

import (
	"context"
	"fmt"
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

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = runShipTrackAPI(ctx, cfg, defaultAPIFactories(), swaggerPathFromEnv(), nil)
	if err != nil && err != context.Canceled {
		panic(err)
	}
}
