package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/flaxvault/internal/server/config"
	"github.com/dmitrijs2005/flaxvault/internal/worker"
)

func main() {
	cfg := config.LoadConfig()
	app := worker.NewApp(cfg)

	if err := app.Run(context.Background()); err != nil {
		log.Fatalf("%v", err)
	}
}
