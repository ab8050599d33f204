package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/flaxvault/internal/server"
	"github.com/dmitrijs2005/flaxvault/internal/server/config"
)

func main() {
	cfg := config.LoadConfig()
	app := server.NewApp(cfg)

	if err := app.Run(context.Background()); err != nil {
		log.Fatalf("%v", err)
	}
}
