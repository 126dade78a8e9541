package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/client/cli"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/client/config"
)

func main() {

	args, err := cli.ParseCaptureArgs(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}

	cfg := config.LoadConfig()
	app, err := cli.NewApp(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Capture(ctx, args); err != nil {
		stop()
		log.Fatalf("%v", err)
	}

}
