package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/client/cli"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/client/config"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/flagx"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/protocol"
)

func main() {

	pos := flagx.Positionals(os.Args[1:], config.ValueFlags)
	if len(pos) != 1 {
		log.Fatalf("usage: desktop [flags] <resolutions|minutes|ordinances>")
	}
	docType, err := protocol.ParseDocType(pos[0])
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

	if err := app.Desktop(ctx, docType); err != nil {
		stop()
		log.Fatalf("%v", err)
	}

}
