package cli

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/client/client"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/client/config"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/client/relayclient"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/logging"
)

type App struct {
	config *config.Config
	api    client.Client
	logger logging.Logger
	reader *bufio.Reader
	out    io.Writer
	// interactive is set when both stdin and stdout are terminals: prompts
	// are shown and results are printed as text instead of JSON.
	interactive bool
}

func NewApp(c *config.Config) (*App, error) {
	logger, err := logging.NewWriter(os.Stderr, c.LogFormat, c.LogLevel)
	if err != nil {
		return nil, err
	}

	return &App{
		config:      c,
		api:         client.NewHTTPClient(c.ServerURL, c.RequestTimeout),
		logger:      logger,
		reader:      bufio.NewReader(os.Stdin),
		out:         os.Stdout,
		interactive: isTerminal(int(os.Stdin.Fd())) && isTerminal(int(os.Stdout.Fd())),
	}, nil
}

func (a *App) dialRelay(ctx context.Context) (*relayclient.Conn, error) {
	return relayclient.Dial(ctx, a.config.RelayEndpoint(), a.logger)
}
