package config

import (
	"flag"
	"os"
	"time"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/flagx"
)

// ValueFlags lists the client flags that take a value, so commands can tell
// flag values from positional arguments.
var ValueFlags = []string{"-c", "-config", "-a", "-r", "-i", "-n", "-f", "-l"}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the capture server
//	-r string   relay websocket URL
//	-i int      status poll interval (in seconds)
//	-n int      files uploaded in parallel
//	-f duration minimum spacing of preview frames (e.g. 500ms)
//	-l string   log format (text, json or zap)
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-r", "-i", "-n", "-f", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "capture server URL")
	fs.StringVar(&cfg.RelayURL, "r", cfg.RelayURL, "relay websocket URL")
	pollInterval := fs.Int("i", int(cfg.PollInterval.Seconds()), "status poll interval (in seconds)")
	fs.IntVar(&cfg.Parallelism, "n", cfg.Parallelism, "parallel uploads")
	fs.DurationVar(&cfg.FrameInterval, "f", cfg.FrameInterval, "preview frame interval")
	fs.StringVar(&cfg.LogFormat, "l", cfg.LogFormat, "log format")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "i" {
			cfg.PollInterval = time.Duration(*pollInterval) * time.Second
		}
	})
}
