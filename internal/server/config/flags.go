package config

import (
	"flag"
	"os"
	"time"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   secret key
//	-t int      capture session TTL, minutes
//	-x int      upload intent TTL, minutes
//	-k string   storage backend (s3|local)
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-l string   local object store directory
//	-w string   public base URL of this server
//	-m string   defer mode (stage|draft)
//	-o string   OCR endpoint
//	-f string   log format (json|text|zap)
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, so -c/-config and other flags do not collide.
//   - Duration flags are accepted as integers in minutes.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-d", "-s", "-t", "-x", "-k", "-u", "-p", "-b", "-g", "-e", "-l", "-w", "-m", "-o", "-f",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	sessionTTL := fs.Int("t", int(config.SessionTTL.Minutes()), "capture session TTL (in minutes)")
	presignTTL := fs.Int("x", int(config.PresignTTL.Minutes()), "upload intent TTL (in minutes)")

	fs.StringVar(&config.StorageBackend, "k", config.StorageBackend, "storage backend: s3 or local")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.LocalStorageDir, "l", config.LocalStorageDir, "local object store directory")
	fs.StringVar(&config.PublicBaseURL, "w", config.PublicBaseURL, "public base URL")
	fs.StringVar(&config.DeferMode, "m", config.DeferMode, "defer mode: stage or draft")
	fs.StringVar(&config.OCREndpoint, "o", config.OCREndpoint, "OCR endpoint")
	fs.StringVar(&config.LogFormat, "f", config.LogFormat, "log format: json, text or zap")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SessionTTL = time.Duration(*sessionTTL) * time.Minute
	config.PresignTTL = time.Duration(*presignTTL) * time.Minute
}
