// Package config loads runtime configuration for the capture and desktop
// clients.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file (see parseFile) selected via flags: -c or -config.
//     Files ending in .yaml/.yml are YAML, anything else is JSON with comments.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   capture server URL
//	-r string   relay websocket URL
//	-i int      status poll interval (seconds)
//	-n int      parallel uploads
//	-f duration preview frame interval
//	-l string   log format
//
// # File schema
//
// Intervals use timex.Duration, so values can be either strings like "2s" or
// integer nanoseconds:
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "poll_interval": "2s", // polling fallback
//	  "parallelism": 3
//	}
package config
