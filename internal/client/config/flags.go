package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/gophtvm/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the vending machine
//	-n string   application name
//	-u string   device uid
//	-t int      request timeout (in seconds)
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-n", "-u", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the vending machine")
	fs.StringVar(&cfg.AppName, "n", cfg.AppName, "application name")
	fs.StringVar(&cfg.DeviceUID, "u", cfg.DeviceUID, "device uid")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
}
