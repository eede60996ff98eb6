package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/gophtvm/internal/flagx"
)

// serverFlags lists the short flags handled by parseFlags.
var serverFlags = []string{"-a", "-n", "-x", "-i", "-t", "-b", "-d", "-g", "-e", "-k", "-u", "-p", "-f", "-s", "-r", "-l"}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-n string   application name
//	-x string   identity domain prefix
//	-i string   AWS account id
//	-t int      session duration, seconds
//	-b string   store backend (memory, postgres, s3)
//	-d string   PostgreSQL DSN
//	-g string   AWS region
//	-e string   AWS base endpoint override
//	-k string   S3 bucket
//	-u string   AWS access key id
//	-p string   AWS secret key
//	-f string   policy template file
//	-s string   admin JWT secret
//	-r int      admin token validity, minutes
//	-l string   log level
//
// The args are filtered through flagx.FilterArgs first so that -c/-config
// and unknown flags do not trip the flag set.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], serverFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.ListenAddr, "a", config.ListenAddr, "address and port to run server")
	fs.StringVar(&config.AppName, "n", config.AppName, "application name")
	fs.StringVar(&config.DomainPrefix, "x", config.DomainPrefix, "identity domain prefix")
	fs.StringVar(&config.AccountID, "i", config.AccountID, "AWS account id")

	sessionDuration := fs.Int("t", int(config.SessionDuration.Seconds()), "session duration (in seconds)")

	fs.StringVar(&config.StoreBackend, "b", config.StoreBackend, "store backend: memory, postgres or s3")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.StoreRegion, "g", config.StoreRegion, "AWS region")
	fs.StringVar(&config.StoreEndpoint, "e", config.StoreEndpoint, "AWS base endpoint")
	fs.StringVar(&config.S3Bucket, "k", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.AWSAccessKeyID, "u", config.AWSAccessKeyID, "AWS access key id")
	fs.StringVar(&config.AWSSecretKey, "p", config.AWSSecretKey, "AWS secret key")
	fs.StringVar(&config.PolicyFile, "f", config.PolicyFile, "policy template file")
	fs.StringVar(&config.AdminSecret, "s", config.AdminSecret, "admin secret key")

	adminTokenValidity := fs.Int("r", int(config.AdminTokenValidity.Minutes()), "admin token validity (in minutes)")

	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SessionDuration = time.Duration(*sessionDuration) * time.Second
	config.AdminTokenValidity = time.Duration(*adminTokenValidity) * time.Minute
}
