package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gophtvm/internal/flagx"
	"github.com/dmitrijs2005/gophtvm/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "24h" and integer nanoseconds are accepted.
// Fields left out of the file keep their current value.
type JsonConfig struct {
	ListenAddr         *string         `json:"listen_addr"`
	AppName            *string         `json:"app_name"`
	DomainPrefix       *string         `json:"domain_prefix"`
	AccountID          *string         `json:"account_id"`
	SessionDuration    *timex.Duration `json:"session_duration"`
	StoreBackend       *string         `json:"store_backend"`
	DatabaseDSN        *string         `json:"database_dsn"`
	StoreRegion        *string         `json:"store_region"`
	StoreEndpoint      *string         `json:"store_endpoint"`
	S3Bucket           *string         `json:"s3_bucket"`
	AWSAccessKeyID     *string         `json:"aws_access_key_id"`
	AWSSecretKey       *string         `json:"aws_secret_key"`
	PolicyFile         *string         `json:"policy_file"`
	AdminSecret        *string         `json:"admin_secret"`
	AdminTokenValidity *timex.Duration `json:"admin_token_validity"`
	LogLevel           *string         `json:"log_level"`
}

// parseJson overlays values from the file named by -c or -config. Nothing
// is loaded when neither flag is present. An unreadable file or invalid
// JSON panics, as startup cannot continue.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.ListenAddr, c.ListenAddr)
	setString(&config.AppName, c.AppName)
	setString(&config.DomainPrefix, c.DomainPrefix)
	setString(&config.AccountID, c.AccountID)
	if c.SessionDuration != nil {
		config.SessionDuration = c.SessionDuration.Duration
	}
	setString(&config.StoreBackend, c.StoreBackend)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.StoreRegion, c.StoreRegion)
	setString(&config.StoreEndpoint, c.StoreEndpoint)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.AWSAccessKeyID, c.AWSAccessKeyID)
	setString(&config.AWSSecretKey, c.AWSSecretKey)
	setString(&config.PolicyFile, c.PolicyFile)
	setString(&config.AdminSecret, c.AdminSecret)
	if c.AdminTokenValidity != nil {
		config.AdminTokenValidity = c.AdminTokenValidity.Duration
	}
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
