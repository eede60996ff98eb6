// Package awscfg loads the aws.Config shared by the S3 store and the STS
// credential issuer.
package awscfg

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

var loadDefaultAWSConfig = config.LoadDefaultConfig

// Options selects region and credentials. Empty AccessKeyID falls back to
// the default credential chain (env, shared config, instance role).
type Options struct {
	Region      string
	AccessKeyID string
	SecretKey   string
}

// Load builds an aws.Config from opts.
func Load(ctx context.Context, opts Options) (aws.Config, error) {
	optFns := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" {
		optFns = append(optFns, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretKey, ""),
		))
	}

	cfg, err := loadDefaultAWSConfig(ctx, optFns...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}
