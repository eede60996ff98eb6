// Package credentials obtains temporary, policy-scoped AWS credentials for
// an authenticated user through STS GetFederationToken.
package credentials

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/dmitrijs2005/gophtvm/internal/common"
	"github.com/dmitrijs2005/gophtvm/internal/logging"
)

// MaxFederationNameLength is the STS limit on the federated user name.
const MaxFederationNameLength = 32

// Credentials is one vended credential set. It is never persisted.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
}

// STSAPI is the subset of *sts.Client used here.
type STSAPI interface {
	GetFederationToken(ctx context.Context, in *sts.GetFederationTokenInput, optFns ...func(*sts.Options)) (*sts.GetFederationTokenOutput, error)
	GetCallerIdentity(ctx context.Context, in *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

var newSTSClientFromConfig = func(cfg aws.Config, optFns ...func(*sts.Options)) STSAPI {
	return sts.NewFromConfig(cfg, optFns...)
}

// NewSTSClient builds an STS client, honouring an optional endpoint
// override for localstack.
func NewSTSClient(cfg aws.Config, endpoint string) STSAPI {
	return newSTSClientFromConfig(cfg, func(o *sts.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// ResolveAccountID asks STS which account the configured credentials
// belong to.
func ResolveAccountID(ctx context.Context, api STSAPI) (string, error) {
	out, err := api.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("sts error: %w", err)
	}
	id := aws.ToString(out.Account)
	if id == "" {
		return "", fmt.Errorf("caller identity without account: %w", common.ErrorInternal)
	}
	return id, nil
}

// FederationName maps username onto the STS name charset [\w+=,.@-],
// replacing any other character with '_', and truncates it to
// MaxFederationNameLength.
func FederationName(username string) string {
	var b strings.Builder
	for _, c := range username {
		if b.Len() == MaxFederationNameLength {
			break
		}
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		case strings.ContainsRune("_+=,.@-", c):
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

type STSIssuer struct {
	api      STSAPI
	policy   *PolicyTemplate
	duration time.Duration
	log      logging.Logger
}

func NewSTSIssuer(api STSAPI, policy *PolicyTemplate, duration time.Duration, log logging.Logger) *STSIssuer {
	return &STSIssuer{api: api, policy: policy, duration: duration, log: log.With("module", "credentials")}
}

// TemporaryCredentials requests a credential set scoped to username. A
// response without credentials is an internal error.
func (i *STSIssuer) TemporaryCredentials(ctx context.Context, username string) (*Credentials, error) {
	policy, err := i.policy.Render(username)
	if err != nil {
		return nil, err
	}

	out, err := i.api.GetFederationToken(ctx, &sts.GetFederationTokenInput{
		Name:            aws.String(FederationName(username)),
		Policy:          aws.String(policy),
		DurationSeconds: aws.Int32(int32(i.duration / time.Second)),
	})
	if err != nil {
		i.log.Error(ctx, "federation token request failed", "username", username, "error", err)
		return nil, fmt.Errorf("sts error: %w", err)
	}
	if out == nil || out.Credentials == nil {
		i.log.Error(ctx, "federation token response without credentials", "username", username)
		return nil, fmt.Errorf("empty federation token: %w", common.ErrorInternal)
	}

	c := out.Credentials
	return &Credentials{
		AccessKeyID:     aws.ToString(c.AccessKeyId),
		SecretAccessKey: aws.ToString(c.SecretAccessKey),
		SessionToken:    aws.ToString(c.SessionToken),
		Expiration:      aws.ToTime(c.Expiration),
	}, nil
}
