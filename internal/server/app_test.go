package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/dmitrijs2005/gophtvm/internal/cryptox"
	"github.com/dmitrijs2005/gophtvm/internal/server/awscfg"
	"github.com/dmitrijs2005/gophtvm/internal/server/config"
	"github.com/dmitrijs2005/gophtvm/internal/server/credentials"
	"github.com/dmitrijs2005/gophtvm/internal/server/store/pgstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSTS struct {
	account  string
	policies []string
}

func (f *fakeSTS) GetFederationToken(_ context.Context, in *sts.GetFederationTokenInput, _ ...func(*sts.Options)) (*sts.GetFederationTokenOutput, error) {
	f.policies = append(f.policies, aws.ToString(in.Policy))
	return &sts.GetFederationTokenOutput{Credentials: &types.Credentials{
		AccessKeyId:     aws.String("ASIATEST"),
		SecretAccessKey: aws.String("secret"),
		SessionToken:    aws.String("session"),
		Expiration:      aws.Time(time.Now().Add(time.Hour)),
	}}, nil
}

func (f *fakeSTS) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	if f.account == "" {
		return nil, errors.New("no credentials")
	}
	return &sts.GetCallerIdentityOutput{Account: aws.String(f.account)}, nil
}

func stubSeams(t *testing.T, f *fakeSTS) {
	t.Helper()
	origOut, origLoad, origSTS := logOutput, loadAWSConfig, newSTSAPI
	t.Cleanup(func() { logOutput, loadAWSConfig, newSTSAPI = origOut, origLoad, origSTS })

	logOutput = io.Discard
	loadAWSConfig = func(_ context.Context, opts awscfg.Options) (aws.Config, error) {
		return aws.Config{Region: opts.Region}, nil
	}
	newSTSAPI = func(aws.Config, string) credentials.STSAPI { return f }
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.ListenAddr = "127.0.0.1:0"
	return cfg
}

func get(t *testing.T, h http.Handler, path string, q url.Values) (int, string) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path+"?"+q.Encode(), nil))
	return rr.Code, rr.Body.String()
}

func TestNewApp_EndToEnd(t *testing.T) {
	f := &fakeSTS{account: "123456789012"}
	stubSeams(t, f)

	cfg := testConfig()
	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	h := app.Handler()

	code, body := get(t, h, "/registeruser", url.Values{"username": {"alice"}, "password": {"Secret1"}})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", body)

	// httptest requests are addressed to example.com
	hash := cryptox.SaltedPassword("alice", cfg.AppName, "example.com", "Secret1")
	ts := cryptox.FormatTimestamp(time.Now())
	code, body = get(t, h, "/login", url.Values{
		"username": {"alice"}, "uid": {"phone1"}, "signature": {cryptox.Sign(ts, hash)}, "timestamp": {ts},
	})
	require.Equal(t, http.StatusOK, code)

	plain, err := cryptox.Unwrap(body, hash)
	require.NoError(t, err)
	var kp struct {
		Key string `json:"key"`
	}
	require.NoError(t, json.Unmarshal([]byte(plain), &kp))

	code, body = get(t, h, "/gettoken", url.Values{
		"uid": {"phone1"}, "signature": {cryptox.Sign(ts, kp.Key)}, "timestamp": {ts},
	})
	require.Equal(t, http.StatusOK, code)
	plain, err = cryptox.Unwrap(body, kp.Key)
	require.NoError(t, err)
	assert.Contains(t, plain, `"accessKey":"ASIATEST"`)

	require.Len(t, f.policies, 1)
	assert.Contains(t, f.policies[0], "123456789012")
	assert.Contains(t, f.policies[0], cfg.UsersDomain())

	code, _ = get(t, h, "/gettoken", url.Values{
		"uid": {"phone1"}, "signature": {cryptox.Sign(ts, "wrong")}, "timestamp": {ts},
	})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestNewApp_ConfiguredAccountSkipsLookup(t *testing.T) {
	stubSeams(t, &fakeSTS{})

	cfg := testConfig()
	cfg.AccountID = "210987654321"
	_, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
}

func TestNewApp_Failures(t *testing.T) {
	stubSeams(t, &fakeSTS{})

	cfg := testConfig()
	_, err := NewApp(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve account id")

	cfg = testConfig()
	cfg.SessionDuration = time.Minute
	_, err = NewApp(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")

	cfg = testConfig()
	cfg.AccountID = "1"
	cfg.PolicyFile = t.TempDir() + "/missing.json"
	_, err = NewApp(context.Background(), cfg)
	require.Error(t, err)
}

func TestOpenBackend_Postgres(t *testing.T) {
	orig := openPostgres
	t.Cleanup(func() { openPostgres = orig })

	var gotDSN string
	openPostgres = func(_ context.Context, dsn string) (*pgstore.Store, error) {
		gotDSN = dsn
		return nil, errors.New("connection refused")
	}

	cfg := testConfig()
	cfg.StoreBackend = config.BackendPostgres
	_, err := OpenBackend(context.Background(), cfg, aws.Config{})
	require.Error(t, err)
	assert.Equal(t, cfg.DatabaseDSN, gotDSN)

	cfg.StoreBackend = "etcd"
	_, err = OpenBackend(context.Background(), cfg, aws.Config{})
	require.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	stubSeams(t, &fakeSTS{account: "123456789012"})

	app, err := NewApp(context.Background(), testConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_ListenError(t *testing.T) {
	stubSeams(t, &fakeSTS{account: "123456789012"})

	cfg := testConfig()
	cfg.ListenAddr = "256.0.0.1:bad"
	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)

	assert.Error(t, app.Run(context.Background()))
}
