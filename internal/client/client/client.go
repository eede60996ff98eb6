package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophtvm/internal/common"
	"github.com/dmitrijs2005/gophtvm/internal/cryptox"
)

// Client is the surface the CLI needs.
type Client interface {
	Register(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password, uid string) (string, error)
	GetToken(ctx context.Context, uid, key string) (*Token, error)
	Ping(ctx context.Context) error
}

// Token is a decrypted credential set.
type Token struct {
	AccessKey     string
	SecretKey     string
	SecurityToken string
	Expiration    time.Time
}

// HTTPClient talks to the vending machine over HTTP.
type HTTPClient struct {
	base    *url.URL
	appName string
	http    *http.Client
	now     func() time.Time
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(serverURL, appName string, timeout time.Duration) (*HTTPClient, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("server url %q must be absolute", serverURL)
	}
	return &HTTPClient{
		base:    u,
		appName: strings.ToLower(appName),
		http:    &http.Client{Timeout: timeout},
		now:     time.Now,
	}, nil
}

// Endpoint is the host name the server salts password hashes with.
func (c *HTTPClient) Endpoint() string {
	return strings.ToLower(c.base.Hostname())
}

// PasswordHash derives the key the server encrypts login responses with.
func (c *HTTPClient) PasswordHash(username, password string) string {
	return cryptox.SaltedPassword(username, c.appName, c.Endpoint(), password)
}

func (c *HTTPClient) call(ctx context.Context, path string, form url.Values) (string, error) {
	u := c.base.JoinPath(path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}

func statusError(code int, body string) error {
	kind := ErrServer
	switch code {
	case http.StatusBadRequest:
		kind = ErrBadRequest
	case http.StatusRequestTimeout:
		kind = ErrStaleTimestamp
	case http.StatusUnauthorized:
		kind = ErrUnauthorized
	case http.StatusNotAcceptable:
		kind = ErrConflict
	}
	return &StatusError{Code: code, Body: body, kind: kind}
}

func (c *HTTPClient) Register(ctx context.Context, username, password string) error {
	_, err := c.call(ctx, "/registeruser", url.Values{
		common.ParamUsername: {username},
		common.ParamPassword: {password},
	})
	return err
}

// Login binds uid to the user and returns the freshly issued device key.
func (c *HTTPClient) Login(ctx context.Context, username, password, uid string) (string, error) {
	hash := c.PasswordHash(username, password)
	ts := cryptox.FormatTimestamp(c.now())

	body, err := c.call(ctx, "/login", url.Values{
		common.ParamUsername:  {username},
		common.ParamUID:       {uid},
		common.ParamSignature: {cryptox.Sign(ts, hash)},
		common.ParamTimestamp: {ts},
	})
	if err != nil {
		return "", err
	}

	plain, err := cryptox.Unwrap(body, hash)
	if err != nil {
		return "", fmt.Errorf("decrypt login response: %w", err)
	}

	var kp struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal([]byte(plain), &kp); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if kp.Key == "" {
		return "", fmt.Errorf("login response without key")
	}
	return kp.Key, nil
}

// GetToken requests credentials for a device holding key.
func (c *HTTPClient) GetToken(ctx context.Context, uid, key string) (*Token, error) {
	ts := cryptox.FormatTimestamp(c.now())

	body, err := c.call(ctx, "/gettoken", url.Values{
		common.ParamUID:       {uid},
		common.ParamSignature: {cryptox.Sign(ts, key)},
		common.ParamTimestamp: {ts},
	})
	if err != nil {
		return nil, err
	}

	plain, err := cryptox.Unwrap(body, key)
	if err != nil {
		return nil, fmt.Errorf("decrypt token response: %w", err)
	}

	var tp struct {
		AccessKey      string `json:"accessKey"`
		SecretKey      string `json:"secretKey"`
		SecurityToken  string `json:"securityToken"`
		ExpirationDate string `json:"expirationDate"`
	}
	if err := json.Unmarshal([]byte(plain), &tp); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}

	ms, err := strconv.ParseInt(tp.ExpirationDate, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad expiration %q: %w", tp.ExpirationDate, err)
	}

	return &Token{
		AccessKey:     tp.AccessKey,
		SecretKey:     tp.SecretKey,
		SecurityToken: tp.SecurityToken,
		Expiration:    time.UnixMilli(ms).UTC(),
	}, nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.JoinPath("/healthz").String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}
