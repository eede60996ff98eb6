// Package tvm is the token vending orchestrator. It verifies signed
// requests against the user and device directories, binds devices to
// users, vends scoped credentials and encrypts every response body.
//
// Errors returned by the operations wrap the sentinels in internal/common;
// ClassifyFailure turns them into a Status.
package tvm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophtvm/internal/common"
	"github.com/dmitrijs2005/gophtvm/internal/cryptox"
	"github.com/dmitrijs2005/gophtvm/internal/logging"
	"github.com/dmitrijs2005/gophtvm/internal/server/credentials"
)

// Registration hints returned alongside the status of RegisterUser.
const (
	HintSuccess = "success"
	HintError   = "error"
)

type UserDirectory interface {
	Register(ctx context.Context, username, password, endpoint string) bool
	AuthenticateBySignature(ctx context.Context, username, timestamp, signature string) (string, error)
	GetHashSaltedPassword(ctx context.Context, username string) (string, error)
	UsernameForUserID(ctx context.Context, userID string) (string, error)
}

type DeviceDirectory interface {
	RegisterOrRotate(ctx context.Context, uid, key, userID string) bool
	GetKey(ctx context.Context, uid string) (string, error)
	GetOwningUserID(ctx context.Context, uid string) (string, error)
}

type CredentialIssuer interface {
	TemporaryCredentials(ctx context.Context, username string) (*credentials.Credentials, error)
}

type Service struct {
	users   UserDirectory
	devices DeviceDirectory
	issuer  CredentialIssuer
	log     logging.Logger
	now     func() time.Time
}

func NewService(users UserDirectory, devices DeviceDirectory, issuer CredentialIssuer, log logging.Logger) *Service {
	return &Service{
		users:   users,
		devices: devices,
		issuer:  issuer,
		log:     log.With("module", "tvm"),
		now:     time.Now,
	}
}

// WithClock replaces the clock used for timestamp checks.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func required(params ...string) error {
	for _, p := range params {
		if p == "" {
			return fmt.Errorf("missing parameter: %w", common.ErrorValidation)
		}
	}
	return nil
}

func internal(err error) error {
	return fmt.Errorf("%w: %w", common.ErrorInternal, err)
}

func (s *Service) checkTimestamp(ctx context.Context, timestamp string) error {
	if !cryptox.IsTimestampValid(timestamp, s.now()) {
		s.log.Warn(ctx, "timestamp outside window", "timestamp", timestamp)
		return common.ErrorStaleTimestamp
	}
	return nil
}

// RequestDeviceToken vends credentials for the user owning uid. The
// signature is sign(timestamp, deviceKey); the response is the token JSON
// encrypted under the device key.
func (s *Service) RequestDeviceToken(ctx context.Context, uid, signature, timestamp string) (string, error) {
	if err := required(uid, signature, timestamp); err != nil {
		return "", err
	}
	if err := s.checkTimestamp(ctx, timestamp); err != nil {
		return "", err
	}

	// An unknown device yields an empty key and fails like a wrong one.
	key, err := s.devices.GetKey(ctx, uid)
	if err != nil {
		s.log.Error(ctx, "device key lookup failed", "uid", uid, "error", err)
		return "", internal(err)
	}
	if key == "" || !cryptox.ConstantTimeEquals(cryptox.Sign(timestamp, key), signature) {
		s.log.Warn(ctx, "device signature mismatch", "uid", uid)
		return "", common.ErrorUnauthorized
	}

	userID, err := s.devices.GetOwningUserID(ctx, uid)
	if err != nil {
		s.log.Error(ctx, "device owner lookup failed", "uid", uid, "error", err)
		return "", internal(err)
	}
	username, err := s.users.UsernameForUserID(ctx, userID)
	if err != nil {
		s.log.Error(ctx, "no user for device", "uid", uid, "error", err)
		return "", internal(err)
	}

	creds, err := s.issuer.TemporaryCredentials(ctx, username)
	if err != nil {
		return "", internal(err)
	}
	if creds == nil {
		return "", internal(errors.New("issuer returned no credentials"))
	}

	body, err := tokenJSON(creds)
	if err != nil {
		return "", internal(err)
	}
	out, err := cryptox.EncryptAndWrap(body, key)
	if err != nil {
		return "", internal(err)
	}

	s.log.Info(ctx, "token issued", "uid", uid, "username", username)
	return out, nil
}

// Login verifies the user signature, rotates the key of uid under the
// user and returns the new key encrypted under the password hash.
func (s *Service) Login(ctx context.Context, username, uid, signature, timestamp string) (string, error) {
	if err := required(username, uid, signature, timestamp); err != nil {
		return "", err
	}
	if err := s.checkTimestamp(ctx, timestamp); err != nil {
		return "", err
	}

	userID, err := s.users.AuthenticateBySignature(ctx, username, timestamp, signature)
	if err != nil {
		s.log.Error(ctx, "user lookup failed", "username", username, "error", err)
		return "", internal(err)
	}
	if userID == "" {
		s.log.Warn(ctx, "user signature mismatch", "username", username)
		return "", common.ErrorUnauthorized
	}

	newKey, err := cryptox.RandomToken()
	if err != nil {
		return "", internal(err)
	}
	if !s.devices.RegisterOrRotate(ctx, uid, newKey, userID) {
		s.log.Error(ctx, "device registration failed", "uid", uid, "username", username)
		return "", internal(errors.New("device registration failed"))
	}

	// The device may have been claimed by another account between the
	// write and this read.
	owner, err := s.devices.GetOwningUserID(ctx, uid)
	if err != nil {
		return "", internal(err)
	}
	if owner != userID {
		s.log.Warn(ctx, "device owner mismatch after registration", "uid", uid, "username", username)
		return "", common.ErrorUnauthorized
	}

	key, err := s.devices.GetKey(ctx, uid)
	if err != nil {
		return "", internal(err)
	}
	hash, err := s.users.GetHashSaltedPassword(ctx, username)
	if err != nil {
		return "", internal(err)
	}
	if key == "" || hash == "" {
		return "", internal(errors.New("device key or password hash missing after registration"))
	}

	body, err := keyJSON(key)
	if err != nil {
		return "", internal(err)
	}
	out, err := cryptox.EncryptAndWrap(body, hash)
	if err != nil {
		return "", internal(err)
	}

	s.log.Info(ctx, "device key issued", "uid", uid, "username", username)
	return out, nil
}

// RegisterUser creates an account. It returns HintSuccess or HintError
// together with the outcome.
func (s *Service) RegisterUser(ctx context.Context, username, password, endpoint string) (string, error) {
	if err := required(username, password); err != nil {
		return HintError, err
	}
	if !cryptox.IsValidUsername(username) || !cryptox.IsValidPassword(password) {
		s.log.Warn(ctx, "registration with malformed credentials", "username", username)
		return HintError, fmt.Errorf("malformed username or password: %w", common.ErrorValidation)
	}

	// Register checks for an existing account itself and logs store errors.
	if !s.users.Register(ctx, username, password, endpoint) {
		s.log.Warn(ctx, "registration rejected", "username", username)
		return HintError, common.ErrorConflict
	}

	s.log.Info(ctx, "user registered", "username", username)
	return HintSuccess, nil
}
