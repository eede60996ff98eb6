// Package users is the user directory: registration and authentication of
// accounts kept in the users domain of the identity store.
package users

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/gophtvm/internal/common"
	"github.com/dmitrijs2005/gophtvm/internal/cryptox"
	"github.com/dmitrijs2005/gophtvm/internal/logging"
	"github.com/dmitrijs2005/gophtvm/internal/server/store"
)

type Directory struct {
	store   store.Store
	domain  string
	appName string
	log     logging.Logger
}

func NewDirectory(s store.Store, domain, appName string, log logging.Logger) *Directory {
	return &Directory{
		store:   s,
		domain:  domain,
		appName: appName,
		log:     log.With("module", "users"),
	}
}

// Domain is the identity domain this directory reads and writes.
func (d *Directory) Domain() string {
	return d.domain
}

// Exists reports whether username is already registered.
func (d *Directory) Exists(ctx context.Context, username string) (bool, error) {
	attrs, err := d.store.GetAttributes(ctx, d.domain, username, true)
	if err != nil {
		return false, err
	}
	return len(attrs) > 0, nil
}

// Register stores a new user and reads it back. It returns false when the
// username is malformed or taken, or when the stored record does not
// authenticate; store errors are logged and also reported as false.
func (d *Directory) Register(ctx context.Context, username, password, endpoint string) bool {
	if !cryptox.IsValidUsername(username) || !cryptox.IsValidPassword(password) {
		return false
	}

	exists, err := d.Exists(ctx, username)
	if err != nil {
		d.log.Error(ctx, "user lookup failed", "username", username, "error", err)
		return false
	}
	if exists {
		d.log.Info(ctx, "username already registered", "username", username)
		return false
	}

	userID, err := cryptox.RandomToken()
	if err != nil {
		d.log.Error(ctx, "userid generation failed", "error", err)
		return false
	}

	attrs := store.Attributes{
		AttrUserID:             userID,
		AttrHashSaltedPassword: cryptox.SaltedPassword(username, d.appName, endpoint, password),
		AttrEnabled:            "true",
	}
	if err := d.store.PutAttributes(ctx, d.domain, username, attrs, true); err != nil {
		d.log.Error(ctx, "user write failed", "username", username, "error", err)
		return false
	}

	ok, err := d.AuthenticateByPassword(ctx, username, password, endpoint)
	if err != nil {
		d.log.Error(ctx, "user read-back failed", "username", username, "error", err)
		return false
	}
	if !ok {
		d.log.Warn(ctx, "user read-back did not authenticate", "username", username)
	}
	return ok
}

// AuthenticateByPassword recomputes the salted hash for endpoint and
// compares it with the stored one.
func (d *Directory) AuthenticateByPassword(ctx context.Context, username, password, endpoint string) (bool, error) {
	stored, err := d.GetHashSaltedPassword(ctx, username)
	if err != nil || stored == "" {
		return false, err
	}
	return cryptox.ConstantTimeEquals(stored, cryptox.SaltedPassword(username, d.appName, endpoint, password)), nil
}

// AuthenticateBySignature checks signature against sign(timestamp, hash)
// and returns the user's id on a match. An unknown user or a mismatch
// yields "" with a nil error.
func (d *Directory) AuthenticateBySignature(ctx context.Context, username, timestamp, signature string) (string, error) {
	u, err := d.get(ctx, username)
	if err != nil || u == nil || u.HashSaltedPassword == "" {
		return "", err
	}
	if !cryptox.ConstantTimeEquals(cryptox.Sign(timestamp, u.HashSaltedPassword), signature) {
		return "", nil
	}
	return u.UserID, nil
}

// GetHashSaltedPassword returns "" for unknown users.
func (d *Directory) GetHashSaltedPassword(ctx context.Context, username string) (string, error) {
	u, err := d.get(ctx, username)
	if err != nil || u == nil {
		return "", err
	}
	return u.HashSaltedPassword, nil
}

// GetUserID returns "" for unknown users.
func (d *Directory) GetUserID(ctx context.Context, username string) (string, error) {
	u, err := d.get(ctx, username)
	if err != nil || u == nil {
		return "", err
	}
	return u.UserID, nil
}

// Get returns common.ErrorNotFound for unknown users.
func (d *Directory) Get(ctx context.Context, username string) (*User, error) {
	u, err := d.get(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

func (d *Directory) get(ctx context.Context, username string) (*User, error) {
	attrs, err := d.store.GetAttributes(ctx, d.domain, username, true)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", username, err)
	}
	if len(attrs) == 0 {
		return nil, nil
	}
	enabled, _ := strconv.ParseBool(attrs[AttrEnabled])
	return &User{
		Username:           username,
		UserID:             attrs[AttrUserID],
		HashSaltedPassword: attrs[AttrHashSaltedPassword],
		Enabled:            enabled,
	}, nil
}

// UsernameForUserID finds the user owning userID.
func (d *Directory) UsernameForUserID(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", common.ErrorNotFound
	}
	it, err := store.FindFirst(ctx, d.store, d.domain, store.Filter{Attribute: AttrUserID, Value: userID})
	if err != nil {
		return "", err
	}
	return it.Name, nil
}

func (d *Directory) Delete(ctx context.Context, username string) error {
	if err := d.store.DeleteAttributes(ctx, d.domain, username); err != nil {
		return fmt.Errorf("delete user %s: %w", username, err)
	}
	d.log.Info(ctx, "user deleted", "username", username)
	return nil
}

// ListPage returns one page of usernames and the token for the next one.
func (d *Directory) ListPage(ctx context.Context, nextToken string) ([]string, string, error) {
	page, err := d.store.Select(ctx, d.domain, store.Filter{}, nextToken)
	if err != nil {
		return nil, "", err
	}
	names := make([]string, 0, len(page.Items))
	for _, it := range page.Items {
		names = append(names, it.Name)
	}
	return names, page.NextToken, nil
}

// List returns every username.
func (d *Directory) List(ctx context.Context) ([]string, error) {
	return store.ItemNames(ctx, d.store, d.domain, store.Filter{})
}

func (d *Directory) Count(ctx context.Context) (int, error) {
	return store.CountItems(ctx, d.store, d.domain, store.Filter{})
}
