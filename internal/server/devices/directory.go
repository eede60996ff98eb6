// Package devices is the device directory: per-device encryption keys and
// the user each device is bound to.
package devices

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophtvm/internal/common"
	"github.com/dmitrijs2005/gophtvm/internal/logging"
	"github.com/dmitrijs2005/gophtvm/internal/server/store"
)

type Directory struct {
	store  store.Store
	domain string
	log    logging.Logger
}

func NewDirectory(s store.Store, domain string, log logging.Logger) *Directory {
	return &Directory{store: s, domain: domain, log: log.With("module", "devices")}
}

func (d *Directory) Domain() string {
	return d.domain
}

// RegisterOrRotate binds uid to userID with a new key. A device already
// bound to a different user is left untouched and false is returned. The
// write is verified with a consistent read; store errors and a failed
// read-back are logged and reported as false.
func (d *Directory) RegisterOrRotate(ctx context.Context, uid, key, userID string) bool {
	owner, err := d.GetOwningUserID(ctx, uid)
	if err != nil {
		d.log.Error(ctx, "device lookup failed", "uid", uid, "error", err)
		return false
	}
	if owner != "" && owner != userID {
		d.log.Warn(ctx, "device bound to another user", "uid", uid)
		return false
	}

	attrs := store.Attributes{AttrKey: key, AttrUserID: userID}
	if err := d.store.PutAttributes(ctx, d.domain, uid, attrs, true); err != nil {
		d.log.Error(ctx, "device write failed", "uid", uid, "error", err)
		return false
	}

	ok, err := d.Authenticate(ctx, uid, key)
	if err != nil {
		d.log.Error(ctx, "device read-back failed", "uid", uid, "error", err)
		return false
	}
	if !ok {
		d.log.Warn(ctx, "device read-back did not match", "uid", uid)
		return false
	}

	if owner == "" {
		d.log.Info(ctx, "device registered", "uid", uid)
	} else {
		d.log.Debug(ctx, "device key rotated", "uid", uid)
	}
	return true
}

// Authenticate compares key with the stored one. Only called with keys
// the server generated itself, so a plain comparison is used.
func (d *Directory) Authenticate(ctx context.Context, uid, key string) (bool, error) {
	stored, err := d.GetKey(ctx, uid)
	if err != nil {
		return false, err
	}
	return stored != "" && stored == key, nil
}

// GetKey returns "" for unknown devices.
func (d *Directory) GetKey(ctx context.Context, uid string) (string, error) {
	dev, err := d.get(ctx, uid)
	if err != nil || dev == nil {
		return "", err
	}
	return dev.Key, nil
}

// GetOwningUserID returns "" for unknown devices.
func (d *Directory) GetOwningUserID(ctx context.Context, uid string) (string, error) {
	dev, err := d.get(ctx, uid)
	if err != nil || dev == nil {
		return "", err
	}
	return dev.UserID, nil
}

// Get returns common.ErrorNotFound for unknown devices.
func (d *Directory) Get(ctx context.Context, uid string) (*Device, error) {
	dev, err := d.get(ctx, uid)
	if err != nil {
		return nil, err
	}
	if dev == nil {
		return nil, common.ErrorNotFound
	}
	return dev, nil
}

func (d *Directory) get(ctx context.Context, uid string) (*Device, error) {
	attrs, err := d.store.GetAttributes(ctx, d.domain, uid, true)
	if err != nil {
		return nil, fmt.Errorf("get device %s: %w", uid, err)
	}
	if len(attrs) == 0 {
		return nil, nil
	}
	return &Device{UID: uid, Key: attrs[AttrKey], UserID: attrs[AttrUserID]}, nil
}

func (d *Directory) Delete(ctx context.Context, uid string) error {
	if err := d.store.DeleteAttributes(ctx, d.domain, uid); err != nil {
		return fmt.Errorf("delete device %s: %w", uid, err)
	}
	d.log.Info(ctx, "device deleted", "uid", uid)
	return nil
}

// List returns every device uid.
func (d *Directory) List(ctx context.Context) ([]string, error) {
	return store.ItemNames(ctx, d.store, d.domain, store.Filter{})
}

// ListForUser returns the uids bound to userID.
func (d *Directory) ListForUser(ctx context.Context, userID string) ([]string, error) {
	return store.ItemNames(ctx, d.store, d.domain, store.Filter{Attribute: AttrUserID, Value: userID})
}

func (d *Directory) Count(ctx context.Context) (int, error) {
	return store.CountItems(ctx, d.store, d.domain, store.Filter{})
}
