// Package admin implements the operator operations over the identity
// directories. It backs both the admin command and the /admin HTTP API.
package admin

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophtvm/internal/server/devices"
	"github.com/dmitrijs2005/gophtvm/internal/server/users"
)

// UserView is what DescribeUser reports. The password hash is omitted.
type UserView struct {
	Username string   `json:"username"`
	UserID   string   `json:"userid"`
	Enabled  bool     `json:"enabled"`
	Devices  []string `json:"devices"`
}

// Stats are the domain sizes.
type Stats struct {
	UsersDomain   string `json:"usersDomain"`
	DevicesDomain string `json:"devicesDomain"`
	Users         int    `json:"users"`
	Devices       int    `json:"devices"`
}

type Service struct {
	users   *users.Directory
	devices *devices.Directory
}

func NewService(u *users.Directory, d *devices.Directory) *Service {
	return &Service{users: u, devices: d}
}

func (s *Service) ListUsers(ctx context.Context) ([]string, error) {
	return s.users.List(ctx)
}

// ListUsersPage returns one store page of usernames and the token for the
// next page, "" on the last one.
func (s *Service) ListUsersPage(ctx context.Context, next string) ([]string, string, error) {
	return s.users.ListPage(ctx, next)
}

func (s *Service) CountUsers(ctx context.Context) (int, error) {
	return s.users.Count(ctx)
}

// DescribeUser returns common.ErrorNotFound for unknown users.
func (s *Service) DescribeUser(ctx context.Context, username string) (*UserView, error) {
	u, err := s.users.Get(ctx, username)
	if err != nil {
		return nil, err
	}
	devs, err := s.devices.ListForUser(ctx, u.UserID)
	if err != nil {
		return nil, fmt.Errorf("list devices of %s: %w", username, err)
	}
	if devs == nil {
		devs = []string{}
	}
	return &UserView{Username: u.Username, UserID: u.UserID, Enabled: u.Enabled, Devices: devs}, nil
}

// DeleteUser removes the user item. Devices bound to the user are kept;
// they can no longer obtain tokens because their owner cannot be resolved.
func (s *Service) DeleteUser(ctx context.Context, username string) error {
	if _, err := s.users.Get(ctx, username); err != nil {
		return err
	}
	return s.users.Delete(ctx, username)
}

func (s *Service) ListDevices(ctx context.Context) ([]string, error) {
	return s.devices.List(ctx)
}

func (s *Service) CountDevices(ctx context.Context) (int, error) {
	return s.devices.Count(ctx)
}

// DeleteDevice returns common.ErrorNotFound for unknown devices.
func (s *Service) DeleteDevice(ctx context.Context, uid string) error {
	if _, err := s.devices.Get(ctx, uid); err != nil {
		return err
	}
	return s.devices.Delete(ctx, uid)
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	nu, err := s.users.Count(ctx)
	if err != nil {
		return nil, err
	}
	nd, err := s.devices.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		UsersDomain:   s.users.Domain(),
		DevicesDomain: s.devices.Domain(),
		Users:         nu,
		Devices:       nd,
	}, nil
}
