package admin

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/gophtvm/internal/common"
	"github.com/dmitrijs2005/gophtvm/internal/logging"
	"github.com/dmitrijs2005/gophtvm/internal/server/devices"
	"github.com/dmitrijs2005/gophtvm/internal/server/store"
	"github.com/dmitrijs2005/gophtvm/internal/server/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*Service, *users.Directory, *devices.Directory) {
	t.Helper()
	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.CreateDomain(ctx, "U"))
	require.NoError(t, m.CreateDomain(ctx, "D"))
	u := users.NewDirectory(m, "U", "app", logging.Discard())
	d := devices.NewDirectory(m, "D", logging.Discard())
	return NewService(u, d), u, d
}

func TestAdminOperations(t *testing.T) {
	ctx := context.Background()
	s, u, d := newService(t)

	require.True(t, u.Register(ctx, "alice", "Secret1", "h"))
	require.True(t, u.Register(ctx, "bob", "Secret1", "h"))
	aliceID, err := u.GetUserID(ctx, "alice")
	require.NoError(t, err)
	require.True(t, d.RegisterOrRotate(ctx, "phone1", "k1", aliceID))
	require.True(t, d.RegisterOrRotate(ctx, "tablet", "k2", aliceID))

	names, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, names)

	n, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	view, err := s.DescribeUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, &UserView{Username: "alice", UserID: aliceID, Enabled: true, Devices: []string{"phone1", "tablet"}}, view)

	view, err = s.DescribeUser(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{}, view.Devices)

	_, err = s.DescribeUser(ctx, "ghost")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	devs, err := s.ListDevices(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"phone1", "tablet"}, devs)

	require.NoError(t, s.DeleteDevice(ctx, "tablet"))
	assert.ErrorIs(t, s.DeleteDevice(ctx, "tablet"), common.ErrorNotFound)

	nd, err := s.CountDevices(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, nd)

	require.NoError(t, s.DeleteUser(ctx, "bob"))
	assert.ErrorIs(t, s.DeleteUser(ctx, "bob"), common.ErrorNotFound)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Stats{UsersDomain: "U", DevicesDomain: "D", Users: 1, Devices: 1}, st)
}

func TestListUsersPage(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory().WithPageSize(2)
	require.NoError(t, m.CreateDomain(ctx, "U"))
	u := users.NewDirectory(m, "U", "app", logging.Discard())
	s := NewService(u, devices.NewDirectory(m, "D", logging.Discard()))
	for _, name := range []string{"alice", "bob", "carol"} {
		require.True(t, u.Register(ctx, name, "Secret1", "h"))
	}

	page, next, err := s.ListUsersPage(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, page)
	require.NotEmpty(t, next)

	page, next, err = s.ListUsersPage(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, page)
	assert.Empty(t, next)
}
