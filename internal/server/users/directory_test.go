package users

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dmitrijs2005/gophtvm/internal/common"
	"github.com/dmitrijs2005/gophtvm/internal/cryptox"
	"github.com/dmitrijs2005/gophtvm/internal/logging"
	"github.com/dmitrijs2005/gophtvm/internal/server/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	domain   = "TVM_app_USERS"
	app      = "app"
	endpoint = "tvm.example.com"
)

func newDir(t *testing.T) (*Directory, *store.Memory) {
	t.Helper()
	m := store.NewMemory()
	require.NoError(t, m.CreateDomain(context.Background(), domain))
	return NewDirectory(m, domain, app, logging.Discard()), m
}

// flakyStore fails selected operations on top of a memory store.
type flakyStore struct {
	*store.Memory
	getErr    error
	putErr    error
	dropWrite bool
}

func (f *flakyStore) GetAttributes(ctx context.Context, d, item string, c bool) (store.Attributes, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.Memory.GetAttributes(ctx, d, item, c)
}

func (f *flakyStore) PutAttributes(ctx context.Context, d, item string, a store.Attributes, r bool) error {
	if f.putErr != nil {
		return f.putErr
	}
	if f.dropWrite {
		return nil
	}
	return f.Memory.PutAttributes(ctx, d, item, a, r)
}

func TestRegister_ThenAuthenticate(t *testing.T) {
	ctx := context.Background()
	d, _ := newDir(t)

	require.True(t, d.Register(ctx, "alice", "Secret1", endpoint))

	ok, err := d.AuthenticateByPassword(ctx, "alice", "Secret1", endpoint)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.AuthenticateByPassword(ctx, "alice", "Secret1", "other.example.com")
	require.NoError(t, err)
	assert.False(t, ok, "salt includes the endpoint")

	ok, err = d.AuthenticateByPassword(ctx, "alice", "Secret2", endpoint)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = d.AuthenticateByPassword(ctx, "bob", "Secret1", endpoint)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegister_ManyValidPairs(t *testing.T) {
	ctx := context.Background()
	d, _ := newDir(t)

	pairs := [][2]string{
		{"abc", "123456"},
		{"user.name_1", "pässwörd with spaces"},
		{"X9", "too-short-name"},
		{"ok_user", "12345"},
	}
	for _, p := range pairs {
		valid := cryptox.IsValidUsername(p[0]) && cryptox.IsValidPassword(p[1])
		assert.Equal(t, valid, d.Register(ctx, p[0], p[1], endpoint), "pair %v", p)
		if valid {
			ok, err := d.AuthenticateByPassword(ctx, p[0], p[1], endpoint)
			require.NoError(t, err)
			assert.True(t, ok)
		}
	}
}

func TestRegister_RejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	d, _ := newDir(t)

	require.True(t, d.Register(ctx, "alice", "Secret1", endpoint))
	first, err := d.GetUserID(ctx, "alice")
	require.NoError(t, err)

	assert.False(t, d.Register(ctx, "alice", "Other99", endpoint))

	again, err := d.GetUserID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestRegister_AssignsDistinctUserIDs(t *testing.T) {
	ctx := context.Background()
	d, _ := newDir(t)

	require.True(t, d.Register(ctx, "alice", "Secret1", endpoint))
	require.True(t, d.Register(ctx, "bob", "Secret1", endpoint))

	a, err := d.Get(ctx, "alice")
	require.NoError(t, err)
	b, err := d.Get(ctx, "bob")
	require.NoError(t, err)

	assert.Len(t, a.UserID, 32)
	assert.NotEqual(t, a.UserID, b.UserID)
	assert.True(t, a.Enabled)
	assert.Equal(t, cryptox.SaltedPassword("alice", app, endpoint, "Secret1"), a.HashSaltedPassword)
}

func TestRegister_StoreFailuresReturnFalse(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.CreateDomain(ctx, domain))

	f := &flakyStore{Memory: m, getErr: errors.New("unreachable")}
	assert.False(t, NewDirectory(f, domain, app, logging.Discard()).Register(ctx, "alice", "Secret1", endpoint))

	f = &flakyStore{Memory: m, putErr: errors.New("throttled")}
	assert.False(t, NewDirectory(f, domain, app, logging.Discard()).Register(ctx, "alice", "Secret1", endpoint))

	f = &flakyStore{Memory: m, dropWrite: true}
	assert.False(t, NewDirectory(f, domain, app, logging.Discard()).Register(ctx, "alice", "Secret1", endpoint),
		"a write that cannot be read back is a failed registration")
}

func TestAuthenticateBySignature(t *testing.T) {
	ctx := context.Background()
	d, _ := newDir(t)
	require.True(t, d.Register(ctx, "alice", "Secret1", endpoint))

	hash := cryptox.SaltedPassword("alice", app, endpoint, "Secret1")
	ts := "2026-03-01T12:00:00.000Z"

	userID, err := d.AuthenticateBySignature(ctx, "alice", ts, cryptox.Sign(ts, hash))
	require.NoError(t, err)
	want, err := d.GetUserID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, want, userID)

	wrong := cryptox.SaltedPassword("alice", app, endpoint, "Wrong11")
	userID, err = d.AuthenticateBySignature(ctx, "alice", ts, cryptox.Sign(ts, wrong))
	require.NoError(t, err)
	assert.Empty(t, userID)

	userID, err = d.AuthenticateBySignature(ctx, "alice", "2026-03-01T12:00:01.000Z", cryptox.Sign(ts, hash))
	require.NoError(t, err)
	assert.Empty(t, userID)

	userID, err = d.AuthenticateBySignature(ctx, "nobody", ts, cryptox.Sign(ts, hash))
	require.NoError(t, err)
	assert.Empty(t, userID)

	userID, err = d.AuthenticateBySignature(ctx, "alice", ts, "")
	require.NoError(t, err)
	assert.Empty(t, userID)
}

func TestAuthenticateBySignature_StoreError(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.CreateDomain(ctx, domain))
	d := NewDirectory(&flakyStore{Memory: m, getErr: errors.New("down")}, domain, app, logging.Discard())

	_, err := d.AuthenticateBySignature(ctx, "alice", "ts", "sig")
	assert.Error(t, err)
}

func TestGet_NotFound(t *testing.T) {
	d, _ := newDir(t)
	_, err := d.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	hash, err := d.GetHashSaltedPassword(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Empty(t, hash)
}

func TestUsernameForUserID(t *testing.T) {
	ctx := context.Background()
	d, _ := newDir(t)
	require.True(t, d.Register(ctx, "alice", "Secret1", endpoint))
	require.True(t, d.Register(ctx, "bob", "Secret1", endpoint))

	id, err := d.GetUserID(ctx, "bob")
	require.NoError(t, err)

	name, err := d.UsernameForUserID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "bob", name)

	_, err = d.UsernameForUserID(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = d.UsernameForUserID(ctx, "")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestListCountDelete(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory().WithPageSize(2)
	require.NoError(t, m.CreateDomain(ctx, domain))
	d := NewDirectory(m, domain, app, logging.Discard())

	for i := 0; i < 5; i++ {
		require.True(t, d.Register(ctx, fmt.Sprintf("user%d", i), "Secret1", endpoint))
	}

	names, err := d.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"user0", "user1", "user2", "user3", "user4"}, names)

	page, next, err := d.ListPage(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"user0", "user1"}, page)
	page, _, err = d.ListPage(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, []string{"user2", "user3"}, page)

	n, err := d.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	require.NoError(t, d.Delete(ctx, "user2"))
	exists, err := d.Exists(ctx, "user2")
	require.NoError(t, err)
	assert.False(t, exists)

	n, err = d.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, domain, d.Domain())
}
