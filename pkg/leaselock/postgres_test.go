package leaselock

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDB evaluates the three lease statements against a map.
type fakeDB struct {
	mu    sync.Mutex
	locks map[string]string
}

func newFakeDB() *fakeDB { return &fakeDB{locks: make(map[string]string)} }

type fakeRow struct {
	key string
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.key
	return nil
}

func (db *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	db.mu.Lock()
	defer db.mu.Unlock()
	key, token := args[0].(string), args[1].(string)
	holder, held := db.locks[key]

	switch sql {
	case tryAcquireSQL:
		if held && holder != token {
			return fakeRow{err: pgx.ErrNoRows}
		}
		db.locks[key] = token
		return fakeRow{key: key}
	case renewSQL:
		if !held || holder != token {
			return fakeRow{err: pgx.ErrNoRows}
		}
		return fakeRow{key: key}
	}
	return fakeRow{err: pgx.ErrNoRows}
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if sql == releaseSQL && db.locks[args[0].(string)] == args[1].(string) {
		delete(db.locks, args[0].(string))
	}
	return pgconn.CommandTag{}, nil
}

func (db *fakeDB) steal(key string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.locks[key] = "someone-else"
}

func (db *fakeDB) holder(key string) string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.locks[key]
}

func TestClient_AcquireAndRelease(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	c := New(db, Options{TokenPrefix: "w1:"})

	lease, err := c.Acquire(ctx, "graph:g:sync", c.defaults)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(lease.Token, "w1:"))
	assert.Equal(t, lease.Token, db.holder("graph:g:sync"))

	_, err = c.Acquire(ctx, "graph:g:sync", c.defaults)
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, lease.Release(ctx))
	assert.Empty(t, db.holder("graph:g:sync"))
	assert.Error(t, lease.Context.Err())

	_, err = c.Acquire(ctx, "", c.defaults)
	assert.Error(t, err)
}

func TestClient_WithLeaseReleases(t *testing.T) {
	db := newFakeDB()
	c := New(db, Options{})

	ran := false
	err := c.WithLease(context.Background(), "k", func(ctx context.Context) error {
		ran = true
		assert.NotEmpty(t, db.holder("k"))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Empty(t, db.holder("k"))
}

func TestClient_WithLeaseReportsLostLease(t *testing.T) {
	db := newFakeDB()
	c := New(db, Options{TTL: time.Second, RenewEvery: 10 * time.Millisecond})

	err := c.WithLease(context.Background(), "k", func(ctx context.Context) error {
		db.steal("k")
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, ErrLost)
	assert.Equal(t, "someone-else", db.holder("k"))
}
