package runlock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"ncbot/pkg/logging"
)

// memRedis emulates SET NX and the compare-and-delete and extend scripts.
type memRedis struct {
	mu      sync.Mutex
	values  map[string]string
	extends int
	err     error
}

func newMemRedis() *memRedis {
	return &memRedis{values: map[string]string{}}
}

func (m *memRedis) SetNX(ctx context.Context, key string, value interface{}, _ time.Duration) *goredis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return goredis.NewBoolResult(false, m.err)
	}
	if _, ok := m.values[key]; ok {
		return goredis.NewBoolResult(false, nil)
	}
	m.values[key] = value.(string)
	return goredis.NewBoolResult(true, nil)
}

func (m *memRedis) script(sha string, keys []string, args []interface{}) *goredis.Cmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values[keys[0]] != args[0].(string) {
		return goredis.NewCmdResult(int64(0), nil)
	}
	switch sha {
	case releaseScript.Hash():
		delete(m.values, keys[0])
	case extendScript.Hash():
		m.extends++
	}
	return goredis.NewCmdResult(int64(1), nil)
}

func (m *memRedis) extendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.extends
}

func (m *memRedis) set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

func (m *memRedis) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *goredis.Cmd {
	return m.script(goredis.NewScript(script).Hash(), keys, args)
}

func (m *memRedis) EvalSha(_ context.Context, sha string, keys []string, args ...interface{}) *goredis.Cmd {
	return m.script(sha, keys, args)
}

func (m *memRedis) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *goredis.Cmd {
	return m.Eval(ctx, script, keys, args...)
}

func (m *memRedis) EvalShaRO(ctx context.Context, sha string, keys []string, args ...interface{}) *goredis.Cmd {
	return m.EvalSha(ctx, sha, keys, args...)
}

func (m *memRedis) ScriptExists(_ context.Context, hashes ...string) *goredis.BoolSliceCmd {
	return goredis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (m *memRedis) ScriptLoad(_ context.Context, _ string) *goredis.StringCmd {
	return goredis.NewStringResult("sha", nil)
}

func TestAcquireAndRelease(t *testing.T) {
	rdb := newMemRedis()
	l := New(rdb, "", time.Minute, logging.NewDiscardLogger())

	lease, err := l.Acquire(context.Background())
	require.NoError(t, err)
	require.Contains(t, rdb.values, DefaultKey)

	_, err = l.Acquire(context.Background())
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, lease.Release(context.Background()))
	require.NotContains(t, rdb.values, DefaultKey)

	_, err = l.Acquire(context.Background())
	require.NoError(t, err)
}

func TestReleaseLeavesForeignLockAlone(t *testing.T) {
	rdb := newMemRedis()
	l := New(rdb, "k", time.Minute, logging.NewDiscardLogger())

	lease, err := l.Acquire(context.Background())
	require.NoError(t, err)

	// Simulate expiry followed by another holder.
	rdb.values["k"] = "someone-else"

	require.NoError(t, lease.Release(context.Background()))
	require.Equal(t, "someone-else", rdb.values["k"])
}

func TestDoHoldsLockForCallback(t *testing.T) {
	rdb := newMemRedis()
	l := New(rdb, "k", time.Minute, logging.NewDiscardLogger())

	boom := errors.New("boom")
	err := l.Do(context.Background(), func(ctx context.Context) error {
		require.Contains(t, rdb.values, "k")
		require.ErrorIs(t, l.Do(ctx, func(context.Context) error { return nil }), ErrLocked)
		return boom
	})

	require.ErrorIs(t, err, boom)
	require.NotContains(t, rdb.values, "k")
}

func TestAcquireRedisError(t *testing.T) {
	rdb := newMemRedis()
	rdb.err = errors.New("dial tcp: connection refused")
	l := New(rdb, "k", time.Minute, logging.NewDiscardLogger())

	_, err := l.Acquire(context.Background())
	require.ErrorContains(t, err, "connection refused")
	require.NotErrorIs(t, err, ErrLocked)
}

func TestDoExtendsLeaseDuringLongRun(t *testing.T) {
	rdb := newMemRedis()
	l := New(rdb, "k", 30*time.Millisecond, logging.NewDiscardLogger())

	err := l.Do(context.Background(), func(context.Context) error {
		require.Eventually(t, func() bool { return rdb.extendCount() >= 3 }, time.Second, 5*time.Millisecond)
		return nil
	})

	require.NoError(t, err)
	require.NotContains(t, rdb.values, "k")
	settled := rdb.extendCount()
	time.Sleep(40 * time.Millisecond)
	require.Equal(t, settled, rdb.extendCount(), "renewal must stop once the run returns")
}

func TestExtendReportsLostLease(t *testing.T) {
	rdb := newMemRedis()
	l := New(rdb, "k", time.Minute, logging.NewDiscardLogger())

	lease, err := l.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, lease.Extend(context.Background()))

	rdb.set("k", "someone-else")
	require.ErrorIs(t, lease.Extend(context.Background()), ErrLeaseLost)
}
