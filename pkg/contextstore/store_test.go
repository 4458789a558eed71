package contextstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/run-bigpig/plan-context/internal/testutil"
	"github.com/run-bigpig/plan-context/pkg/interfaces"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func project(id string) interfaces.ContextKey {
	return interfaces.ContextKey{ProjectID: id}
}

func session(projectID, sessionID string) interfaces.ContextKey {
	return interfaces.ContextKey{ProjectID: projectID, SessionID: sessionID}
}

func newTestStore(t *testing.T, options ...Option) (*Store, *testutil.Clock) {
	t.Helper()
	clock := testutil.NewClock(epoch)
	st, err := New(append([]Option{WithClock(clock.Now)}, options...)...)
	require.NoError(t, err)
	return st, clock
}

func TestNew_Defaults(t *testing.T) {
	st, err := New()
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, st.DefaultTimeout())
	assert.Equal(t, DefaultSweepInterval, st.SweepInterval())
	assert.Zero(t, st.Len())
}

func TestNew_RejectsNonPositiveDurations(t *testing.T) {
	_, err := New(WithDefaultTimeout(0))
	assert.ErrorIs(t, err, ErrInvalidTimeout)

	_, err = New(WithDefaultTimeout(-time.Second))
	assert.ErrorIs(t, err, ErrInvalidTimeout)

	_, err = New(WithSweepInterval(0))
	assert.Error(t, err)
}

func TestScenario_ExpiresAfterTimeout(t *testing.T) {
	ctx := context.Background()
	st, clock := newTestStore(t)

	require.NoError(t, st.Activate(ctx, "plan-7", project("proj-A"), interfaces.WithTimeout(1000*time.Millisecond)))

	ref, ok, err := st.Lookup(ctx, project("proj-A"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "plan-7", ref)

	clock.Advance(1100 * time.Millisecond)
	ref, ok, err = st.Lookup(ctx, project("proj-A"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, ref)

	// Lazy eviction removed the record
	assert.Zero(t, st.Len())
}

func TestScenario_SessionKeyDoesNotMatchProjectKey(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)

	require.NoError(t, st.Activate(ctx, "plan-1", session("proj-A", "sess-X")))

	_, ok, err := st.Lookup(ctx, project("proj-A"))
	require.NoError(t, err)
	assert.False(t, ok)

	ref, ok, err := st.Lookup(ctx, session("proj-A", "sess-X"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "plan-1", ref)
}

func TestScenario_ExtendResetsHorizon(t *testing.T) {
	ctx := context.Background()
	st, clock := newTestStore(t)

	require.NoError(t, st.Activate(ctx, "plan-2", project("proj-B"), interfaces.WithTimeout(500*time.Millisecond)))

	clock.Advance(100 * time.Millisecond)
	ok, err := st.Extend(ctx, project("proj-B"), interfaces.WithTimeout(500*time.Millisecond))
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(450 * time.Millisecond) // t=550ms, original expiry was t=500ms
	ref, ok, err := st.Lookup(ctx, project("proj-B"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "plan-2", ref)

	clock.Advance(100 * time.Millisecond) // t=650ms, past the extended expiry
	_, ok, err = st.Lookup(ctx, project("proj-B"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScenario_Clear(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)

	removed, err := st.Clear(ctx, project("proj-C"))
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, st.Activate(ctx, "plan-3", project("proj-C")))
	removed, err = st.Clear(ctx, project("proj-C"))
	require.NoError(t, err)
	assert.True(t, removed)

	_, ok, err := st.Lookup(ctx, project("proj-C"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLookup_ValidUntilExpiresAt(t *testing.T) {
	ctx := context.Background()
	st, clock := newTestStore(t, WithDefaultTimeout(time.Second))
	key := project("proj")

	require.NoError(t, st.Activate(ctx, "plan", key))

	clock.Advance(999 * time.Millisecond)
	_, ok, _ := st.Lookup(ctx, key)
	assert.True(t, ok)

	clock.Advance(time.Millisecond) // exactly at ExpiresAt
	_, ok, _ = st.Lookup(ctx, key)
	assert.True(t, ok)

	clock.Advance(time.Nanosecond)
	_, ok, _ = st.Lookup(ctx, key)
	assert.False(t, ok)
}

func TestLookup_DoesNotRenew(t *testing.T) {
	ctx := context.Background()
	st, clock := newTestStore(t, WithDefaultTimeout(time.Second))
	key := project("proj")

	require.NoError(t, st.Activate(ctx, "plan", key))
	before, ok, err := st.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	for i := 0; i < 5; i++ {
		clock.Advance(100 * time.Millisecond)
		_, ok, err := st.Lookup(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
	}

	after, ok, err := st.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, before.ExpiresAt, after.ExpiresAt)
}

func TestActivate_Overwrites(t *testing.T) {
	ctx := context.Background()
	st, clock := newTestStore(t)
	key := project("proj")

	require.NoError(t, st.Activate(ctx, "plan-old", key, interfaces.WithTimeout(time.Second)))
	clock.Advance(200 * time.Millisecond)
	require.NoError(t, st.Activate(ctx, "plan-new", key, interfaces.WithTimeout(time.Minute)))

	assert.Equal(t, 1, st.Len())
	got, ok, err := st.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "plan-new", got.ReferenceID)
	assert.Equal(t, epoch.Add(200*time.Millisecond), got.ActivatedAt)
	assert.Equal(t, epoch.Add(200*time.Millisecond+time.Minute), got.ExpiresAt)
}

func TestActivate_UsesDefaultTimeout(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, WithDefaultTimeout(42*time.Second))

	require.NoError(t, st.Activate(ctx, "plan", session("p", "s")))
	got, ok, err := st.Get(ctx, session("p", "s"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, epoch, got.ActivatedAt)
	assert.Equal(t, epoch.Add(42*time.Second), got.ExpiresAt)
	assert.Equal(t, "p", got.ProjectID)
	assert.Equal(t, "s", got.SessionID)
}

func TestActivate_InvalidInput(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)

	err := st.Activate(ctx, "", project("proj"))
	assert.ErrorIs(t, err, ErrInvalidReference)

	err = st.Activate(ctx, "plan", project(""))
	assert.ErrorIs(t, err, ErrInvalidKey)

	err = st.Activate(ctx, "plan", session("", "sess"))
	assert.ErrorIs(t, err, ErrInvalidKey)

	err = st.Activate(ctx, "plan", project("proj"), interfaces.WithTimeout(0))
	assert.ErrorIs(t, err, ErrInvalidTimeout)

	err = st.Activate(ctx, "plan", project("proj"), interfaces.WithTimeout(-time.Second))
	assert.ErrorIs(t, err, ErrInvalidTimeout)

	assert.Zero(t, st.Len())
}

func TestOperations_RejectEmptyProject(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)

	_, _, err := st.Lookup(ctx, project(""))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = st.Clear(ctx, project(""))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = st.Extend(ctx, project(""))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestKeys_AreStructured(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)

	// Would collide under a "project:session" string join
	require.NoError(t, st.Activate(ctx, "plan-joined", project("a:b")))
	require.NoError(t, st.Activate(ctx, "plan-split", session("a", "b")))

	ref, ok, _ := st.Lookup(ctx, project("a:b"))
	assert.True(t, ok)
	assert.Equal(t, "plan-joined", ref)

	ref, ok, _ = st.Lookup(ctx, session("a", "b"))
	assert.True(t, ok)
	assert.Equal(t, "plan-split", ref)
}

func TestKeys_IndependentExpiry(t *testing.T) {
	ctx := context.Background()
	st, clock := newTestStore(t)

	require.NoError(t, st.Activate(ctx, "plan-1", session("A", "S1"), interfaces.WithTimeout(time.Second)))
	require.NoError(t, st.Activate(ctx, "plan-2", session("A", "S2"), interfaces.WithTimeout(time.Minute)))

	clock.Advance(2 * time.Second)

	_, ok, _ := st.Lookup(ctx, session("A", "S1"))
	assert.False(t, ok)

	ref, ok, _ := st.Lookup(ctx, session("A", "S2"))
	assert.True(t, ok)
	assert.Equal(t, "plan-2", ref)
}

func TestExtend_Absent(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)

	ok, err := st.Extend(ctx, project("missing"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, st.Len())
}

func TestExtend_ResurrectsUnsweptContext(t *testing.T) {
	ctx := context.Background()
	st, clock := newTestStore(t)
	key := project("proj")

	require.NoError(t, st.Activate(ctx, "plan", key, interfaces.WithTimeout(time.Second)))
	clock.Advance(5 * time.Second)

	ok, err := st.Extend(ctx, key, interfaces.WithTimeout(time.Second))
	require.NoError(t, err)
	assert.True(t, ok)

	got, ok, err := st.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, epoch, got.ActivatedAt, "extend must not touch ActivatedAt")
	assert.Equal(t, epoch.Add(6*time.Second), got.ExpiresAt)
}

func TestExtend_InvalidTimeout(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)
	require.NoError(t, st.Activate(ctx, "plan", project("proj")))

	ok, err := st.Extend(ctx, project("proj"), interfaces.WithTimeout(0))
	assert.ErrorIs(t, err, ErrInvalidTimeout)
	assert.False(t, ok)
}

func TestClear_CountsExpiredUnswept(t *testing.T) {
	ctx := context.Background()
	st, clock := newTestStore(t)

	require.NoError(t, st.Activate(ctx, "plan", project("proj"), interfaces.WithTimeout(time.Second)))
	clock.Advance(time.Hour)

	removed, err := st.Clear(ctx, project("proj"))
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestListActive(t *testing.T) {
	ctx := context.Background()
	st, clock := newTestStore(t)

	require.NoError(t, st.Activate(ctx, "short", project("p1"), interfaces.WithTimeout(time.Second)))
	require.NoError(t, st.Activate(ctx, "long", session("p2", "s"), interfaces.WithTimeout(time.Hour)))
	clock.Advance(2 * time.Second)

	active, err := st.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, session("p2", "s"), active[0].Key)
	assert.Equal(t, "long", active[0].Context.ReferenceID)

	// The expired context was evicted as part of the listing
	assert.Equal(t, 1, st.Len())
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	st, clock := newTestStore(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, st.Activate(ctx, "plan", project(fmt.Sprintf("short-%d", i)), interfaces.WithTimeout(time.Second)))
	}
	require.NoError(t, st.Activate(ctx, "plan", project("long"), interfaces.WithTimeout(time.Hour)))

	n, err := st.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.Advance(2 * time.Second)
	n, err = st.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, st.Len())

	n, err = st.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "second sweep with no activity must remove nothing")
}

func TestSetDefaultTimeout(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)

	assert.ErrorIs(t, st.SetDefaultTimeout(0), ErrInvalidTimeout)
	require.NoError(t, st.SetDefaultTimeout(5*time.Second))

	require.NoError(t, st.Activate(ctx, "plan", project("proj")))
	got, ok, err := st.Get(ctx, project("proj"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, epoch.Add(5*time.Second), got.ExpiresAt)
}

func TestStartStop_BackgroundSweep(t *testing.T) {
	ctx := context.Background()
	st, err := New(WithDefaultTimeout(10*time.Millisecond), WithSweepInterval(5*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, st.Activate(ctx, "plan", project("proj")))

	st.Start(ctx)
	st.Start(ctx) // second Start is a no-op
	assert.True(t, st.Running())

	// No reads happen; only the sweep can remove the context
	require.Eventually(t, func() bool { return st.Len() == 0 }, 2*time.Second, 5*time.Millisecond)

	st.Stop()
	st.Stop()
	assert.False(t, st.Running())
}

func TestStop_WithoutStart(t *testing.T) {
	st, err := New()
	require.NoError(t, err)
	st.Stop()
	assert.False(t, st.Running())
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	st, err := New(WithDefaultTimeout(time.Millisecond), WithSweepInterval(time.Millisecond))
	require.NoError(t, err)
	st.Start(ctx)
	defer st.Stop()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			key := project(fmt.Sprintf("proj-%d", w%2))
			for i := 0; i < 200; i++ {
				ref := fmt.Sprintf("plan-%d-%d", w, i)
				assert.NoError(t, st.Activate(ctx, ref, key))
				if got, ok, err := st.Lookup(ctx, key); assert.NoError(t, err) && ok {
					assert.NotEmpty(t, got)
				}
				_, _ = st.Extend(ctx, key)
				_, _ = st.ListActive(ctx)
				_, _ = st.Clear(ctx, key)
			}
		}(w)
	}
	wg.Wait()
}
