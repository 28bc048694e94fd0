package session_test

import (
	"sync"
	"testing"
	"time"

	"github.com/arashov/collabedit/internal/session"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CreateSession(t *testing.T) {
	t.Parallel()

	r := session.NewRegistry()

	s := r.CreateSession()
	require.NotEmpty(t, s.ID)
	require.Equal(t, session.Connecting, s.State)
}

func TestRegistry_Authenticate(t *testing.T) {
	t.Parallel()

	r := session.NewRegistry()
	s := r.CreateSession()

	require.NoError(t, r.Authenticate(s.ID, "alice"))

	got, err := r.GetSession(s.ID)
	require.NoError(t, err)
	require.Equal(t, session.Authenticated, got.State)
	require.Equal(t, "alice", got.Username)
}

func TestRegistry_Authenticate_UsernameTaken(t *testing.T) {
	t.Parallel()

	r := session.NewRegistry()
	a := r.CreateSession()
	b := r.CreateSession()

	require.NoError(t, r.Authenticate(a.ID, "alice"))
	require.ErrorIs(t, r.Authenticate(b.ID, "alice"), session.ErrUsernameTaken)
}

func TestRegistry_Authenticate_SameSessionReauthenticatesSameName(t *testing.T) {
	t.Parallel()

	r := session.NewRegistry()
	s := r.CreateSession()

	require.NoError(t, r.Authenticate(s.ID, "alice"))
	require.NoError(t, r.Authenticate(s.ID, "alice"))
}

func TestRegistry_Authenticate_UnknownSession(t *testing.T) {
	t.Parallel()

	r := session.NewRegistry()

	require.ErrorIs(t, r.Authenticate("nope", "alice"), session.ErrSessionNotFound)
}

func TestRegistry_GetByUsername(t *testing.T) {
	t.Parallel()

	r := session.NewRegistry()
	s := r.CreateSession()
	require.NoError(t, r.Authenticate(s.ID, "alice"))

	got, err := r.GetByUsername("alice")
	require.NoError(t, err)
	require.Equal(t, s.ID, got.ID)
}

func TestRegistry_CloseSession_ReleasesUsername(t *testing.T) {
	t.Parallel()

	r := session.NewRegistry()
	s := r.CreateSession()
	require.NoError(t, r.Authenticate(s.ID, "alice"))

	require.NoError(t, r.CloseSession(s.ID))
	require.True(t, r.IsUsernameAvailable("alice"))

	_, err := r.GetSession(s.ID)
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestRegistry_CloseSession_Unknown(t *testing.T) {
	t.Parallel()

	r := session.NewRegistry()

	require.ErrorIs(t, r.CloseSession("nope"), session.ErrSessionNotFound)
}

func TestRegistry_SubscribedUsers_OnlyAuthenticated(t *testing.T) {
	t.Parallel()

	r := session.NewRegistry()

	alice := r.CreateSession()
	require.NoError(t, r.Authenticate(alice.ID, "alice"))
	require.NoError(t, r.Subscribe(alice.ID, "doc1"))

	bob := r.CreateSession() // never authenticated
	require.NoError(t, r.Subscribe(bob.ID, "doc1"))

	users := r.SubscribedUsers("doc1")
	require.Equal(t, []string{"alice"}, users)
}

func TestRegistry_Unsubscribe(t *testing.T) {
	t.Parallel()

	r := session.NewRegistry()
	s := r.CreateSession()
	require.NoError(t, r.Authenticate(s.ID, "alice"))
	require.NoError(t, r.Subscribe(s.ID, "doc1"))
	require.NoError(t, r.Unsubscribe(s.ID, "doc1"))

	require.Empty(t, r.SubscribedUsers("doc1"))
}

func TestRegistry_CleanupIdle_ClosesStaleSessions(t *testing.T) {
	t.Parallel()

	r := session.NewRegistry()
	s := r.CreateSession()
	require.NoError(t, r.Authenticate(s.ID, "alice"))

	// A maxIdle of zero means "anything not active right now is idle": every
	// session's LastActivity is already <= now, so it is evicted.
	closed := r.CleanupIdle(0)
	require.Equal(t, 1, closed)

	_, err := r.GetSession(s.ID)
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestRegistry_CleanupIdle_SubSecondDuration(t *testing.T) {
	t.Parallel()

	r := session.NewRegistry()
	s := r.CreateSession()
	require.NoError(t, r.Authenticate(s.ID, "alice"))

	// A sub-second idle threshold must not be truncated to zero by integer
	// division before comparison (the bug the original's
	// cleanupIdleSessions(int maxIdleSeconds) signature had): truncated to
	// zero it would evict this just-authenticated session, as
	// CleanupIdle(0) does above; honored as 500ms it leaves it alone.
	closed := r.CleanupIdle(500 * time.Millisecond)
	require.Equal(t, 0, closed)
}

func TestRegistry_Touch_SparesFromCleanup(t *testing.T) {
	t.Parallel()

	r := session.NewRegistry()
	s := r.CreateSession()
	require.NoError(t, r.Authenticate(s.ID, "alice"))

	require.NoError(t, r.Touch(s.ID))

	// A session touched just now is not idle under any positive threshold.
	closed := r.CleanupIdle(time.Hour)
	require.Equal(t, 0, closed)

	_, err := r.GetSession(s.ID)
	require.NoError(t, err)
}

func TestRegistry_ConcurrentCreate(t *testing.T) {
	t.Parallel()

	r := session.NewRegistry()

	var wg sync.WaitGroup

	for range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			r.CreateSession()
		}()
	}

	wg.Wait()

	require.Equal(t, 20, r.SessionCount())
}
