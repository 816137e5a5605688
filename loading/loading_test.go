package loading_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/saltyvip/turnstile/loading"
)

type stateRecorder struct {
	mu     sync.Mutex
	states []loading.State
}

func (r *stateRecorder) record(state loading.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *stateRecorder) snapshot() []loading.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]loading.State(nil), r.states...)
}

func TestStartStopLifecycle(t *testing.T) {
	manager := loading.NewManager()

	require.False(t, manager.IsLoading())

	manager.Start(loading.StartOptions{Type: loading.TypeLogin, Provider: "google", Message: "Signing in"})
	state := manager.State()
	require.True(t, state.Loading)
	require.Equal(t, loading.TypeLogin, state.Type)
	require.Equal(t, "google", state.Provider)
	require.Equal(t, "Signing in", state.Message)
	require.Zero(t, state.Progress)

	manager.Stop()
	require.False(t, manager.IsLoading())
	require.NotPanics(t, manager.Stop)
}

func TestStartDefaultsToGenericType(t *testing.T) {
	manager := loading.NewManager()
	manager.Start(loading.StartOptions{})
	require.Equal(t, loading.TypeGeneric, manager.State().Type)
}

func TestUpdatesAreNoOpsWhileIdle(t *testing.T) {
	manager := loading.NewManager()
	recorder := &stateRecorder{}
	manager.AddListener(recorder.record)

	manager.UpdateProgress(50)
	manager.UpdateMessage("hello")
	manager.UpdateType(loading.TypeRenewal)

	require.Empty(t, recorder.snapshot())
	require.False(t, manager.IsLoading())
}

func TestProgressClamping(t *testing.T) {
	manager := loading.NewManager()
	manager.Start(loading.StartOptions{})

	manager.UpdateProgress(150)
	require.Equal(t, 100, manager.State().Progress)

	manager.UpdateProgress(-10)
	require.Equal(t, 0, manager.State().Progress)
}

func TestListenersSeeEveryMutation(t *testing.T) {
	manager := loading.NewManager()
	recorder := &stateRecorder{}
	unsubscribe := manager.AddListener(recorder.record)

	manager.Start(loading.StartOptions{Type: loading.TypeLogin})
	manager.UpdateProgress(40)
	manager.Stop()

	states := recorder.snapshot()
	require.Len(t, states, 3)
	require.True(t, states[0].Loading)
	require.Equal(t, 40, states[1].Progress)
	require.False(t, states[2].Loading)

	unsubscribe()
	manager.Start(loading.StartOptions{})
	require.Len(t, recorder.snapshot(), 3)
}

func TestListenerPanicDoesNotBlockOthers(t *testing.T) {
	manager := loading.NewManager()
	recorder := &stateRecorder{}
	manager.AddListener(func(loading.State) { panic("listener boom") })
	manager.AddListener(recorder.record)

	require.NotPanics(t, func() {
		manager.Start(loading.StartOptions{})
	})
	require.Len(t, recorder.snapshot(), 1)
}

func TestTimeoutAutoStops(t *testing.T) {
	manager := loading.NewManager()
	manager.Start(loading.StartOptions{Timeout: 30 * time.Millisecond})

	require.True(t, manager.IsLoading())
	require.Eventually(t, func() bool {
		return !manager.IsLoading()
	}, time.Second, 5*time.Millisecond)
}

func TestDurationTracksClock(t *testing.T) {
	now := time.Now()
	manager := loading.NewManager(loading.WithNowTime(func() time.Time { return now }))

	require.Zero(t, manager.Duration())

	manager.Start(loading.StartOptions{})
	now = now.Add(3 * time.Second)
	require.Equal(t, 3*time.Second, manager.Duration())
}

func TestExecuteReturnsResultAndStops(t *testing.T) {
	manager := loading.NewManager()

	result, err := loading.Execute(context.Background(), manager, loading.ExecuteOptions{}, func(context.Context) (string, error) {
		require.True(t, manager.IsLoading())
		return "done", nil
	})

	require.NoError(t, err)
	require.Equal(t, "done", result)
	require.False(t, manager.IsLoading())
}

func TestExecuteEnforcesMinDuration(t *testing.T) {
	manager := loading.NewManager()
	started := time.Now()

	_, err := loading.Execute(context.Background(), manager, loading.ExecuteOptions{
		MinDuration: 60 * time.Millisecond,
	}, func(context.Context) (int, error) {
		return 1, nil
	})

	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(started), 60*time.Millisecond)
}

func TestExecuteMaxDurationTimesOut(t *testing.T) {
	manager := loading.NewManager()

	_, err := loading.Execute(context.Background(), manager, loading.ExecuteOptions{
		MaxDuration: 20 * time.Millisecond,
	}, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	require.ErrorIs(t, err, loading.ErrOperationTimeout)
	require.False(t, manager.IsLoading())
}

func TestExecuteErrorHandlerAndStopOnFailure(t *testing.T) {
	manager := loading.NewManager()
	boom := errors.New("exchange failed")
	var handled error

	_, err := loading.Execute(context.Background(), manager, loading.ExecuteOptions{
		ErrorHandler: func(e error) { handled = e },
	}, func(context.Context) (int, error) {
		return 0, boom
	})

	require.ErrorIs(t, err, boom)
	require.Equal(t, boom, handled)
	require.False(t, manager.IsLoading())
}

func TestWithThresholdSkipsFastOperations(t *testing.T) {
	manager := loading.NewManager()

	cancel := loading.WithThreshold(manager, 80*time.Millisecond, loading.StartOptions{})
	cancel()

	time.Sleep(120 * time.Millisecond)
	require.False(t, manager.IsLoading())
}

func TestWithThresholdShowsSlowOperations(t *testing.T) {
	manager := loading.NewManager()

	cancel := loading.WithThreshold(manager, 20*time.Millisecond, loading.StartOptions{})
	defer cancel()

	require.Eventually(t, manager.IsLoading, time.Second, 5*time.Millisecond)
}

func TestDebouncedCoalescesBursts(t *testing.T) {
	manager := loading.NewManager()
	recorder := &stateRecorder{}
	manager.AddListener(recorder.record)

	debounced := loading.NewDebounced(manager, 30*time.Millisecond)
	debounced.Start(loading.StartOptions{Message: "first"})
	debounced.Start(loading.StartOptions{Message: "second"})
	debounced.Start(loading.StartOptions{Message: "third"})

	require.Eventually(t, manager.IsLoading, time.Second, 5*time.Millisecond)
	require.Equal(t, "third", manager.State().Message)

	starts := 0
	for _, state := range recorder.snapshot() {
		if state.Loading {
			starts++
		}
	}
	require.Equal(t, 1, starts)

	debounced.Stop()
	require.False(t, manager.IsLoading())
}

func TestResetClearsListenersAndState(t *testing.T) {
	manager := loading.NewManager()
	recorder := &stateRecorder{}
	manager.AddListener(recorder.record)

	manager.Start(loading.StartOptions{})
	manager.Reset()

	require.False(t, manager.IsLoading())
	manager.Start(loading.StartOptions{})
	// Listener added before Reset is gone, only the pre-Reset start was seen.
	require.Len(t, recorder.snapshot(), 1)
}
