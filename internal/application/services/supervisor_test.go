package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/tenantcore/backend/pkg/errors"
)

// tickingService counts ticks and cleanups; updateErr makes every tick fail
type tickingService struct {
	name        string
	interval    time.Duration
	maxFailures int
	updateErr   error

	ticks    atomic.Int64
	cleanups atomic.Int64
}

func (s *tickingService) Name() string { return s.name }
func (s *tickingService) Interval() time.Duration { return s.interval }
func (s *tickingService) MaxFailures() int { return s.maxFailures }
func (s *tickingService) RetryDelay() time.Duration { return time.Millisecond }

func (s *tickingService) Update(ctx context.Context) error {
	s.ticks.Add(1)
	return s.updateErr
}

func (s *tickingService) Cleanup(ctx context.Context) error {
	s.cleanups.Add(1)
	return nil
}

func testSupervisor() *Supervisor {
	return NewSupervisor(SystemIdentity{RootID: "r", SystemID: "s", TemplateID: "t"})
}

func waitForState(t *testing.T, sup *Supervisor, name string, want ServiceState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if state, _ := sup.State(name); state == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	state, _ := sup.State(name)
	t.Fatalf("service %s never reached %s, stuck at %s", name, want, state)
}

func TestSupervisorRegisterAndStatus(t *testing.T) {
	sup := testSupervisor()
	svc := &tickingService{name: "worker", interval: time.Hour}
	require.NoError(t, sup.Register(svc))

	err := sup.Register(&tickingService{name: "worker", interval: time.Hour})
	require.True(t, apperrors.IsConflict(err))

	statuses := sup.Statuses()
	require.Len(t, statuses, 1)
	require.Equal(t, "worker", statuses[0].Name)
	require.Equal(t, ServiceStopped, statuses[0].State)

	_, err = sup.State("ghost")
	require.True(t, apperrors.IsNotFound(err))
}

func TestSupervisorStartStopLifecycle(t *testing.T) {
	sup := testSupervisor()
	svc := &tickingService{name: "worker", interval: 5 * time.Millisecond}
	require.NoError(t, sup.Register(svc))

	require.NoError(t, sup.Start("worker"))
	state, _ := sup.State("worker")
	require.Equal(t, ServiceRunning, state)

	// A second start is a precondition failure
	err := sup.Start("worker")
	require.True(t, apperrors.IsPrecondition(err))

	deadline := time.Now().Add(2 * time.Second)
	for svc.ticks.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.GreaterOrEqual(t, svc.ticks.Load(), int64(2))

	require.NoError(t, sup.Stop("worker"))
	waitForState(t, sup, "worker", ServiceStopped)
	require.Equal(t, int64(1), svc.cleanups.Load())

	err = sup.Stop("worker")
	require.True(t, apperrors.IsPrecondition(err))
}

func TestSupervisorFailureThresholdStopsService(t *testing.T) {
	sup := testSupervisor()
	svc := &tickingService{
		name: "flaky", interval: 2 * time.Millisecond, maxFailures: 2,
		updateErr: errors.New("boom"),
	}
	require.NoError(t, sup.Register(svc))
	require.NoError(t, sup.Start("flaky"))

	// Failed is transient: the loop finishes by parking the service Stopped
	waitForState(t, sup, "flaky", ServiceStopped)
	require.Equal(t, int64(2), svc.ticks.Load())
	require.Equal(t, int64(1), svc.cleanups.Load())

	// CleanupAll after a normal finish must not run cleanup again
	sup.CleanupAll(context.Background())
	require.Equal(t, int64(1), svc.cleanups.Load())

	// A successful restart resets the failure counter
	svc.updateErr = nil
	require.NoError(t, sup.Start("flaky"))
	deadline := time.Now().Add(2 * time.Second)
	for svc.ticks.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	sv, err := sup.get("flaky")
	require.NoError(t, err)
	require.Equal(t, 0, sv.Failures())
	require.NoError(t, sup.Stop("flaky"))
}

func TestSupervisorSuccessResetsFailureCount(t *testing.T) {
	sup := testSupervisor()
	svc := &tickingService{name: "worker", interval: 2 * time.Millisecond, maxFailures: 10, updateErr: errors.New("boom")}
	require.NoError(t, sup.Register(svc))
	require.NoError(t, sup.Start("worker"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sv, _ := sup.get("worker"); sv.Failures() >= 2 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	svc.updateErr = nil
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sv, _ := sup.get("worker"); sv.Failures() == 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	sv, _ := sup.get("worker")
	require.Equal(t, 0, sv.Failures())
	require.NoError(t, sup.Stop("worker"))
}

func TestSupervisorPauseSkipsTicks(t *testing.T) {
	sup := testSupervisor()
	svc := &tickingService{name: "worker", interval: 5 * time.Millisecond}
	require.NoError(t, sup.Register(svc))

	// Pausing a stopped service is a precondition failure
	err := sup.Pause("worker")
	require.True(t, apperrors.IsPrecondition(err))

	require.NoError(t, sup.Start("worker"))
	require.NoError(t, sup.Pause("worker"))
	waitForState(t, sup, "worker", ServicePaused)

	err = sup.Resume("ghost")
	require.True(t, apperrors.IsNotFound(err))

	// While paused the tick counter stays flat (allow one in-flight tick)
	before := svc.ticks.Load()
	time.Sleep(50 * time.Millisecond)
	require.LessOrEqual(t, svc.ticks.Load(), before+1)

	require.NoError(t, sup.Resume("worker"))
	waitForState(t, sup, "worker", ServiceRunning)
	deadline := time.Now().Add(2 * time.Second)
	for svc.ticks.Load() <= before && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Greater(t, svc.ticks.Load(), before)

	// Stopping from Paused also works
	require.NoError(t, sup.Pause("worker"))
	waitForState(t, sup, "worker", ServicePaused)
	require.NoError(t, sup.Stop("worker"))
	waitForState(t, sup, "worker", ServiceStopped)
}

func TestSupervisorStartAllStopAll(t *testing.T) {
	sup := testSupervisor()
	a := &tickingService{name: "a", interval: time.Hour}
	b := &tickingService{name: "b", interval: time.Hour}
	require.NoError(t, sup.Register(a))
	require.NoError(t, sup.Register(b))

	sup.StartAll()
	for _, st := range sup.Statuses() {
		require.Equal(t, ServiceRunning, st.State)
	}

	sup.StopAll()
	for _, st := range sup.Statuses() {
		require.Equal(t, ServiceStopped, st.State)
	}
	require.Equal(t, int64(1), a.cleanups.Load())
	require.Equal(t, int64(1), b.cleanups.Load())
}

func TestSupervisorCleanupAllCoversNeverStarted(t *testing.T) {
	sup := testSupervisor()
	svc := &tickingService{name: "idle", interval: time.Hour}
	require.NoError(t, sup.Register(svc))

	sup.CleanupAll(context.Background())
	require.Equal(t, int64(1), svc.cleanups.Load())
	sup.CleanupAll(context.Background())
	require.Equal(t, int64(1), svc.cleanups.Load())
}

// cronService runs on a cron spec instead of an interval
type cronService struct {
	tickingService
	spec string
}

func (s *cronService) CronSpec() string { return s.spec }

func TestSupervisorInvalidCronSpec(t *testing.T) {
	sup := testSupervisor()
	svc := &cronService{tickingService: tickingService{name: "cronjob", interval: time.Hour}, spec: "not a spec"}
	require.NoError(t, sup.Register(svc))

	err := sup.Start("cronjob")
	require.True(t, apperrors.IsPrecondition(err))
	state, _ := sup.State("cronjob")
	require.Equal(t, ServiceStopped, state)
}

func TestSupervisorCronLifecycle(t *testing.T) {
	sup := testSupervisor()
	svc := &cronService{tickingService: tickingService{name: "cronjob", interval: time.Hour}, spec: "0 3 * * *"}
	require.NoError(t, sup.Register(svc))

	require.NoError(t, sup.Start("cronjob"))
	state, _ := sup.State("cronjob")
	require.Equal(t, ServiceRunning, state)

	// Cron services pause by state flip
	require.NoError(t, sup.Pause("cronjob"))
	state, _ = sup.State("cronjob")
	require.Equal(t, ServicePaused, state)
	require.NoError(t, sup.Resume("cronjob"))

	require.NoError(t, sup.Stop("cronjob"))
	waitForState(t, sup, "cronjob", ServiceStopped)
	require.Equal(t, int64(1), svc.cleanups.Load())
}
