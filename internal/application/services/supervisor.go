package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	apperrors "github.com/tenantcore/backend/pkg/errors"
)

// ServiceState is the lifecycle state of a supervised service
type ServiceState string

const (
	ServiceStopped ServiceState = "stopped"
	ServiceRunning ServiceState = "running"
	ServicePaused  ServiceState = "paused"
	ServiceFailed  ServiceState = "failed"
)

// Service is a named long-running worker ticked by the supervisor. Update is
// invoked once per interval while Running; Cleanup runs exactly once, last,
// when the service leaves its lifecycle.
type Service interface {
	Name() string
	Interval() time.Duration
	MaxFailures() int
	RetryDelay() time.Duration
	Update(ctx context.Context) error
	Cleanup(ctx context.Context) error
}

// CronSchedule is implemented by services that want calendar scheduling
// instead of a fixed interval. Specs use the standard 5-field cron format.
type CronSchedule interface {
	CronSpec() string
}

// supervised is the per-service runtime the supervisor owns
type supervised struct {
	svc Service

	mu       sync.Mutex
	state    ServiceState
	failures int
	paused   bool

	stopChan    chan struct{}
	pauseChan   chan bool
	done        chan struct{}
	cleanupOnce sync.Once
	cleanups    int
}

func (sv *supervised) setState(state ServiceState) {
	sv.mu.Lock()
	sv.state = state
	sv.mu.Unlock()
}

// State returns the current lifecycle state
func (sv *supervised) State() ServiceState {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.state
}

// Failures returns the consecutive failure count
func (sv *supervised) Failures() int {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.failures
}

// Supervisor holds services by name and drives their lifecycles. Each
// running service owns one goroutine ticking on its own timer; ticks run
// under the SYSTEM principal.
type Supervisor struct {
	ids  SystemIdentity
	cron *cron.Cron
	// base is the lifetime context of all service loops, independent of any
	// request that happens to start a service
	base context.Context

	mu       sync.RWMutex
	services map[string]*supervised
}

// NewSupervisor creates a new Supervisor
func NewSupervisor(ids SystemIdentity) *Supervisor {
	return &Supervisor{
		ids:      ids,
		cron:     cron.New(),
		base:     context.Background(),
		services: make(map[string]*supervised),
	}
}

// SystemPrincipal returns the principal id service ticks run under
func (s *Supervisor) SystemPrincipal() string {
	return s.ids.SystemID
}

// Register adds a service in the Stopped state
func (s *Supervisor) Register(svc Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.services[svc.Name()]; exists {
		return apperrors.NewConflictError("service", "name", svc.Name())
	}
	s.services[svc.Name()] = &supervised{svc: svc, state: ServiceStopped}
	return nil
}

func (s *Supervisor) get(name string) (*supervised, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sv, ok := s.services[name]
	if !ok {
		return nil, apperrors.NewNotFoundError("service", name)
	}
	return sv, nil
}

// State reports a service's lifecycle state
func (s *Supervisor) State(name string) (ServiceState, error) {
	sv, err := s.get(name)
	if err != nil {
		return "", err
	}
	return sv.State(), nil
}

// Start transitions Stopped -> Running and launches the tick loop
func (s *Supervisor) Start(name string) error {
	sv, err := s.get(name)
	if err != nil {
		return err
	}

	sv.mu.Lock()
	if sv.state != ServiceStopped {
		sv.mu.Unlock()
		return apperrors.NewPreconditionError(fmt.Sprintf("service %s is %s, not stopped", name, sv.state))
	}
	sv.state = ServiceRunning
	sv.failures = 0
	sv.paused = false
	sv.stopChan = make(chan struct{})
	sv.pauseChan = make(chan bool, 1)
	sv.done = make(chan struct{})
	sv.cleanupOnce = sync.Once{}
	sv.mu.Unlock()

	if cs, ok := sv.svc.(CronSchedule); ok {
		return s.startCron(sv, cs.CronSpec())
	}

	go s.run(s.base, sv)
	log.Printf("⏰ Service %s started (interval %s)", name, sv.svc.Interval())
	return nil
}

// startCron schedules ticks through the shared cron runner instead of a
// per-service ticker
func (s *Supervisor) startCron(sv *supervised, spec string) error {
	entryID, err := s.cron.AddFunc(spec, func() {
		if sv.State() != ServiceRunning {
			return
		}
		s.tick(s.base, sv)
	})
	if err != nil {
		sv.setState(ServiceStopped)
		return apperrors.NewPreconditionError(fmt.Sprintf("service %s has an invalid cron spec %q: %v", sv.svc.Name(), spec, err))
	}
	go func() {
		<-sv.stopChan
		s.cron.Remove(entryID)
		s.finish(s.base, sv)
		close(sv.done)
	}()
	s.cron.Start()
	log.Printf("⏰ Service %s scheduled (cron %q)", sv.svc.Name(), spec)
	return nil
}

// run is the per-service loop: tick on the interval while Running, skip
// while Paused, stop on request or when failures reach the threshold
func (s *Supervisor) run(ctx context.Context, sv *supervised) {
	defer close(sv.done)

	interval := sv.svc.Interval()
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.finish(ctx, sv)
			return
		case <-sv.stopChan:
			s.finish(ctx, sv)
			return
		case paused := <-sv.pauseChan:
			sv.mu.Lock()
			sv.paused = paused
			if paused {
				sv.state = ServicePaused
			} else {
				sv.state = ServiceRunning
			}
			sv.mu.Unlock()
		case <-ticker.C:
			sv.mu.Lock()
			skip := sv.paused
			sv.mu.Unlock()
			if skip {
				continue
			}
			if stopped := s.tick(ctx, sv); stopped {
				s.finish(ctx, sv)
				return
			}
		}
	}
}

// tick invokes Update once. A success resets the failure counter; a failure
// increments it, waits the retry delay, and reports whether the threshold
// was crossed.
func (s *Supervisor) tick(ctx context.Context, sv *supervised) (stopped bool) {
	err := sv.svc.Update(ctx)
	if err == nil {
		sv.mu.Lock()
		sv.failures = 0
		sv.mu.Unlock()
		return false
	}

	sv.mu.Lock()
	sv.failures++
	failures := sv.failures
	sv.mu.Unlock()

	maxFailures := sv.svc.MaxFailures()
	if maxFailures <= 0 {
		maxFailures = 3
	}
	log.Printf("⚠️  Service %s update failed (%d/%d): %v", sv.svc.Name(), failures, maxFailures, err)

	if failures >= maxFailures {
		sv.setState(ServiceFailed)
		log.Printf("❌ Service %s exceeded max failures, stopping", sv.svc.Name())
		return true
	}

	delay := sv.svc.RetryDelay()
	if delay <= 0 {
		delay = 5 * time.Second
	}
	select {
	case <-time.After(delay):
	case <-sv.stopChan:
		return true
	case <-ctx.Done():
		return true
	}
	return false
}

// finish runs cleanup exactly once and parks the service in Stopped
func (s *Supervisor) finish(ctx context.Context, sv *supervised) {
	sv.cleanupOnce.Do(func() {
		sv.mu.Lock()
		sv.cleanups++
		sv.mu.Unlock()
		if err := sv.svc.Cleanup(ctx); err != nil {
			log.Printf("⚠️  Service %s cleanup failed: %v", sv.svc.Name(), err)
		}
	})
	sv.setState(ServiceStopped)
}

// Stop gracefully stops a running or paused service
func (s *Supervisor) Stop(name string) error {
	sv, err := s.get(name)
	if err != nil {
		return err
	}
	sv.mu.Lock()
	if sv.state != ServiceRunning && sv.state != ServicePaused {
		sv.mu.Unlock()
		return apperrors.NewPreconditionError(fmt.Sprintf("service %s is %s", name, sv.state))
	}
	stopChan := sv.stopChan
	done := sv.done
	sv.mu.Unlock()

	close(stopChan)
	<-done
	log.Printf("⏰ Service %s stopped", name)
	return nil
}

// Pause suspends ticking without stopping the loop
func (s *Supervisor) Pause(name string) error {
	return s.setPaused(name, true)
}

// Resume transitions Paused -> Running
func (s *Supervisor) Resume(name string) error {
	return s.setPaused(name, false)
}

func (s *Supervisor) setPaused(name string, paused bool) error {
	sv, err := s.get(name)
	if err != nil {
		return err
	}
	sv.mu.Lock()
	state := sv.state
	sv.mu.Unlock()

	if paused && state != ServiceRunning {
		return apperrors.NewPreconditionError(fmt.Sprintf("service %s is %s, not running", name, state))
	}
	if !paused && state != ServicePaused {
		return apperrors.NewPreconditionError(fmt.Sprintf("service %s is %s, not paused", name, state))
	}

	// Cron services hold no loop goroutine; flip the state directly
	if _, ok := sv.svc.(CronSchedule); ok {
		if paused {
			sv.setState(ServicePaused)
		} else {
			sv.setState(ServiceRunning)
		}
		return nil
	}

	sv.pauseChan <- paused
	return nil
}

// names returns registered service names sorted for deterministic iteration
func (s *Supervisor) names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.services))
	for name := range s.services {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ServiceStatus is one supervised service's observable state
type ServiceStatus struct {
	Name     string       `json:"name"`
	State    ServiceState `json:"state"`
	Failures int          `json:"failures"`
}

// Statuses reports every registered service, name-sorted
func (s *Supervisor) Statuses() []ServiceStatus {
	names := s.names()
	out := make([]ServiceStatus, 0, len(names))
	for _, name := range names {
		sv, err := s.get(name)
		if err != nil {
			continue
		}
		out = append(out, ServiceStatus{Name: name, State: sv.State(), Failures: sv.Failures()})
	}
	return out
}

// StartAll starts every stopped service
func (s *Supervisor) StartAll() {
	for _, name := range s.names() {
		if state, _ := s.State(name); state != ServiceStopped {
			continue
		}
		if err := s.Start(name); err != nil {
			log.Printf("⚠️  Failed to start service %s: %v", name, err)
		}
	}
}

// StopAll stops every running or paused service
func (s *Supervisor) StopAll() {
	for _, name := range s.names() {
		state, _ := s.State(name)
		if state != ServiceRunning && state != ServicePaused {
			continue
		}
		if err := s.Stop(name); err != nil {
			log.Printf("⚠️  Failed to stop service %s: %v", name, err)
		}
	}
	s.cron.Stop()
}

// CleanupAll runs cleanup for services that never started or were already
// stopped without one; services stopped normally already cleaned up
func (s *Supervisor) CleanupAll(ctx context.Context) {
	s.mu.RLock()
	services := make([]*supervised, 0, len(s.services))
	for _, sv := range s.services {
		services = append(services, sv)
	}
	s.mu.RUnlock()

	for _, sv := range services {
		s.finish(ctx, sv)
	}
}
