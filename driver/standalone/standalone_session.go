// Package standalone implements a Session bound to exactly one Scheduler.
// It owns no process state: it is the validation, app-id bookkeeping and
// delegation layer between a caller and a backend.
package standalone

import (
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tsmdev/tsm/driver"
)

// DefaultWaitInterval is the polling interval for Wait when none is given.
const DefaultWaitInterval = 1 * time.Second

var errNotTerminal = errors.New("app has not reached a terminal state")

// StandaloneSession tracks the apps it ran or attached to in a local cache
// keyed by app id. The cache is guarded so concurrent Status/List calls never
// observe a half-inserted record while a Run is in progress elsewhere.
type StandaloneSession struct {
	name         string
	scheduler    driver.Scheduler
	waitInterval time.Duration

	cache *appCache
}

var _ driver.Session = (*StandaloneSession)(nil)

// NewStandaloneSession creates a session delegating to scheduler and polling
// Wait every waitInterval (DefaultWaitInterval if non-positive).
func NewStandaloneSession(name string, scheduler driver.Scheduler, waitInterval time.Duration) *StandaloneSession {
	if waitInterval <= 0 {
		waitInterval = DefaultWaitInterval
	}
	return &StandaloneSession{
		name:         name,
		scheduler:    scheduler,
		waitInterval: waitInterval,
		cache:        newAppCache(),
	}
}

func (s *StandaloneSession) Name() string {
	return s.name
}

// Run validates the app, submits it and records the returned app id.
// Attached applications are rejected before validation: they are handles to
// work that is already running, not submittable descriptions.
func (s *StandaloneSession) Run(app *driver.Application, mode driver.RunMode) (string, error) {
	if app.Attached {
		return "", &driver.AppNotReRunnableError{AppID: app.Name}
	}
	if err := driver.ValidateApp(app); err != nil {
		return "", err
	}

	appID, err := s.scheduler.Submit(app, mode)
	if err != nil {
		return "", err
	}
	s.cache.put(appID, app)

	log.WithFields(
		log.Fields{
			"session": s.name,
			"appID":   appID,
			"app":     app.Name,
			"mode":    mode,
		}).Info("Ran app")
	return appID, nil
}

// Status returns the backend's current view of the app. If the backend has
// evicted the id, the session drops it from its own cache and fails with
// *UnknownAppError immediately (the stricter of the two defensible
// behaviors; no last cached status is served).
func (s *StandaloneSession) Status(appID string) (*driver.AppStatus, error) {
	if _, ok := s.cache.get(appID); !ok {
		return nil, &driver.UnknownAppError{AppID: appID}
	}
	resp, err := s.scheduler.Describe(appID)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		s.cache.remove(appID)
		log.WithFields(
			log.Fields{
				"session": s.name,
				"appID":   appID,
			}).Info("Backend evicted app, dropping from session cache")
		return nil, &driver.UnknownAppError{AppID: appID}
	}
	return &driver.AppStatus{State: resp.State, UIURL: resp.UIURL}, nil
}

// Wait blocks until the app reaches a terminal state and returns it, polling
// Status at the session's wait interval. Staleness is bounded by one
// interval.
func (s *StandaloneSession) Wait(appID string) (*driver.AppStatus, error) {
	var status *driver.AppStatus
	poll := func() error {
		st, err := s.Status(appID)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !st.IsTerminal() {
			return errNotTerminal
		}
		status = st
		return nil
	}
	if err := backoff.Retry(poll, backoff.NewConstantBackOff(s.waitInterval)); err != nil {
		return nil, err
	}
	return status, nil
}

// Stop requests cancellation from the backend. A no-op if the app is already
// terminal.
func (s *StandaloneSession) Stop(appID string) error {
	if _, ok := s.cache.get(appID); !ok {
		return &driver.UnknownAppError{AppID: appID}
	}
	return s.scheduler.Cancel(appID)
}

// List returns the session's tracked applications after pruning every id the
// backend no longer has a record of.
func (s *StandaloneSession) List() (map[string]*driver.Application, error) {
	ids, err := s.scheduler.List()
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	s.cache.prune(known)
	return s.cache.snapshot(), nil
}

// Attach reconstructs a read-only Application for an app id the backend
// knows about and tracks it under this session.
func (s *StandaloneSession) Attach(appID string) (*driver.Application, error) {
	resp, err := s.scheduler.Describe(appID)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, &driver.UnknownAppError{AppID: appID}
	}

	app := driver.NewApplication(appID)
	app.Attached = true
	for _, roleStatus := range resp.RoleStatuses {
		app.Of(driver.NewRole(roleStatus.Role))
	}
	s.cache.put(appID, app)

	log.WithFields(
		log.Fields{
			"session": s.name,
			"appID":   appID,
		}).Info("Attached to app")
	return app, nil
}
