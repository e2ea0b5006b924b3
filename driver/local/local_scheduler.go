// Package local implements the reference Scheduler backend: every role
// replica of a submitted application runs as a local OS process. App records
// live in an insertion-ordered cache bounded by cacheSize; evicting a record
// never kills live work, it only makes the app's status unknowable.
package local

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/nu7hatch/gouuid"
	log "github.com/sirupsen/logrus"

	"github.com/tsmdev/tsm/common/stats"
	"github.com/tsmdev/tsm/driver"
)

// NoCacheLimit disables app-record eviction.
const NoCacheLimit = 0

type roleRun struct {
	name  string
	procs []*process
}

// appRecord tracks one submitted app. state is latched: once terminal it is
// never recomputed, so the backend stops reporting new states for the id.
type appRecord struct {
	name  string
	mode  driver.RunMode
	roles []*roleRun

	mu        sync.Mutex
	state     driver.AppState
	cancelled bool
}

// refresh derives the aggregate and per-role states from process liveness
// and exit codes.
func (r *appRecord) refresh() (driver.AppState, []driver.RoleStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roleStatuses := make([]driver.RoleStatus, 0, len(r.roles))
	anyAlive := false
	allZero := true
	for _, role := range r.roles {
		roleState, roleAlive, roleAllZero := role.derive()
		roleStatuses = append(roleStatuses, driver.RoleStatus{Role: role.name, State: roleState})
		anyAlive = anyAlive || roleAlive
		allZero = allZero && roleAllZero
	}

	if r.state.IsTerminal() {
		return r.state, roleStatuses
	}
	switch {
	case r.cancelled:
		r.state = driver.CANCELLED
	case anyAlive:
		r.state = driver.RUNNING
	case allZero:
		r.state = driver.SUCCEEDED
	default:
		r.state = driver.FAILED
	}
	return r.state, roleStatuses
}

func (rr *roleRun) derive() (state driver.AppState, anyAlive, allZero bool) {
	allZero = true
	for _, p := range rr.procs {
		if code, done := p.exitCode(); !done {
			anyAlive = true
		} else if code != 0 {
			allZero = false
		}
	}
	switch {
	case anyAlive:
		state = driver.RUNNING
	case allZero:
		state = driver.SUCCEEDED
	default:
		state = driver.FAILED
	}
	return state, anyAlive, allZero
}

func (r *appRecord) liveProcs() []*process {
	var procs []*process
	for _, role := range r.roles {
		for _, p := range role.procs {
			if p.alive() {
				procs = append(procs, p)
			}
		}
	}
	return procs
}

// LocalScheduler implements driver.Scheduler on top of local OS processes.
type LocalScheduler struct {
	fetcher   ImageFetcher
	cacheSize int
	stat      stats.StatsReceiver

	mu   sync.Mutex
	apps *orderedmap.OrderedMap[string, *appRecord]
}

// NewLocalScheduler returns a scheduler resolving images through fetcher and
// keeping at most cacheSize app records (NoCacheLimit for unbounded). A nil
// stat falls back to a no-op receiver.
func NewLocalScheduler(fetcher ImageFetcher, cacheSize int, stat stats.StatsReceiver) *LocalScheduler {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	return &LocalScheduler{
		fetcher:   fetcher,
		cacheSize: cacheSize,
		stat:      stat.Scope("localScheduler"),
		apps:      orderedmap.NewOrderedMap[string, *appRecord](),
	}
}

// Submit fetches every role's image, resolves macros against the minted app
// id and the fetched image roots, then spawns NumReplicas processes per role.
// Fetching is all-or-nothing: no process is spawned unless every image
// resolved. A spawn failure kills any replicas already started.
func (s *LocalScheduler) Submit(app *driver.Application, mode driver.RunMode) (string, error) {
	appID := mintAppID(app.Name)

	imgRoots := make([]string, len(app.Roles))
	for i, role := range app.Roles {
		imgRoot, err := s.fetcher.Fetch(role.Container.Image)
		if err != nil {
			return "", err
		}
		imgRoots[i] = imgRoot
	}

	record := &appRecord{name: app.Name, mode: mode, state: driver.RUNNING}
	for i, role := range app.Roles {
		imgRoot := imgRoots[i]
		argv := append(
			[]string{resolveEntrypoint(role.Entrypoint, imgRoot, appID)},
			driver.Macros.Substitute(role.Args, imgRoot, appID)...)
		env := make(map[string]string, len(role.Env))
		for k, v := range role.Env {
			env[k] = driver.Macros.SubstituteIn(v, imgRoot, appID)
		}

		run := &roleRun{name: role.Name}
		for replica := 0; replica < role.NumReplicas; replica++ {
			p, err := startProcess(role.Name, replica, argv, env, imgRoot)
			if err != nil {
				for _, started := range record.liveProcs() {
					started.kill()
				}
				return "", err
			}
			run.procs = append(run.procs, p)
		}
		record.roles = append(record.roles, run)
	}

	s.mu.Lock()
	s.apps.Set(appID, record)
	if s.cacheSize > NoCacheLimit && s.apps.Len() > s.cacheSize {
		oldest := s.apps.Front()
		s.apps.Delete(oldest.Key)
		s.stat.Counter("evictions").Inc(1)
		log.WithFields(
			log.Fields{
				"appID": oldest.Key,
			}).Info("Evicted oldest app record, status is no longer knowable")
	}
	s.stat.Counter("submits").Inc(1)
	s.stat.Gauge("cachedApps").Update(int64(s.apps.Len()))
	s.mu.Unlock()

	log.WithFields(
		log.Fields{
			"appID": appID,
			"app":   app.Name,
			"mode":  mode,
			"roles": len(app.Roles),
		}).Info("Submitted app")
	return appID, nil
}

// Describe returns nil for evicted or never-submitted ids.
func (s *LocalScheduler) Describe(appID string) (*driver.DescribeAppResponse, error) {
	s.mu.Lock()
	record, ok := s.apps.Get(appID)
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}

	state, roleStatuses := record.refresh()
	return &driver.DescribeAppResponse{
		AppID: appID,
		State: state,
		Mode:  record.mode,
		// local processes are never restarted, a failed replica stays failed
		NumRestarts:  0,
		RoleStatuses: roleStatuses,
	}, nil
}

// Cancel kills all live processes of the app. Apps already in a terminal
// state are left untouched.
func (s *LocalScheduler) Cancel(appID string) error {
	s.mu.Lock()
	record, ok := s.apps.Get(appID)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	record.mu.Lock()
	if record.state.IsTerminal() {
		record.mu.Unlock()
		return nil
	}
	procs := record.liveProcs()
	if len(procs) == 0 {
		record.mu.Unlock()
		// completed naturally before the cancel arrived
		record.refresh()
		return nil
	}
	record.cancelled = true
	record.state = driver.CANCELLED
	record.mu.Unlock()

	for _, p := range procs {
		p.kill()
	}
	s.stat.Counter("cancels").Inc(1)
	log.WithFields(
		log.Fields{
			"appID":     appID,
			"app":       record.name,
			"processes": len(procs),
		}).Info("Cancelled app")
	return nil
}

// List returns the ids of all resident app records in insertion order.
func (s *LocalScheduler) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apps.Keys(), nil
}

// Relative entrypoints are looked up in the image root first, falling back
// to PATH lookup (so interpreter entrypoints like "python" still resolve).
func resolveEntrypoint(entrypoint, imgRoot, appID string) string {
	ep := driver.Macros.SubstituteIn(entrypoint, imgRoot, appID)
	if filepath.IsAbs(ep) {
		return ep
	}
	candidate := filepath.Join(imgRoot, ep)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ep
}

func mintAppID(appName string) string {
	id, err := uuid.NewV4()
	for err != nil {
		id, err = uuid.NewV4()
	}
	return appName + "_" + id.String()
}
