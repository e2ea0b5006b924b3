package driver

// RoleStatus is the per-role view within a DescribeAppResponse.
type RoleStatus struct {
	Role  string
	State AppState
}

// DescribeAppResponse is a backend's full description of a submitted app.
// NumRestarts counts worker-group restarts; backends without restart support
// report 0.
type DescribeAppResponse struct {
	AppID        string
	State        AppState
	Mode         RunMode
	NumRestarts  int
	UIURL        string
	RoleStatuses []RoleStatus
}

// Scheduler is the capability contract every backend must satisfy. Backends
// own process/job handles; sessions own the mapping from app id to the
// Application the caller submitted.
type Scheduler interface {
	// Submit runs the application and returns the backend-assigned app id,
	// unique for the backend's lifetime. Macro tokens in role arguments are
	// resolved here, once the app id and image roots are known.
	Submit(app *Application, mode RunMode) (string, error)

	// Describe returns the current description of the app, or nil if the
	// backend has no record of the id (never submitted, or evicted).
	Describe(appID string) (*DescribeAppResponse, error)

	// Cancel requests termination of all live processes of the app. It is
	// idempotent and a no-op for apps already in a terminal state.
	Cancel(appID string) error

	// List returns the ids of all apps the backend still has a record of.
	// Sessions use it to prune their own caches.
	List() ([]string, error)
}
