package driver

import "fmt"

// AppState is the lifecycle state of an application as reported by a
// scheduler backend.
type AppState int

const (
	// An unambiguous 0-value.
	UNSUBMITTED AppState = iota
	// Accepted by the backend but not scheduled yet.
	SUBMITTED
	// Waiting for resources.
	PENDING
	// At least one replica is running.
	RUNNING

	// States below are terminal.
	// An app in a terminal state never transitions again; backends must stop
	// reporting new states for its app id.

	// Every replica exited zero.
	SUCCEEDED
	// At least one replica exited non-zero. Workload failure is state, never
	// an error return.
	FAILED
	// The app was cancelled before natural completion.
	CANCELLED
)

// IsTerminal reports whether no further state transition can occur.
func (s AppState) IsTerminal() bool {
	return s == SUCCEEDED || s == FAILED || s == CANCELLED
}

func (s AppState) String() string {
	switch s {
	case UNSUBMITTED:
		return "UNSUBMITTED"
	case SUBMITTED:
		return "SUBMITTED"
	case PENDING:
		return "PENDING"
	case RUNNING:
		return "RUNNING"
	case SUCCEEDED:
		return "SUCCEEDED"
	case FAILED:
		return "FAILED"
	case CANCELLED:
		return "CANCELLED"
	default:
		panic(fmt.Sprintf("Unexpected AppState %v", int(s)))
	}
}

// AppStatus is the point-in-time status of an application. UIURL is
// backend-specific metadata and may be empty.
type AppStatus struct {
	State AppState
	UIURL string
}

// IsTerminal reports whether the app has reached a terminal state.
func (s *AppStatus) IsTerminal() bool {
	return s.State.IsTerminal()
}

func (s *AppStatus) String() string {
	if s.UIURL == "" {
		return s.State.String()
	}
	return fmt.Sprintf("%s (%s)", s.State, s.UIURL)
}
