package driver

import "fmt"

// Session is the caller-facing surface of the driver. A session validates
// applications, delegates to a Scheduler, and tracks the app ids it has
// submitted or attached to. Workload failure is never an error return from
// these methods; it is observed as AppState.FAILED via Status or Wait.
type Session interface {
	// Name identifies the session, for logging.
	Name() string

	// Run validates and submits the application, records the returned app id
	// and returns it. Fails with *ValidationError if the application is
	// structurally invalid and with *AppNotReRunnableError if the application
	// was obtained via Attach.
	Run(app *Application, mode RunMode) (string, error)

	// Status returns the current status of the app. Fails with
	// *UnknownAppError if the id was never tracked by this session or has
	// since been evicted by the backend.
	Status(appID string) (*AppStatus, error)

	// Wait blocks, polling the backend at the session's configured interval,
	// until the app reaches a terminal state, then returns that status.
	Wait(appID string) (*AppStatus, error)

	// Stop requests cancellation of the app. Idempotent if the app is
	// already terminal.
	Stop(appID string) error

	// List returns the session's live view of tracked applications, first
	// dropping any id the backend no longer knows about.
	List() (map[string]*Application, error)

	// Attach reconstructs a read-only Application handle for an app id the
	// backend knows about and adds it to the session's cache, so a second
	// process can observe or cancel work submitted by a first.
	Attach(appID string) (*Application, error)
}

// ValidateApp checks that an application is structurally submittable: at
// least one role, every role bound to a container, every container carrying
// resources, every role with a positive replica count.
func ValidateApp(app *Application) error {
	if len(app.Roles) == 0 {
		return &ValidationError{Msg: fmt.Sprintf("application %q has no roles", app.Name)}
	}
	for _, role := range app.Roles {
		if role.Container == nil {
			return &ValidationError{Msg: fmt.Sprintf("role %q has no container", role.Name)}
		}
		if role.Container.Resources == nil {
			return &ValidationError{Msg: fmt.Sprintf("container %q of role %q has no resources", role.Container.Image, role.Name)}
		}
		if role.NumReplicas < 1 {
			return &ValidationError{Msg: fmt.Sprintf("role %q has %d replicas, need at least 1", role.Name, role.NumReplicas)}
		}
	}
	return nil
}
