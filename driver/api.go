// Package driver defines the driver-side data model for describing distributed
// applications and the Scheduler/Session contracts that backends and session
// implementations must honor. It knows nothing about how an application is
// actually executed; see driver/local for the reference OS-process backend.
package driver

import (
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// Interpreter is the entrypoint every elastic role is launched with.
const Interpreter = "python"

// DistributedLauncher is the module passed to the interpreter via -m for
// elastic roles.
const DistributedLauncher = "torchelastic.distributed.launch"

// DefaultRdzvBackend is used when an elastic role does not override the
// rendezvous backend.
const DefaultRdzvBackend = "etcd"

// RunMode specifies how an application should be run once submitted.
type RunMode int

const (
	// HEADLESS - the app is running in the background, the caller is expected
	// to observe a terminal state before the backend reclaims resources.
	HEADLESS RunMode = iota
	// INTERACTIVE - the app is running in the foreground.
	INTERACTIVE
	// MANAGED - the backend reaps completed processes on the caller's behalf.
	MANAGED
)

func (m RunMode) String() string {
	switch m {
	case HEADLESS:
		return "HEADLESS"
	case INTERACTIVE:
		return "INTERACTIVE"
	case MANAGED:
		return "MANAGED"
	default:
		return "RunMode(" + strconv.Itoa(int(m)) + ")"
	}
}

// Resources is an immutable description of the compute demand of a single
// role replica. Capabilities carries free-form backend hints (e.g. instance
// type, accelerator class).
type Resources struct {
	CPU          int
	GPU          int
	MemMB        int
	Capabilities map[string]string
}

// NewResources returns Resources with an empty capability map.
func NewResources(cpu, gpu, memMB int) Resources {
	return Resources{CPU: cpu, GPU: gpu, MemMB: memMB, Capabilities: map[string]string{}}
}

// Copy returns new Resources with the same cpu/gpu/memMB and a capability map
// merged from the receiver's plus the given overrides. Overrides win on key
// collision. The receiver's map is never mutated.
func (r Resources) Copy(overrides map[string]string) Resources {
	caps := make(map[string]string, len(r.Capabilities)+len(overrides))
	for k, v := range r.Capabilities {
		caps[k] = v
	}
	for k, v := range overrides {
		caps[k] = v
	}
	return Resources{CPU: r.CPU, GPU: r.GPU, MemMB: r.MemMB, Capabilities: caps}
}

// Container describes where a role runs: an image reference plus the
// resources each replica requires. The image reference is opaque to the data
// model; the backend's ImageFetcher decides what it means.
type Container struct {
	Image     string
	Resources *Resources
	PortMap   map[string]int
}

func NewContainer(image string) *Container {
	return &Container{Image: image, PortMap: map[string]int{}}
}

// Require sets the resources each replica of this container needs.
func (c *Container) Require(r Resources) *Container {
	c.Resources = &r
	return c
}

// Ports adds named port declarations.
func (c *Container) Ports(ports map[string]int) *Container {
	for name, port := range ports {
		c.PortMap[name] = port
	}
	return c
}

// Role describes a set of identical replicas of one entrypoint within an
// application. A Role is not submittable until it is bound to a Container
// that has Resources, and NumReplicas is at least 1.
type Role struct {
	Name        string
	Entrypoint  string
	Args        []string
	Env         map[string]string
	Container   *Container
	NumReplicas int
}

func NewRole(name string) *Role {
	return &Role{Name: name, Env: map[string]string{}, NumReplicas: 1}
}

// Runs sets the entrypoint and its arguments.
func (r *Role) Runs(entrypoint string, args ...string) *Role {
	r.Entrypoint = entrypoint
	r.Args = args
	return r
}

// WithEnv adds environment variables to the role's replicas.
func (r *Role) WithEnv(env map[string]string) *Role {
	for k, v := range env {
		r.Env[k] = v
	}
	return r
}

// On binds the role to a container.
func (r *Role) On(container *Container) *Role {
	r.Container = container
	return r
}

// Replicas sets the number of replicas to run.
func (r *Role) Replicas(n int) *Role {
	r.NumReplicas = n
	return r
}

// ElasticRole is a Role whose construction rewrites the user's entrypoint and
// arguments into a rendezvous-aware distributed launch invocation. The
// produced Role's entrypoint is always the interpreter; the user entrypoint
// moves into the argument vector after the launcher flags.
type ElasticRole struct {
	Role

	nnodes         string
	nnodesSet      bool
	maxRestarts    int
	maxRestartsSet bool
	noPython       bool
	rdzvBackend    string
	rdzvID         string
}

// ElasticOption configures an ElasticRole at construction time.
type ElasticOption func(*ElasticRole)

// Nnodes sets the elastic node range, e.g. "2:4".
func Nnodes(nnodes string) ElasticOption {
	return func(r *ElasticRole) {
		r.nnodes = nnodes
		r.nnodesSet = true
	}
}

// MaxRestarts sets the maximum number of worker group restarts.
func MaxRestarts(n int) ElasticOption {
	return func(r *ElasticRole) {
		r.maxRestarts = n
		r.maxRestartsSet = true
	}
}

// NoPython controls whether the launcher executes the user entrypoint
// directly rather than as a python module. Defaults to true.
func NoPython(noPython bool) ElasticOption {
	return func(r *ElasticRole) { r.noPython = noPython }
}

// RdzvBackend overrides the rendezvous backend (default "etcd").
func RdzvBackend(backend string) ElasticOption {
	return func(r *ElasticRole) { r.rdzvBackend = backend }
}

// RdzvID overrides the rendezvous id. The default is the app id macro, which
// the backend resolves to the real app id at submission time.
func RdzvID(id string) ElasticOption {
	return func(r *ElasticRole) { r.rdzvID = id }
}

func NewElasticRole(name string, opts ...ElasticOption) *ElasticRole {
	r := &ElasticRole{
		Role:        Role{Name: name, Env: map[string]string{}, NumReplicas: 1},
		nnodes:      "1:1",
		noPython:    true,
		rdzvBackend: DefaultRdzvBackend,
		rdzvID:      Macros.AppID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Runs rewrites the given entrypoint and args into the launcher invocation.
// Flag order is a compatibility surface and must not change.
func (r *ElasticRole) Runs(entrypoint string, args ...string) *ElasticRole {
	launchArgs := []string{"-m", DistributedLauncher}
	if r.nnodesSet {
		launchArgs = append(launchArgs, "--nnodes", r.nnodes)
	}
	if r.maxRestartsSet {
		launchArgs = append(launchArgs, "--max_restarts", strconv.Itoa(r.maxRestarts))
	}
	if r.noPython {
		launchArgs = append(launchArgs, "--no_python")
	}
	launchArgs = append(launchArgs,
		"--rdzv_backend", r.rdzvBackend,
		"--rdzv_id", r.rdzvID,
		"--role", r.Name,
		elasticEntrypoint(entrypoint),
	)
	launchArgs = append(launchArgs, args...)

	r.Entrypoint = Interpreter
	r.Args = launchArgs
	return r
}

// Relative entrypoints resolve against the image root at submission time.
// Prefixing is idempotent: an entrypoint already anchored at the image root
// macro passes through unchanged.
func elasticEntrypoint(entrypoint string) string {
	if filepath.IsAbs(entrypoint) || strings.HasPrefix(entrypoint, Macros.ImgRoot) {
		return entrypoint
	}
	return path.Join(Macros.ImgRoot, entrypoint)
}

// WithEnv adds environment variables to the role's replicas.
func (r *ElasticRole) WithEnv(env map[string]string) *ElasticRole {
	r.Role.WithEnv(env)
	return r
}

// On binds the role to a container.
func (r *ElasticRole) On(container *Container) *ElasticRole {
	r.Role.On(container)
	return r
}

// Replicas sets the number of replicas to run.
func (r *ElasticRole) Replicas(n int) *ElasticRole {
	r.Role.Replicas(n)
	return r
}

// Application is an ordered collection of roles submitted and tracked as a
// unit. Role order matters only for display.
type Application struct {
	Name    string
	Roles   []*Role
	RunMode RunMode

	// Attached is true when this object is a read-only handle reconstructed
	// from backend state by Session.Attach. Attached applications cannot be
	// resubmitted.
	Attached bool
}

func NewApplication(name string) *Application {
	return &Application{Name: name, RunMode: HEADLESS}
}

// Of appends roles to the application.
func (a *Application) Of(roles ...*Role) *Application {
	a.Roles = append(a.Roles, roles...)
	return a
}
