package cli

import (
	"github.com/spf13/cobra"

	"github.com/tsmdev/tsm/driver"
)

type runElasticCmd struct {
	image    string
	appName  string
	roleName string
	replicas int
	env      []string
	cpu      int
	gpu      int
	memMB    int
	managed  bool

	nnodes      string
	maxRestarts int
	noPython    bool
	rdzvBackend string
	rdzvID      string
}

func (r *runElasticCmd) registerFlags() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run_elastic <entrypoint> [args...]",
		Short: "Run an entrypoint as an elastic role and wait for completion",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.Flags().StringVar(&r.image, "image", "", "image to run on: an absolute path to a local directory")
	cmd.Flags().StringVar(&r.appName, "name", "tsm_app", "application name")
	cmd.Flags().StringVar(&r.roleName, "role", "worker", "role name")
	cmd.Flags().IntVar(&r.replicas, "replicas", 1, "number of replicas")
	cmd.Flags().StringArrayVar(&r.env, "env", nil, "environment variables as KEY=VALUE, repeatable")
	cmd.Flags().IntVar(&r.cpu, "cpu", 1, "cpus per replica")
	cmd.Flags().IntVar(&r.gpu, "gpu", 0, "gpus per replica")
	cmd.Flags().IntVar(&r.memMB, "memMB", 1024, "memory per replica, MB")
	cmd.Flags().BoolVar(&r.managed, "managed", false, "let the scheduler reap processes on exit")
	cmd.Flags().StringVar(&r.nnodes, "nnodes", "", "elastic node range, e.g. 2:4")
	cmd.Flags().IntVar(&r.maxRestarts, "max_restarts", -1, "max worker group restarts")
	cmd.Flags().BoolVar(&r.noPython, "no_python", true, "execute the entrypoint directly instead of as a python module")
	cmd.Flags().StringVar(&r.rdzvBackend, "rdzv_backend", "", "rendezvous backend override")
	cmd.Flags().StringVar(&r.rdzvID, "rdzv_id", "", "rendezvous id override, defaults to the app id")
	cmd.MarkFlagRequired("image")
	return cmd
}

func (r *runElasticCmd) run(c *CLI, cmd *cobra.Command, args []string) error {
	env, err := parseEnv(r.env)
	if err != nil {
		return err
	}

	opts := []driver.ElasticOption{driver.NoPython(r.noPython)}
	if r.nnodes != "" {
		opts = append(opts, driver.Nnodes(r.nnodes))
	}
	if r.maxRestarts >= 0 {
		opts = append(opts, driver.MaxRestarts(r.maxRestarts))
	}
	if r.rdzvBackend != "" {
		opts = append(opts, driver.RdzvBackend(r.rdzvBackend))
	}
	if r.rdzvID != "" {
		opts = append(opts, driver.RdzvID(r.rdzvID))
	}

	container := driver.NewContainer(r.image).Require(driver.NewResources(r.cpu, r.gpu, r.memMB))
	role := driver.NewElasticRole(r.roleName, opts...).
		Runs(args[0], args[1:]...).
		WithEnv(env).
		On(container).
		Replicas(r.replicas)
	app := driver.NewApplication(r.appName).Of(&role.Role)

	return submitAndWait(c, app, r.managed)
}
