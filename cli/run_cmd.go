package cli

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tsmdev/tsm/driver"
)

type runCmd struct {
	image    string
	appName  string
	roleName string
	replicas int
	env      []string
	cpu      int
	gpu      int
	memMB    int
	managed  bool
}

func (r *runCmd) registerFlags() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <entrypoint> [args...]",
		Short: "Run an entrypoint as a single-role app and wait for completion",
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
	cmd.MarkFlagRequired("image")
	return cmd
}

func (r *runCmd) run(c *CLI, cmd *cobra.Command, args []string) error {
	env, err := parseEnv(r.env)
	if err != nil {
		return err
	}

	container := driver.NewContainer(r.image).Require(driver.NewResources(r.cpu, r.gpu, r.memMB))
	role := driver.NewRole(r.roleName).
		Runs(args[0], args[1:]...).
		WithEnv(env).
		On(container).
		Replicas(r.replicas)
	app := driver.NewApplication(r.appName).Of(role)

	return submitAndWait(c, app, r.managed)
}

func submitAndWait(c *CLI, app *driver.Application, managed bool) error {
	session := c.makeSession()
	mode := driver.HEADLESS
	if managed {
		mode = driver.MANAGED
	}

	appID, err := session.Run(app, mode)
	if err != nil {
		return err
	}
	log.WithFields(
		log.Fields{
			"session": session.Name(),
			"appID":   appID,
		}).Info("Submitted, waiting for completion")

	status, err := session.Wait(appID)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", appID, status)
	if status.State != driver.SUCCEEDED {
		return fmt.Errorf("app finished in state %s", status.State)
	}
	return nil
}

func parseEnv(pairs []string) (map[string]string, error) {
	env := map[string]string{}
	for _, pair := range pairs {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			return nil, fmt.Errorf("malformed env entry %q, want KEY=VALUE", pair)
		}
		env[kv[0]] = kv[1]
	}
	return env, nil
}
