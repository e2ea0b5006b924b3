// Package cli implements the command-line front end over a local-scheduler
// backed session. The local backend lives in this process, so every command
// submits work and watches it to completion within one invocation.
package cli

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tsmdev/tsm/common/stats"
	"github.com/tsmdev/tsm/driver"
	"github.com/tsmdev/tsm/driver/local"
	"github.com/tsmdev/tsm/driver/standalone"
)

// CLI wires cobra commands to a StandaloneSession.
type CLI struct {
	rootCmd *cobra.Command

	logLevel     string
	cacheSize    int
	pollInterval time.Duration

	session driver.Session
	stat    stats.StatsReceiver
}

func (c *CLI) Exec() error {
	return c.rootCmd.Execute()
}

// NewLocalCLI builds the CLI over a LocalScheduler-backed session.
func NewLocalCLI() *CLI {
	c := &CLI{}
	c.rootCmd = &cobra.Command{
		Use:   "tsm",
		Short: "tsm runs distributed applications as local processes",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := log.ParseLevel(c.logLevel)
			if err != nil {
				return err
			}
			log.SetLevel(level)
			return nil
		},
	}
	c.rootCmd.PersistentFlags().StringVar(&c.logLevel, "log_level", "info", "error|warn|info|debug level and above is logged")
	c.rootCmd.PersistentFlags().IntVar(&c.cacheSize, "cache_size", local.NoCacheLimit, "max app records kept by the scheduler, 0 for unbounded")
	c.rootCmd.PersistentFlags().DurationVar(&c.pollInterval, "poll_interval", time.Second, "status polling interval while waiting")

	c.addCmd(&runCmd{})
	c.addCmd(&runElasticCmd{})

	return c
}

func (c *CLI) addCmd(cmd command) {
	cobraCmd := cmd.registerFlags()
	cobraCmd.RunE = func(innerCmd *cobra.Command, args []string) error {
		return cmd.run(c, innerCmd, args)
	}
	c.rootCmd.AddCommand(cobraCmd)
}

// makeSession builds the session lazily so flag values are in effect.
func (c *CLI) makeSession() driver.Session {
	if c.session == nil {
		c.stat = stats.DefaultStatsReceiver()
		scheduler := local.NewLocalScheduler(local.NewLocalDirectoryImageFetcher(), c.cacheSize, c.stat)
		c.session = standalone.NewStandaloneSession("tsm_cli", scheduler, c.pollInterval)
	}
	return c.session
}

type command interface {
	registerFlags() *cobra.Command
	run(c *CLI, cmd *cobra.Command, args []string) error
}
