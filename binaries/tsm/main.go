package main

import (
	log "github.com/sirupsen/logrus"

	"github.com/tsmdev/tsm/cli"
)

// CLI binary to run distributed applications as local processes.
//	Supported commands: (see "-h" for all options)
//		run [entrypoint] [args...]
//		run_elastic [entrypoint] [args...]
//	Global flags:
//		--cache_size [max app records kept by the scheduler]
//		--poll_interval [status polling interval]
//		--log_level [<error|info|debug> level and above should be logged]

func main() {
	c := cli.NewLocalCLI()
	if err := c.Exec(); err != nil {
		log.Fatal("Error running tsm ", err)
	}
}
