package local

import (
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// process wraps one replica's OS process. The exit status is collected
// asynchronously by a dedicated wait goroutine, so completed processes are
// reaped without caller intervention and exitCode never races with the reap.
type process struct {
	role    string
	replica int

	cmd    *exec.Cmd
	mutex  sync.Mutex
	code   int
	doneCh chan struct{}
}

// startProcess spawns argv in dir with the parent environment plus env.
// Child processes get their own process group so cancellation can take the
// whole tree down.
func startProcess(role string, replica int, argv []string, env map[string]string, dir string) (*process, error) {
	if len(argv) == 0 {
		return nil, errors.New("no command specified")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	// Sets pgid of all child processes to cmd's pid
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "cannot start replica %d of role %q", replica, role)
	}

	p := &process{role: role, replica: replica, cmd: cmd, doneCh: make(chan struct{})}
	go p.wait()

	log.WithFields(
		log.Fields{
			"pid":     cmd.Process.Pid,
			"role":    role,
			"replica": replica,
		}).Info("Started replica process")
	return p, nil
}

// wait reaps the process and records its exit code.
func (p *process) wait() {
	err := p.cmd.Wait()

	code := 0
	if err != nil {
		code = -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				code = status.ExitStatus()
			}
		}
	}

	p.mutex.Lock()
	p.code = code
	close(p.doneCh)
	p.mutex.Unlock()

	log.WithFields(
		log.Fields{
			"pid":      p.cmd.Process.Pid,
			"role":     p.role,
			"replica":  p.replica,
			"exitCode": code,
		}).Info("Finished waiting for process")
}

// alive reports whether the process has not yet exited.
func (p *process) alive() bool {
	select {
	case <-p.doneCh:
		return false
	default:
		return true
	}
}

// exitCode returns the exit code once the process has exited.
func (p *process) exitCode() (int, bool) {
	select {
	case <-p.doneCh:
		p.mutex.Lock()
		defer p.mutex.Unlock()
		return p.code, true
	default:
		return 0, false
	}
}

// kill SIGKILLs the process along with its entire process group, assuming no
// child called setpgid itself.
func (p *process) kill() {
	pid := p.cmd.Process.Pid
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		log.WithFields(
			log.Fields{
				"pid":   pid,
				"error": err,
			}).Error("Error finding pgid, killing pid only")
		p.cmd.Process.Kill()
		return
	}
	if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil {
		log.WithFields(
			log.Fields{
				"pgid":  pgid,
				"error": err,
			}).Error("Error killing pgid")
	}
}
