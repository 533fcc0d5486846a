//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-ps"
)

// ErrAlreadyRunning is returned when another instance of the executable is alive.
var ErrAlreadyRunning = errors.New("another instance is already running")

// ProcessLister returns the system process table.
type ProcessLister func() ([]ps.Process, error)

// CurrentExecutable returns the base name of the running binary.
func CurrentExecutable() string {
	path, err := os.Executable()
	if err != nil {
		return filepath.Base(os.Args[0])
	}

	return filepath.Base(path)
}

// OtherInstances returns the pids of other processes running the executable name.
func OtherInstances(list ProcessLister, name string) ([]int, error) {
	if list == nil {
		list = ps.Processes
	}

	processes, err := list()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	var (
		self = os.Getpid()
		pids []int
	)

	for _, process := range processes {
		if process.Pid() == self || process.Executable() != name {
			continue
		}

		pids = append(pids, process.Pid())
	}

	return pids, nil
}

// EnsureSingleInstance fails when another process runs the current executable.
func EnsureSingleInstance(list ProcessLister) error {
	name := CurrentExecutable()

	pids, err := OtherInstances(list, name)
	if err != nil {
		return err
	}

	if len(pids) > 0 {
		return fmt.Errorf("%w: %s (pid %v)", ErrAlreadyRunning, name, pids)
	}

	return nil
}

// TerminateOthers kills every other process running the executable name.
func TerminateOthers(list ProcessLister, name string) error {
	pids, err := OtherInstances(list, name)
	if err != nil {
		return err
	}

	for _, pid := range pids {
		process, findErr := os.FindProcess(pid)
		if findErr != nil {
			return fmt.Errorf("find process %d: %w", pid, findErr)
		}

		if killErr := process.Kill(); killErr != nil {
			return fmt.Errorf("kill process %d: %w", pid, killErr)
		}
	}

	return nil
}
