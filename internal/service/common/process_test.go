//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"errors"
	"os"
	"testing"

	"github.com/mitchellh/go-ps"
	"github.com/stretchr/testify/require"
)

var errNoProcFS = errors.New("process table unavailable")

// fakeProcess implements ps.Process.
type fakeProcess struct {
	pid  int
	name string
}

func (p fakeProcess) Pid() int           { return p.pid }
func (p fakeProcess) PPid() int          { return 1 }
func (p fakeProcess) Executable() string { return p.name }

func listOf(processes ...ps.Process) ProcessLister {
	return func() ([]ps.Process, error) { return processes, nil }
}

func TestOtherInstances(t *testing.T) {
	t.Parallel()

	self := os.Getpid()
	list := listOf(
		fakeProcess{pid: self, name: "home-guard"},
		fakeProcess{pid: self + 1, name: "home-guard"},
		fakeProcess{pid: self + 2, name: "sshd"},
	)

	pids, err := OtherInstances(list, "home-guard")
	require.NoError(t, err)
	require.Equal(t, []int{self + 1}, pids)

	_, err = OtherInstances(func() ([]ps.Process, error) { return nil, errNoProcFS }, "home-guard")
	require.ErrorIs(t, err, errNoProcFS)
}

func TestEnsureSingleInstance(t *testing.T) {
	t.Parallel()

	self := os.Getpid()
	name := CurrentExecutable()

	require.NoError(t, EnsureSingleInstance(listOf(fakeProcess{pid: self, name: name})))

	err := EnsureSingleInstance(listOf(
		fakeProcess{pid: self, name: name},
		fakeProcess{pid: self + 7, name: name},
	))
	require.ErrorIs(t, err, ErrAlreadyRunning)
}

// TestProcesses_RealTable makes sure the real process table contains this test binary.
func TestProcesses_RealTable(t *testing.T) {
	t.Parallel()

	p, err := ps.FindProcess(os.Getpid())
	require.NoError(t, err)
	require.NotNil(t, p)

	pids, err := OtherInstances(nil, "definitely-not-running-binary")
	require.NoError(t, err)
	require.Empty(t, pids)
}
