package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type ExitMocks struct {
	exitStatuses []int
}

func (m *ExitMocks) Fatalf(format string, v ...interface{}) {
	fmt.Printf(format+"\n", v...)
	m.exitStatuses = append(m.exitStatuses, 1)
}

func (m *ExitMocks) Fatalln(v ...interface{}) {
	fmt.Println(v...)
	m.exitStatuses = append(m.exitStatuses, 1)
}

func (m *ExitMocks) Exit(code int) {
	m.exitStatuses = append(m.exitStatuses, code)
}

func (m *ExitMocks) fatalCalls() int {
	return len(m.exitStatuses)
}

func NewExitMocks() *ExitMocks {
	return &ExitMocks{
		exitStatuses: make([]int, 0),
	}
}

var exitMocks *ExitMocks

// testEnv points the CLI to a config file describing a stash in a temporary directory
type testEnv struct {
	dir    string
	stdout strings.Builder
}

func setupStash(t *testing.T, indexBackend string) *testEnv {
	env := &testEnv{dir: t.TempDir()}
	configFile := filepath.Join(env.dir, "cloudstash.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(fmt.Sprintf(`
log-level: none
index:
  backend: %s
  path: %s
remote:
  backend: localfs
  path: %s
`, indexBackend, filepath.Join(env.dir, "index"), filepath.Join(env.dir, "objects"))), 0600))
	t.Setenv("CLOUDSTASH_CONFIG", configFile)

	exitMocks = NewExitMocks()
	logFatalln = exitMocks.Fatalln
	logFatalf = exitMocks.Fatalf
	osExit = exitMocks.Exit
	logStdOut = func(format string, args ...interface{}) (int, error) {
		return fmt.Fprintf(&env.stdout, format, args...)
	}
	cloudstashFlags = flagsT{}
	return env
}

func (e *testEnv) path(name string) string {
	return filepath.Join(e.dir, name)
}

func runCmd(t *testing.T, args ...string) {
	t.Helper()
	rootCmd.SetArgs(args)
	Execute()
}
