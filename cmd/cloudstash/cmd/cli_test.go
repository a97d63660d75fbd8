package cmd

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/oneconcern/cloudstash/internal/rand"
	"github.com/oneconcern/cloudstash/pkg/cafs"
	"github.com/oneconcern/cloudstash/pkg/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadDownloadRemove(t *testing.T) {
	for _, backend := range []string{config.IndexSQLite, config.IndexBadger} {
		backend := backend
		t.Run(backend, func(t *testing.T) {
			env := setupStash(t, backend)
			data := rand.Bytes(2*cafs.ChunkSize + 1)
			require.NoError(t, os.WriteFile(env.path("source"), data, 0600))

			runCmd(t, "upload", env.path("source"), "stored", "token")
			require.Zero(t, exitMocks.fatalCalls())

			runCmd(t, "download", "stored", env.path("copy"), "token")
			require.Zero(t, exitMocks.fatalCalls())
			copied, err := os.ReadFile(env.path("copy"))
			require.NoError(t, err)
			assert.Equal(t, data, copied)

			runCmd(t, "list")
			require.Zero(t, exitMocks.fatalCalls())
			assert.Equal(t, "stored\t1025\n", env.stdout.String())

			runCmd(t, "remove", "stored", "token")
			require.Zero(t, exitMocks.fatalCalls())

			runCmd(t, "download", "stored", env.path("gone"), "token")
			assert.Equal(t, 1, exitMocks.fatalCalls())
			_, err = os.Stat(env.path("gone"))
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestList(t *testing.T) {
	env := setupStash(t, config.IndexSQLite)
	for _, name := range []string{"b", "a", "other"} {
		require.NoError(t, os.WriteFile(env.path(name), rand.Bytes(2048), 0600))
		runCmd(t, "upload", env.path(name), name, "token")
	}
	require.Zero(t, exitMocks.fatalCalls())

	runCmd(t, "list", "--human", "--name-prefix", "o")
	require.Zero(t, exitMocks.fatalCalls())
	assert.Equal(t, "other\t2.048kB\n", env.stdout.String())

	env.stdout.Reset()
	runCmd(t, "list", "token", "--human=false", "--name-prefix", "")
	require.Zero(t, exitMocks.fatalCalls())
	assert.Equal(t, "a\t2048\nb\t2048\nother\t2048\n", env.stdout.String())
}

func TestUpload_MissingFile(t *testing.T) {
	env := setupStash(t, config.IndexSQLite)
	runCmd(t, "upload", env.path("missing"), "name", "token")
	assert.Equal(t, 1, exitMocks.fatalCalls())
}

func TestRemove_Unknown(t *testing.T) {
	setupStash(t, config.IndexSQLite)
	runCmd(t, "remove", "unknown", "token")
	assert.Equal(t, 1, exitMocks.fatalCalls())
}

func TestMissingArguments(t *testing.T) {
	for _, args := range [][]string{
		{"upload", "file", "name"},
		{"download", "name"},
		{"remove"},
		{"mount", "/tmp/mnt"},
		{"authenticate", "extra"},
	} {
		setupStash(t, config.IndexMemory)
		runCmd(t, args...)
		assert.Equalf(t, []int{1}, exitMocks.exitStatuses, "args: %v", args)
	}
}

func TestConfigGenerate(t *testing.T) {
	env := setupStash(t, config.IndexSQLite)
	target := env.path("generated/cloudstash.yaml")

	runCmd(t, "config", "generate", "--output", target)
	require.Zero(t, exitMocks.fatalCalls())

	v := viper.New()
	config.SetDefaults(v)
	v.SetConfigFile(target)
	c, err := config.Load(v)
	require.NoError(t, err)
	assert.Equal(t, config.IndexSQLite, c.Index.Backend)
	assert.Equal(t, env.path("index"), c.Index.Path)
	assert.Equal(t, config.RemoteLocalFS, c.Remote.Backend)
	assert.Empty(t, c.Remote.Token)

	t.Run("refuses to overwrite", func(t *testing.T) {
		runCmd(t, "config", "generate", "--output", target)
		assert.Equal(t, 1, exitMocks.fatalCalls())
	})
}

func TestAuthorizeURL(t *testing.T) {
	u, err := authorizeURL(config.DefaultClientID, "127.0.0.1:8080")
	require.NoError(t, err)

	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, "www.dropbox.com", parsed.Host)
	assert.Equal(t, "/oauth2/authorize", parsed.Path)
	assert.Equal(t, "token", parsed.Query().Get("response_type"))
	assert.Equal(t, config.DefaultClientID, parsed.Query().Get("client_id"))
	assert.Equal(t, "http://localhost:8080", parsed.Query().Get("redirect_uri"))

	_, err = authorizeURL(config.DefaultClientID, "no-port")
	assert.Error(t, err)
}

func TestServeTokenPage(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- serveTokenPage(context.Background(), ln)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/#access_token=abc&token_type=bearer")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Your token is")
	assert.NoError(t, <-done)
}

func TestUndaemonizeArgs(t *testing.T) {
	assert.Equal(t,
		[]string{"mount", "/mnt", "token"},
		undaemonizeArgs([]string{"mount", "--daemonize", "/mnt", "token"}),
	)
}

func TestDaemonEnv(t *testing.T) {
	env := daemonEnv([]string{"CLOUDSTASH_REMOTE_TOKEN=x", "AWS_REGION=eu-west-1", "SECRET=y"})
	joined := strings.Join(env, "\n")
	assert.Contains(t, joined, "PATH=")
	assert.Contains(t, joined, "CLOUDSTASH_REMOTE_TOKEN=x")
	assert.Contains(t, joined, "AWS_REGION=eu-west-1")
	assert.NotContains(t, joined, "SECRET=y")
}

func TestOpenStore_DropboxRequiresToken(t *testing.T) {
	c := config.Default()
	_, err := openStore(context.Background(), c, "", logger)
	assert.Error(t, err)

	store, err := openStore(context.Background(), c, "token", logger)
	require.NoError(t, err)
	assert.Contains(t, store.String(), "dropbox")
}
