package cmd

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/oneconcern/cloudstash/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

var dropboxEndpoint = oauth2.Endpoint{
	AuthURL:  "https://www.dropbox.com/oauth2/authorize",
	TokenURL: "https://api.dropboxapi.com/oauth2/token",
}

// tokenPage extracts the access token from the fragment of the redirect URL
const tokenPage = `<html><body><script type="text/javascript">` +
	`var re = /.*access_token=(.*?)&.*/g;` +
	`m = re.exec(location.href);` +
	`document.write('Your token is: ' + m[1]);` +
	`</script></body></html>`

// authorizeURL builds the implicit grant URL redirecting to the local listener
func authorizeURL(clientID, address string) (string, error) {
	_, port, err := net.SplitHostPort(address)
	if err != nil {
		return "", err
	}
	conf := &oauth2.Config{
		ClientID:    clientID,
		Endpoint:    dropboxEndpoint,
		RedirectURL: "http://localhost:" + port,
	}
	return conf.AuthCodeURL("", oauth2.SetAuthURLParam("response_type", "token")), nil
}

// serveTokenPage serves the token page and returns after the first request
func serveTokenPage(ctx context.Context, ln net.Listener) error {
	var once sync.Once
	served := make(chan struct{})

	srv := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf8")
			_, _ = io.WriteString(w, tokenPage)
			once.Do(func() { close(served) })
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()

	select {
	case <-served:
	case <-ctx.Done():
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

var authenticateCmd = &cobra.Command{
	Use:   "authenticate",
	Short: "Get a Dropbox access token",
	Long: `Print the URL authorizing cloudstash to access a Dropbox account.

Once authorized, the browser is redirected to a local page displaying the access token,
to be passed to other commands. The command exits after serving this page.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if settings == nil {
			wrapFatalln("configuration not loaded", nil)
			return
		}
		u, err := authorizeURL(settings.Auth.ClientID, settings.Auth.Address)
		if err != nil {
			wrapFatalln("invalid auth address "+settings.Auth.Address, err)
			return
		}
		logStdOut("App auth: %s\n", u)

		ln, err := net.Listen("tcp", settings.Auth.Address)
		if err != nil {
			wrapFatalln("listen on "+settings.Auth.Address, err)
			return
		}
		if err = serveTokenPage(context.Background(), ln); err != nil {
			wrapFatalln("serve token page", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(authenticateCmd)
}
