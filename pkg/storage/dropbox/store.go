// Package dropbox implements a blob store on Dropbox, with the HTTP API v2.
//
// Objects are files in a single folder, named after their key.
// Requests are authenticated with a static OAuth2 bearer token.
package dropbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/cloudstash/pkg/storage"
	"github.com/oneconcern/cloudstash/pkg/storage/status"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var _ storage.Store = &dropbox{}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const apiArgHeader = "Dropbox-API-Arg"

type dropbox struct {
	root       string
	apiURL     string
	contentURL string
	base       *http.Client
	client     *http.Client
	l          *zap.Logger
}

type (
	pathArg struct {
		Path string `json:"path"`
	}

	uploadArg struct {
		Path       string `json:"path"`
		Mode       string `json:"mode"`
		Mute       bool   `json:"mute"`
		Autorename bool   `json:"autorename"`
	}

	listFolderArg struct {
		Path      string `json:"path"`
		Recursive bool   `json:"recursive"`
	}

	listFolderContinueArg struct {
		Cursor string `json:"cursor"`
	}

	listFolderResult struct {
		Entries []struct {
			Tag  string `json:".tag"`
			Name string `json:"name"`
		} `json:"entries"`
		Cursor  string `json:"cursor"`
		HasMore bool   `json:"has_more"`
	}
)

// New Dropbox store, authenticated with an access token
func New(token string, opts ...Option) (storage.Store, error) {
	if token == "" {
		return nil, status.ErrUnauthorized.Wrap(fmt.Errorf("dropbox store: an access token is required"))
	}
	d := &dropbox{
		apiURL:     DefaultAPIURL,
		contentURL: DefaultContentURL,
		base:       http.DefaultClient,
		l:          zap.NewNop(),
	}
	for _, apply := range opts {
		apply(d)
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, d.base)
	d.client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
	d.l = d.l.With(zap.String("store", d.String()))
	return d, nil
}

func (d *dropbox) String() string {
	return "dropbox:" + d.root
}

func (d *dropbox) path(key string) string {
	return d.root + "/" + strings.TrimLeft(key, "/")
}

// rpc calls an RPC endpoint with a json argument, decoding the json result into res when not nil
func (d *dropbox) rpc(ctx context.Context, endpoint string, arg, res interface{}) error {
	body, err := json.Marshal(arg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return status.ErrStorageAPI.Wrap(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return readAPIError(endpoint, resp)
	}
	if res == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(res); err != nil {
		return status.ErrStorageAPI.Wrap(fmt.Errorf("decoding %s response: %w", endpoint, err))
	}
	return nil
}

// content calls a content endpoint, with the json argument passed as a header
func (d *dropbox) content(ctx context.Context, endpoint string, arg interface{}, body io.Reader) (*http.Response, error) {
	header, err := json.Marshal(arg)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.contentURL+endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set(apiArgHeader, string(header))
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, status.ErrStorageAPI.Wrap(err)
	}
	if resp.StatusCode != http.StatusOK {
		defer func() {
			_ = resp.Body.Close()
		}()
		return nil, readAPIError(endpoint, resp)
	}
	return resp, nil
}

func (d *dropbox) Has(ctx context.Context, key string) (bool, error) {
	err := d.rpc(ctx, "/files/get_metadata", pathArg{Path: d.path(key)}, nil)
	if err != nil {
		if status.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (d *dropbox) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := d.content(ctx, "/files/download", pathArg{Path: d.path(key)}, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (d *dropbox) Put(ctx context.Context, key string, rdr io.Reader) error {
	if rdr == nil {
		rdr = bytes.NewReader(nil)
	}
	resp, err := d.content(ctx, "/files/upload", uploadArg{
		Path: d.path(key),
		Mode: "overwrite",
		Mute: true,
	}, rdr)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (d *dropbox) Delete(ctx context.Context, key string) error {
	return d.rpc(ctx, "/files/delete_v2", pathArg{Path: d.path(key)}, nil)
}

func (d *dropbox) Keys(ctx context.Context) ([]string, error) {
	var (
		keys []string
		page listFolderResult
	)
	err := d.rpc(ctx, "/files/list_folder", listFolderArg{Path: d.root}, &page)
	for err == nil {
		for _, entry := range page.Entries {
			if entry.Tag == "file" {
				keys = append(keys, entry.Name)
			}
		}
		if !page.HasMore {
			break
		}
		cursor := page.Cursor
		page = listFolderResult{}
		err = d.rpc(ctx, "/files/list_folder/continue", listFolderContinueArg{Cursor: cursor}, &page)
	}
	if err != nil {
		if status.IsNotExist(err) {
			// the folder is created by the first upload
			return nil, nil
		}
		return nil, err
	}
	d.l.Debug("listed keys", zap.Int("count", len(keys)))
	return keys, nil
}

func (d *dropbox) Clear(ctx context.Context) error {
	keys, err := d.Keys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := d.Delete(ctx, key); err != nil && !status.IsNotExist(err) {
			return err
		}
	}
	return nil
}
