package dropbox

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/oneconcern/cloudstash/pkg/storage/status"
)

// apiError is the error envelope returned by the Dropbox API
type apiError struct {
	Summary    string `json:"error_summary"`
	StatusCode int    `json:"-"`
	Endpoint   string `json:"-"`
}

func (e *apiError) Error() string {
	if e.Summary == "" {
		return fmt.Sprintf("dropbox %s: HTTP status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("dropbox %s: HTTP status %d: %s", e.Endpoint, e.StatusCode, e.Summary)
}

func readAPIError(endpoint string, resp *http.Response) error {
	e := &apiError{
		StatusCode: resp.StatusCode,
		Endpoint:   endpoint,
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(body, e); err != nil {
		// errors other than 409 may come as plain text
		e.Summary = strings.TrimSpace(string(body))
	}
	return toSentinelErrors(e)
}

// toSentinelErrors qualifies API errors
// https://www.dropbox.com/developers/documentation/http/documentation#error-handling
func toSentinelErrors(err *apiError) error {
	switch err.StatusCode {
	case http.StatusBadRequest:
		return status.ErrInvalidResource.Wrap(err)
	case http.StatusUnauthorized:
		return status.ErrUnauthorized.Wrap(err)
	case http.StatusForbidden:
		return status.ErrForbidden.Wrap(err)
	case http.StatusConflict:
		// endpoint specific errors, e.g. path/not_found/.. or path_lookup/not_found/..
		if strings.Contains(err.Summary, "not_found") {
			return status.ErrNotExists.Wrap(err)
		}
		return status.ErrStorageAPI.Wrap(err)
	default:
		return status.ErrStorageAPI.Wrap(err)
	}
}
