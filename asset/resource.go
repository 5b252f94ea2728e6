// Package asset opens the documents the renderer is configured from. A
// document may live on the local filesystem or behind an http(s) URL.
package asset

import (
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrUnsupportedScheme = errors.New("asset: unsupported scheme")
	ErrFetchFailed       = errors.New("asset: could not fetch remote document")
)

// Remote documents must arrive within this time.
const fetchTimeout = 30 * time.Second

var httpClient = &http.Client{Timeout: fetchTimeout}

// A streamable local or remote document.
type Resource struct {
	io.ReadCloser
	url *url.URL
}

// Location of the document as given to Open.
func (r *Resource) Path() string {
	return r.url.String()
}

// Returns true if the document is streamed over http/https.
func (r *Resource) IsRemote() bool {
	return r.url.Scheme != ""
}

// Open a document. Paths without a scheme are read from the local
// filesystem; http and https URLs are fetched. The caller must close the
// returned resource.
func Open(location string) (*Resource, error) {
	// Windows paths parse as URLs once their separators are flipped
	u, err := url.Parse(strings.ReplaceAll(location, `\`, `/`))
	if err != nil {
		return nil, errors.Wrapf(err, "asset: invalid location %q", location)
	}

	var reader io.ReadCloser
	switch u.Scheme {
	case "":
		f, err := os.Open(filepath.Clean(u.Path))
		if err != nil {
			return nil, errors.Wrap(err, "asset")
		}
		reader = f
	case "http", "https":
		resp, err := httpClient.Get(u.String())
		if err != nil {
			return nil, errors.Wrapf(ErrFetchFailed, "%s: %v", u, err)
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, errors.Wrapf(ErrFetchFailed, "%s: status %d", u, resp.StatusCode)
		}
		reader = resp.Body
	default:
		return nil, errors.Wrapf(ErrUnsupportedScheme, "%q", u.Scheme)
	}

	return &Resource{
		ReadCloser: reader,
		url:        u,
	}, nil
}

// Wrap an in-memory document.
func FromStream(name string, source io.Reader) *Resource {
	u, err := url.Parse(name)
	if err != nil {
		u = &url.URL{Path: name}
	}
	return &Resource{
		ReadCloser: io.NopCloser(source),
		url:        u,
	}
}
