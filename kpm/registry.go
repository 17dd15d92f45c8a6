package kpm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/evanphx/kernelino/log"
	"github.com/pkg/errors"
)

// Formula is the subset of a Homebrew formula document that kpm reads.
type Formula struct {
	Name string `json:"name"`
	URLs struct {
		Stable struct {
			URL string `json:"url"`
		} `json:"stable"`
	} `json:"urls"`
	Versions struct {
		Stable string `json:"stable"`
	} `json:"versions"`
	Dependencies []string `json:"dependencies"`
}

// ArchiveName is the last path segment of the stable download url.
func (f *Formula) ArchiveName() string {
	u, err := url.Parse(f.URLs.Stable.URL)
	if err != nil {
		return path.Base(f.URLs.Stable.URL)
	}

	return path.Base(u.Path)
}

func (f *Formula) validate(name string) error {
	if f.URLs.Stable.URL == "" || f.Versions.Stable == "" {
		return errors.Wrapf(ErrIncompleteFormula, "%s", name)
	}

	return nil
}

type Registry interface {
	Formula(ctx context.Context, name string) (*Formula, error)
	Download(ctx context.Context, url string, limit int64) ([]byte, error)
}

// HTTPRegistry talks to a formula API laid out like formulae.brew.sh:
// BaseURL + name + ".json".
type HTTPRegistry struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPRegistry(base string) *HTTPRegistry {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	return &HTTPRegistry{
		BaseURL: base,
		Client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

func (r *HTTPRegistry) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &RegistryError{URL: u, Err: err}
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, &RegistryError{URL: u, Err: err}
	}

	return resp, nil
}

func (r *HTTPRegistry) Formula(ctx context.Context, name string) (*Formula, error) {
	u := r.BaseURL + url.PathEscape(name) + ".json"

	log.L.Debug("kpm-fetch-formula", "url", u)

	resp, err := r.get(ctx, u)
	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.Wrapf(ErrUnknownPackage, "%s", name)
	case resp.StatusCode != http.StatusOK:
		return nil, &RegistryError{URL: u, Err: errors.New(resp.Status)}
	}

	var f Formula

	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return nil, &RegistryError{URL: u, Err: errors.Wrapf(err, "decoding formula %s", name)}
	}

	if err := f.validate(name); err != nil {
		return nil, err
	}

	return &f, nil
}

// Download fetches u, refusing bodies longer than limit bytes.
func (r *HTTPRegistry) Download(ctx context.Context, u string, limit int64) ([]byte, error) {
	log.L.Debug("kpm-download", "url", u)

	resp, err := r.get(ctx, u)
	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &RegistryError{URL: u, Err: errors.New(resp.Status)}
	}

	if resp.ContentLength > limit {
		return nil, errors.Wrapf(ErrArchiveTooLarge, "%s is %d bytes", u, resp.ContentLength)
	}

	return readLimited(resp.Body, limit, fmt.Sprintf("download %s", u))
}

func readLimited(r io.Reader, limit int64, what string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, errors.Wrap(err, what)
	}

	if int64(len(data)) > limit {
		return nil, errors.Wrapf(ErrArchiveTooLarge, "%s: more than %d bytes", what, limit)
	}

	return data, nil
}
