package update

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/retry"

	"github.com/adamancini/hatch/internal/release"
	"github.com/adamancini/hatch/internal/types"
	"github.com/adamancini/hatch/internal/updateerr"
)

const (
	// manifestAttempts is how many times a remote manifest fetch is tried.
	manifestAttempts = 3
	manifestDelay    = 500 * time.Millisecond
	manifestMaxDelay = 4 * time.Second

	userAgent = "hatch"
)

// SourceConfig holds what NewSource needs besides the endpoint.
type SourceConfig struct {
	Client *http.Client
	Clock  clock.Clock
	Logger loggo.Logger
}

// NewSource returns the Source for endpoint. HTTP(S) URLs are read over the
// network, anything else is a local directory.
func NewSource(endpoint string, cfg SourceConfig) Source {
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if types.DetectTransport(endpoint).IsHTTP() {
		client := cfg.Client
		if client == nil {
			client = &http.Client{Timeout: 5 * time.Minute}
		}
		return &HTTPSource{
			endpoint: strings.TrimSuffix(endpoint, "/"),
			client:   client,
			clock:    cfg.Clock,
			logger:   cfg.Logger,
			delay:    manifestDelay,
		}
	}
	return &LocalSource{root: localPath(endpoint)}
}

func localPath(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && strings.EqualFold(u.Scheme, "file") {
		return filepath.FromSlash(u.Path)
	}
	return endpoint
}

// HTTPSource reads releases from an HTTP(S) origin.
type HTTPSource struct {
	endpoint string
	client   *http.Client
	clock    clock.Clock
	logger   loggo.Logger
	// delay is the first pause between manifest attempts.
	delay time.Duration
}

// String returns the endpoint URL.
func (s *HTTPSource) String() string {
	return s.endpoint
}

// ManifestURL returns the URL of the remote manifest for q.
func (s *HTTPSource) ManifestURL(q ManifestQuery) (string, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return "", errors.Annotatef(err, "parsing endpoint %q", s.endpoint)
	}
	u = u.JoinPath(types.ManifestFileName)
	values := u.Query()
	if q.StagingID != "" {
		values.Set("id", q.StagingID)
	}
	if q.LocalVersion != "" {
		values.Set("localVersion", q.LocalVersion)
	}
	if q.Arch != "" {
		values.Set("arch", q.Arch)
	}
	u.RawQuery = values.Encode()
	return u.String(), nil
}

// FetchManifest downloads the remote manifest, retrying transient failures.
func (s *HTTPSource) FetchManifest(ctx context.Context, q ManifestQuery) (string, error) {
	manifestURL, err := s.ManifestURL(q)
	if err != nil {
		return "", errors.Trace(err)
	}

	var body []byte
	err = retry.Call(retry.CallArgs{
		Func: func() error {
			var err error
			body, err = s.get(ctx, manifestURL)
			return err
		},
		IsFatalError: func(err error) bool {
			return !updateerr.IsRetryable(err)
		},
		NotifyFunc: func(err error, attempt int) {
			s.logger.Debugf("fetching %s, attempt %d: %v", manifestURL, attempt, err)
		},
		Attempts:    manifestAttempts,
		Delay:       s.delay,
		MaxDelay:    manifestMaxDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       s.clock,
		Stop:        ctx.Done(),
	})
	if err != nil {
		return "", errors.Annotatef(retry.LastError(err), "fetching %s", manifestURL)
	}
	return string(body), nil
}

func (s *HTTPSource) get(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := s.do(ctx, rawURL)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Annotate(updateerr.ErrTransientTransport, err.Error())
	}
	return body, nil
}

func (s *HTTPSource) do(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Trace(ctx.Err())
		}
		return nil, errors.Annotate(updateerr.ErrTransientTransport, err.Error())
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return nil, errors.Annotatef(updateerr.ErrTransientTransport, "GET %s returned %s", rawURL, resp.Status)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.NotFoundf("%s", rawURL)
	}
	return nil, errors.Errorf("GET %s returned %s", rawURL, resp.Status)
}

// ArtifactURL returns the URL entry is downloaded from.
func (s *HTTPSource) ArtifactURL(entry release.Entry) string {
	base := s.endpoint
	if entry.BaseURL != "" {
		base = strings.TrimSuffix(entry.BaseURL, "/")
	}
	return base + "/" + url.PathEscape(entry.Filename) + entry.Query
}

// Open starts the download of entry.
func (s *HTTPSource) Open(ctx context.Context, entry release.Entry) (io.ReadCloser, int64, error) {
	resp, err := s.do(ctx, s.ArtifactURL(entry))
	if err != nil {
		return nil, 0, errors.Annotatef(err, "downloading %s", entry.Filename)
	}
	return resp.Body, resp.ContentLength, nil
}

// LocalSource reads releases from a directory, such as a network share.
type LocalSource struct {
	root string
}

// String returns the directory path.
func (s *LocalSource) String() string {
	return s.root
}

// FetchManifest reads the manifest file in the source directory.
func (s *LocalSource) FetchManifest(_ context.Context, _ ManifestQuery) (string, error) {
	path := filepath.Join(s.root, types.ManifestFileName)
	//nolint:gosec // G304: endpoint path comes from configuration
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", errors.NotFoundf("release manifest %s", path)
	}
	if err != nil {
		return "", errors.Annotatef(err, "reading %s", path)
	}
	return string(data), nil
}

// Open opens the artifact for entry. A local source ignores query suffixes. An
// entry with its own base URL is read from there.
func (s *LocalSource) Open(ctx context.Context, entry release.Entry) (io.ReadCloser, int64, error) {
	if entry.BaseURL != "" && types.DetectTransport(entry.BaseURL).IsHTTP() {
		remote := NewSource(entry.BaseURL, SourceConfig{})
		return remote.Open(ctx, release.Entry{Filename: entry.Filename, Query: entry.Query})
	}
	dir := s.root
	if entry.BaseURL != "" {
		dir = localPath(entry.BaseURL)
	}
	path := filepath.Join(dir, entry.Filename)
	//nolint:gosec // G304: endpoint path comes from configuration
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.Annotatef(err, "opening %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, errors.Trace(err)
	}
	return f, info.Size(), nil
}
