package imagefetch

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

// ErrUnavailable wraps every fetch or decode failure. Callers degrade to a placeholder.
var ErrUnavailable = errors.New("image unavailable")

// Fetcher loads and decodes an image source.
type Fetcher interface {
	Fetch(ctx context.Context, source string) (image.Image, error)
}

// ObjectOpener reads an object by key from object storage.
type ObjectOpener interface {
	OpenObject(ctx context.Context, key string) (io.ReadCloser, error)
}

// Options configures a Client.
type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	MaxBytes   int64
	// MaxPixels bounds width*height of a decoded image.
	MaxPixels int64
	LocalRoot string
	Objects   ObjectOpener
	Logger    *slog.Logger
}

const (
	defaultMaxBytes  = 10 << 20
	defaultMaxPixels = 40_000_000
)

// Client fetches http(s) URLs, data URIs, object keys ("s3://key", "minio://key", or a bare key
// when object storage is configured) and files under LocalRoot ("file://path" or "/path").
type Client struct {
	http      *http.Client
	timeout   time.Duration
	maxBytes  int64
	maxPixels int64
	localRoot string
	objects   ObjectOpener
	logger    *slog.Logger
}

// New builds a Client.
func New(opts Options) *Client {
	c := &Client{
		http:      opts.HTTPClient,
		timeout:   opts.Timeout,
		maxBytes:  opts.MaxBytes,
		maxPixels: opts.MaxPixels,
		localRoot: strings.TrimSpace(opts.LocalRoot),
		objects:   opts.Objects,
		logger:    opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.maxBytes <= 0 {
		c.maxBytes = defaultMaxBytes
	}
	if c.maxPixels <= 0 {
		c.maxPixels = defaultMaxPixels
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Fetch implements Fetcher. Every error wraps ErrUnavailable.
func (c *Client) Fetch(ctx context.Context, source string) (image.Image, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("%w: empty source", ErrUnavailable)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	data, err := c.read(ctx, source)
	if err != nil {
		c.logger.Debug("image fetch failed", slog.String("source", source), slog.Any("error", err))
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, source, err)
	}
	// Check the declared size before allocating the bitmap.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: decode image: %v", ErrUnavailable, source, err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > c.maxPixels {
		return nil, fmt.Errorf("%w: %s: image is %dx%d, more than %d pixels", ErrUnavailable, source, cfg.Width, cfg.Height, c.maxPixels)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: decode image: %v", ErrUnavailable, source, err)
	}
	return img, nil
}

func (c *Client) read(ctx context.Context, source string) ([]byte, error) {
	lower := strings.ToLower(source)
	switch {
	case strings.HasPrefix(lower, "data:"):
		return decodeDataURI(source)
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return c.readHTTP(ctx, source)
	case strings.HasPrefix(lower, "s3://"), strings.HasPrefix(lower, "minio://"):
		return c.readObject(ctx, source[strings.Index(source, "://")+3:])
	case strings.HasPrefix(lower, "file://"):
		return c.readLocal(source[len("file://"):])
	case strings.HasPrefix(source, "/") && c.localRoot != "":
		return c.readLocal(source)
	case c.objects != nil:
		return c.readObject(ctx, source)
	default:
		return c.readLocal(source)
	}
}

func (c *Client) readHTTP(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return c.readLimited(resp.Body)
}

func (c *Client) readObject(ctx context.Context, key string) ([]byte, error) {
	if c.objects == nil {
		return nil, errors.New("object storage is not configured")
	}
	key = strings.TrimLeft(key, "/")
	rc, err := c.objects.OpenObject(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	defer rc.Close()
	return c.readLimited(rc)
}

func (c *Client) readLocal(path string) ([]byte, error) {
	if c.localRoot == "" {
		return nil, errors.New("local image root is not configured")
	}
	root, err := filepath.Abs(c.localRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve image root: %w", err)
	}
	full := filepath.Join(root, filepath.Clean("/"+path))
	rel, err := filepath.Rel(root, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, errors.New("path escapes image root")
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return c.readLimited(f)
}

func (c *Client) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("image larger than %d bytes", c.maxBytes)
	}
	return data, nil
}

func decodeDataURI(uri string) ([]byte, error) {
	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return nil, errors.New("malformed data uri")
	}
	meta, payload := uri[len("data:"):comma], uri[comma+1:]
	if !strings.HasSuffix(strings.ToLower(meta), ";base64") {
		return nil, errors.New("data uri must be base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return data, nil
}

// Result is the outcome of one fetch in FetchAll.
type Result struct {
	Image image.Image
	Err   error
}

// FetchAll fetches distinct sources with at most limit concurrent requests. Individual
// failures are reported per source and never cancel the others.
func FetchAll(ctx context.Context, f Fetcher, sources []string, limit int) map[string]Result {
	unique := make([]string, 0, len(sources))
	seen := map[string]struct{}{}
	for _, s := range sources {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		unique = append(unique, s)
	}

	results := make([]Result, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, src := range unique {
		g.Go(func() error {
			img, err := f.Fetch(gctx, src)
			results[i] = Result{Image: img, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]Result, len(unique))
	for i, src := range unique {
		out[src] = results[i]
	}
	return out
}
