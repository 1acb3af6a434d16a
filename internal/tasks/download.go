package tasks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/desertthunder/beatq/internal/shared"
)

const userAgent = "beatq/1.0"

// Stream is an open download body.
type Stream struct {
	Body        io.ReadCloser
	Size        int64 // -1 when unknown
	ContentType string
}

// Fetcher opens a resolved stream URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Stream, error)
}

// HTTPFetcher fetches streams over HTTP.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher, using [http.DefaultClient] when client is nil.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client}
}

// Fetch issues a GET for url. Any status other than 200 is an error.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrDownloadFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d", shared.ErrDownloadFailed, resp.StatusCode)
	}

	return &Stream{Body: resp.Body, Size: resp.ContentLength, ContentType: resp.Header.Get("Content-Type")}, nil
}

// progressReader counts bytes read and reports them at most once per interval.
type progressReader struct {
	r        io.Reader
	n        int64
	total    int64
	interval time.Duration
	last     time.Time
	report   func(n, total int64)
	err      error // first non-EOF read error, so callers can tell source failures from sink failures
}

func newProgressReader(r io.Reader, total int64, interval time.Duration, report func(n, total int64)) *progressReader {
	return &progressReader{r: r, total: total, interval: interval, last: time.Now(), report: report}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.n += int64(n)
	if err != nil && err != io.EOF && p.err == nil {
		p.err = err
	}
	if p.report != nil && time.Since(p.last) >= p.interval {
		p.last = time.Now()
		p.report(p.n, p.total)
	}
	return n, err
}
