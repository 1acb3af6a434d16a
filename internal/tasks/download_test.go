package tasks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/desertthunder/beatq/internal/shared"
	tu "github.com/desertthunder/beatq/internal/testing"
)

func TestHTTPFetcher(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		header := http.Header{"Content-Type": []string{"audio/webm"}}
		client := &http.Client{Transport: tu.NewMockRoundTripper(tu.NewResponse(http.StatusOK, "audio", header), nil)}

		stream, err := NewHTTPFetcher(client).Fetch(ctx, "https://media.test/v1")
		if err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}
		defer stream.Body.Close()

		if stream.Size != 5 || stream.ContentType != "audio/webm" {
			t.Errorf("unexpected stream: size=%d type=%q", stream.Size, stream.ContentType)
		}
		body, _ := io.ReadAll(stream.Body)
		if string(body) != "audio" {
			t.Errorf("expected body %q, got %q", "audio", body)
		}
	})

	tc := []struct {
		name string
		resp *http.Response
		err  error
	}{
		{name: "Forbidden", resp: tu.NewResponse(http.StatusForbidden, "expired", nil)},
		{name: "Not Found", resp: tu.NewResponse(http.StatusNotFound, "", nil)},
		{name: "Transport Error", err: errors.New("connection refused")},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			client := &http.Client{Transport: tu.NewMockRoundTripper(tt.resp, tt.err)}
			_, err := NewHTTPFetcher(client).Fetch(ctx, "https://media.test/v1")
			if !errors.Is(err, shared.ErrDownloadFailed) {
				t.Errorf("expected ErrDownloadFailed, got %v", err)
			}
		})
	}

	t.Run("Default Client", func(t *testing.T) {
		if f := NewHTTPFetcher(nil); f.client != http.DefaultClient {
			t.Error("expected default client")
		}
	})
}

func TestProgressReader(t *testing.T) {
	t.Run("Reports Every Read With Zero Interval", func(t *testing.T) {
		var reports [][2]int64
		pr := newProgressReader(strings.NewReader("abcdefgh"), 8, 0, func(n, total int64) {
			reports = append(reports, [2]int64{n, total})
		})

		buf := make([]byte, 3)
		for {
			if _, err := pr.Read(buf); err != nil {
				break
			}
		}

		if pr.n != 8 {
			t.Errorf("expected 8 bytes counted, got %d", pr.n)
		}
		if len(reports) == 0 || reports[len(reports)-1][0] != 8 || reports[0][1] != 8 {
			t.Errorf("unexpected reports: %v", reports)
		}
		if pr.err != nil {
			t.Errorf("EOF must not be recorded, got %v", pr.err)
		}
	})

	t.Run("Throttles Reports", func(t *testing.T) {
		calls := 0
		pr := newProgressReader(strings.NewReader(strings.Repeat("x", 64)), 64, 1<<62, func(int64, int64) { calls++ })
		if _, err := io.Copy(io.Discard, pr); err != nil {
			t.Fatalf("copy failed: %v", err)
		}
		if calls != 0 {
			t.Errorf("expected no reports inside the interval, got %d", calls)
		}
	})

	t.Run("Records Source Error", func(t *testing.T) {
		pr := newProgressReader(&tu.FCloser{}, -1, 0, nil)
		if _, err := io.Copy(io.Discard, pr); err == nil {
			t.Fatal("expected copy error")
		}
		if pr.err == nil || pr.err.Error() != "read failed" {
			t.Errorf("expected recorded read error, got %v", pr.err)
		}
	})
}
