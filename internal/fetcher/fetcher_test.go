package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teamcutter/gportal/internal/domain"
)

func TestFetch(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantErr    bool
	}{
		{name: "successful_download", statusCode: http.StatusOK, body: "archive bytes", wantErr: false},
		{name: "404_not_found", statusCode: http.StatusNotFound, body: "not found", wantErr: true},
		{name: "500_server_error", statusCode: http.StatusInternalServerError, body: "boom", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("User-Agent") != "gportal-test" {
					t.Errorf("unexpected User-Agent: %s", r.Header.Get("User-Agent"))
				}
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			dst := filepath.Join(t.TempDir(), "nested", "game.zip")
			f := New(5*time.Second, time.Second, "gportal-test")

			res := f.Fetch(context.Background(), server.URL, dst, nil)

			if tt.wantErr {
				if res.Error == nil {
					t.Fatal("expected error but got none")
				}
				if !errors.Is(res.Error, domain.ErrFetchFailed) {
					t.Errorf("error %v is not ErrFetchFailed", res.Error)
				}
				var fe *domain.FetchError
				if !errors.As(res.Error, &fe) || fe.StatusCode != tt.statusCode {
					t.Errorf("expected FetchError with status %d, got %v", tt.statusCode, res.Error)
				}
				return
			}

			if res.Error != nil {
				t.Fatalf("unexpected error: %v", res.Error)
			}
			if res.Bytes != int64(len(tt.body)) {
				t.Errorf("Bytes = %d, want %d", res.Bytes, len(tt.body))
			}
			content, err := os.ReadFile(dst)
			if err != nil {
				t.Fatal(err)
			}
			if string(content) != tt.body {
				t.Errorf("content = %q, want %q", content, tt.body)
			}
		})
	}
}

func TestFetchEmptyURL(t *testing.T) {
	f := New(time.Second, time.Second, "")
	res := f.Fetch(context.Background(), "", filepath.Join(t.TempDir(), "x.zip"), nil)
	if !errors.Is(res.Error, domain.ErrFetchFailed) {
		t.Errorf("expected ErrFetchFailed, got %v", res.Error)
	}
}

func TestFetchNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	f := New(time.Second, time.Second, "")
	res := f.Fetch(context.Background(), url, filepath.Join(t.TempDir(), "x.zip"), nil)
	if !errors.Is(res.Error, domain.ErrFetchFailed) {
		t.Errorf("expected ErrFetchFailed, got %v", res.Error)
	}
}

// slowServer writes the payload in chunks with pauses so several sampling
// intervals elapse during the transfer.
func slowServer(t *testing.T, chunks int, chunk []byte, pause time.Duration, withLength bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if withLength {
			w.Header().Set("Content-Length", strconv.Itoa(chunks*len(chunk)))
		}
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for range chunks {
			w.Write(chunk)
			flusher.Flush()
			time.Sleep(pause)
		}
	}))
}

func TestFetchSamplesPerInterval(t *testing.T) {
	chunk := []byte(strings.Repeat("x", 1024))
	server := slowServer(t, 10, chunk, 30*time.Millisecond, true)
	defer server.Close()

	var mu sync.Mutex
	var samples []domain.FetchSample

	f := New(5*time.Second, 50*time.Millisecond, "")
	res := f.Fetch(context.Background(), server.URL, filepath.Join(t.TempDir(), "g.zip"), func(s domain.FetchSample) {
		mu.Lock()
		samples = append(samples, s)
		mu.Unlock()
	})
	if res.Error != nil {
		t.Fatalf("unexpected error: %v", res.Error)
	}

	mu.Lock()
	defer mu.Unlock()

	if len(samples) == 0 {
		t.Fatal("expected at least one sample")
	}
	// one sample per interval, not per chunk
	if len(samples) >= 20 {
		t.Errorf("got %d samples, expected them bounded by the interval", len(samples))
	}
	for i, s := range samples {
		if s.Total != int64(10*len(chunk)) {
			t.Errorf("sample %d Total = %d", i, s.Total)
		}
		if i > 0 && s.Received < samples[i-1].Received {
			t.Errorf("sample %d went backwards", i)
		}
		if s.Speed < 0 {
			t.Errorf("sample %d negative speed", i)
		}
	}
}

func TestFetchUnknownLength(t *testing.T) {
	chunk := []byte(strings.Repeat("y", 512))
	server := slowServer(t, 6, chunk, 30*time.Millisecond, false)
	defer server.Close()

	var mu sync.Mutex
	var samples []domain.FetchSample

	f := New(5*time.Second, 40*time.Millisecond, "")
	res := f.Fetch(context.Background(), server.URL, filepath.Join(t.TempDir(), "g.zip"), func(s domain.FetchSample) {
		mu.Lock()
		samples = append(samples, s)
		mu.Unlock()
	})
	if res.Error != nil {
		t.Fatalf("unexpected error: %v", res.Error)
	}
	if res.Total != -1 {
		t.Errorf("Total = %d, want -1", res.Total)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, s := range samples {
		if s.Total != -1 {
			t.Errorf("sample Total = %d, want -1", s.Total)
		}
	}
}

func TestFetchNoSampleAfterReturn(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tiny"))
	}))
	defer server.Close()

	var mu sync.Mutex
	returned := false
	late := false

	f := New(time.Second, time.Millisecond, "")
	f.Fetch(context.Background(), server.URL, filepath.Join(t.TempDir(), "g.zip"), func(domain.FetchSample) {
		mu.Lock()
		if returned {
			late = true
		}
		mu.Unlock()
	})
	mu.Lock()
	returned = true
	mu.Unlock()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if late {
		t.Error("sample delivered after Fetch returned")
	}
}

func TestFetchCancelled(t *testing.T) {
	chunk := []byte(strings.Repeat("z", 1024))
	server := slowServer(t, 50, chunk, 20*time.Millisecond, true)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := New(5*time.Second, time.Second, "")
	res := f.Fetch(ctx, server.URL, filepath.Join(t.TempDir(), "g.zip"), nil)
	if !errors.Is(res.Error, domain.ErrFetchFailed) {
		t.Errorf("expected ErrFetchFailed on cancellation, got %v", res.Error)
	}
}
