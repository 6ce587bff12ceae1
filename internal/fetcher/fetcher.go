package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teamcutter/gportal/internal/domain"
)

const DefaultInterval = time.Second

type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	interval  time.Duration
}

func New(timeout, interval time.Duration, userAgent string) *HTTPFetcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		interval:  interval,
	}
}

// Fetch streams url into dst. onSample, if set, is called once per sampling
// interval from a single goroutine, and never after Fetch has returned.
// A partially written dst is left in place on failure.
func (f *HTTPFetcher) Fetch(ctx context.Context, url, dst string, onSample func(domain.FetchSample)) domain.FetchResult {
	fail := func(status int, err error) domain.FetchResult {
		return domain.FetchResult{
			URL:   url,
			Path:  dst,
			Total: -1,
			Error: &domain.FetchError{URL: url, StatusCode: status, Err: err},
		}
	}

	if url == "" {
		return fail(0, fmt.Errorf("empty url"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fail(0, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fail(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fail(resp.StatusCode, nil)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fail(0, err)
	}

	file, err := os.Create(dst)
	if err != nil {
		return fail(0, err)
	}
	defer file.Close()

	total := resp.ContentLength
	counter := &countingWriter{}

	stop := f.sample(counter, total, onSample)
	n, err := io.Copy(io.MultiWriter(file, counter), resp.Body)
	stop()

	if err != nil {
		return fail(0, err)
	}
	if err := file.Close(); err != nil {
		return fail(0, err)
	}

	return domain.FetchResult{URL: url, Path: dst, Bytes: n, Total: total}
}

// sample reports throughput every interval until the returned stop func is
// called. stop waits for the sampler goroutine to exit.
func (f *HTTPFetcher) sample(counter *countingWriter, total int64, onSample func(domain.FetchSample)) (stop func()) {
	if onSample == nil {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		var last int64
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				cur := counter.n.Load()
				onSample(domain.FetchSample{
					Received: cur,
					Total:    total,
					Speed:    float64(cur-last) / f.interval.Seconds(),
				})
				last = cur
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

type countingWriter struct {
	n atomic.Int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n.Add(int64(len(p)))
	return len(p), nil
}
