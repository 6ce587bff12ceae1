package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/teamcutter/gportal/internal/domain"
)

func ev(n int64, status domain.Status) domain.ProgressEvent {
	return domain.ProgressEvent{JobID: "job", Status: status, DownloadedBytes: n}
}

func TestStreamPreservesOrder(t *testing.T) {
	s := NewStream(8)
	for i := range 5 {
		s.Publish(ev(int64(i), domain.StatusDownloading))
	}
	s.Close()

	var got []int64
	for e := range s.All(context.Background()) {
		got = append(got, e.DownloadedBytes)
	}

	if len(got) != 5 {
		t.Fatalf("got %d events, want 5", len(got))
	}
	for i, n := range got {
		if n != int64(i) {
			t.Errorf("event %d = %d, want %d", i, n, i)
		}
	}
}

func TestStreamDropsOldest(t *testing.T) {
	s := NewStream(3)
	for i := range 10 {
		s.Publish(ev(int64(i), domain.StatusDownloading))
	}
	s.Publish(ev(100, domain.StatusComplete))
	s.Close()

	if s.Dropped() != 8 {
		t.Errorf("Dropped() = %d, want 8", s.Dropped())
	}

	var got []domain.ProgressEvent
	for e := range s.All(context.Background()) {
		got = append(got, e)
	}

	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	if got[0].DownloadedBytes != 8 || got[1].DownloadedBytes != 9 {
		t.Errorf("unexpected survivors: %+v", got)
	}
	if got[2].Status != domain.StatusComplete {
		t.Errorf("terminal event lost, last = %+v", got[2])
	}
}

func TestStreamPublishNeverBlocks(t *testing.T) {
	s := NewStream(1)
	done := make(chan struct{})
	go func() {
		for i := range 10000 {
			s.Publish(ev(int64(i), domain.StatusDownloading))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a stream nobody reads")
	}
}

func TestStreamNextRespectsContext(t *testing.T) {
	s := NewStream(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, ok := s.Next(ctx); ok {
		t.Error("expected Next to give up when ctx expires")
	}
}

func TestStreamConcurrentConsumer(t *testing.T) {
	s := NewStream(1024)
	var wg sync.WaitGroup
	var got []int64

	wg.Add(1)
	go func() {
		defer wg.Done()
		for e := range s.All(context.Background()) {
			got = append(got, e.DownloadedBytes)
		}
	}()

	for i := range 100 {
		s.Publish(ev(int64(i), domain.StatusDownloading))
	}
	s.Close()
	wg.Wait()

	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Fatalf("out of order at %d: %v", i, got)
		}
	}
	if len(got) != 100 {
		t.Errorf("got %d events, want 100", len(got))
	}
}

func TestPublishAfterCloseIsIgnored(t *testing.T) {
	s := NewStream(2)
	s.Close()
	s.Publish(ev(1, domain.StatusDownloading))
	if s.Len() != 0 {
		t.Errorf("Len() = %d after publish on closed stream", s.Len())
	}
}

func TestHubFansOut(t *testing.T) {
	h := NewHub(4)
	a := h.Subscribe()
	b := h.Subscribe()

	h.Publish(ev(1, domain.StatusDownloading))
	h.Publish(ev(2, domain.StatusComplete))
	h.Close()

	for name, s := range map[string]*Stream{"a": a, "b": b} {
		var n int
		for range s.All(context.Background()) {
			n++
		}
		if n != 2 {
			t.Errorf("subscriber %s got %d events, want 2", name, n)
		}
	}

	late := h.Subscribe()
	if _, ok := late.Next(context.Background()); ok {
		t.Error("subscriber on a closed hub should be closed")
	}
}

func TestHubUnsubscribe(t *testing.T) {
	h := NewHub(4)
	a := h.Subscribe()
	h.Unsubscribe(a)
	h.Publish(ev(1, domain.StatusDownloading))

	if a.Len() != 0 {
		t.Errorf("unsubscribed stream received %d events", a.Len())
	}
}
