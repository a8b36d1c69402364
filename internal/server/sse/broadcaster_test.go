package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/leadsync/internal/notify"
)

func readUntil(t *testing.T, lines <-chan string, prefix string) string {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatalf("stream ended before %q", prefix)
			}
			if strings.HasPrefix(line, prefix) {
				return line
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q", prefix)
		}
	}
}

func stream(t *testing.T, url string) <-chan string {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream, got %q", ct)
	}

	lines := make(chan string, 32)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return lines
}

// TestBroadcaster_StreamsEvents tests delivery and filtering.
func TestBroadcaster_StreamsEvents(t *testing.T) {
	logger := zerolog.Nop()
	broker := notify.NewBroker(&logger)
	defer func() { _ = broker.Close() }()
	b := NewBroadcaster(broker, "", &logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close) // after the stream cleanups close their bodies

	all := stream(t, srv.URL)
	updates := stream(t, srv.URL+"?kind=record_updated&client=tab-9")
	readUntil(t, all, "event: connected")
	readUntil(t, updates, "event: connected")

	deadline := time.Now().Add(2 * time.Second)
	for b.ClientCount() != 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	publish := func(kind notify.Kind, id, origin string) {
		e := notify.NewEvent(kind, []byte(`{}`), id)
		e.Origin = origin
		if err := broker.Publish(context.Background(), "leadsync.records", e); err != nil {
			t.Fatal(err)
		}
	}
	publish(notify.KindNewRecord, "s1", "")
	publish(notify.KindRecordUpdated, "s2", "tab-9")
	publish(notify.KindRecordUpdated, "s3", "")

	readUntil(t, all, "event: NEW_RECORD")
	if got := readUntil(t, all, "id:"); got != "id: s1" {
		t.Errorf("expected id s1, got %q", got)
	}
	readUntil(t, all, "data: ")

	readUntil(t, updates, "event: RECORD_UPDATED")
	if got := readUntil(t, updates, "id:"); got != "id: s3" {
		t.Errorf("filtered stream should skip its own and other kinds, got %q", got)
	}
}

// TestBroadcaster_ShutdownEndsStreams tests Run cancellation.
func TestBroadcaster_ShutdownEndsStreams(t *testing.T) {
	logger := zerolog.Nop()
	broker := notify.NewBroker(&logger)
	defer func() { _ = broker.Close() }()
	b := NewBroadcaster(broker, "leadsync.records", &logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { b.Run(ctx); close(done) }()

	srv := httptest.NewServer(b)
	defer srv.Close()

	lines := stream(t, srv.URL)
	readUntil(t, lines, "event: connected")

	cancel()
	<-done

	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-lines:
			if !ok {
				if n := b.ClientCount(); n != 0 {
					t.Errorf("expected no clients after shutdown, got %d", n)
				}
				return
			}
		case <-timeout:
			t.Fatal("stream not closed on shutdown")
		}
	}
}
