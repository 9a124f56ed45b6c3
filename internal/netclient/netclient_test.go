package netclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
)

func fastClient(timeout time.Duration) *Client {
	c := New(timeout)
	c.backoff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = time.Millisecond
		b.MaxInterval = 5 * time.Millisecond
		return b
	}
	return c
}

func TestDownloadRetriesOn500ThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	c := fastClient(5 * time.Second)

	var buf bytes.Buffer
	if err := c.Download(context.Background(), srv.URL, &buf); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if buf.String() != "payload" {
		t.Errorf("body = %q, want %q", buf.String(), "payload")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestDownloadPermanentOn4xxDoesNotRetry(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := fastClient(5 * time.Second)

	var buf bytes.Buffer
	if err := c.Download(context.Background(), srv.URL, &buf); err == nil {
		t.Fatal("expected error on 404")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (permanent error must not retry)", attempts)
	}
}

func TestUploadSucceeds(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := fastClient(5 * time.Second)
	if err := c.Upload(context.Background(), srv.URL, bytes.NewReader([]byte("bundle"))); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if string(gotBody) != "bundle" {
		t.Errorf("server received %q, want %q", gotBody, "bundle")
	}
}

func TestPollWaitsForCompletion(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 2 {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		w.Write([]byte(`{"verdict":"clean"}`))
	}))
	defer srv.Close()

	c := fastClient(5 * time.Second)
	result, err := c.Poll(context.Background(), srv.URL, time.Millisecond)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !result.Done {
		t.Fatal("result.Done = false, want true")
	}
	if string(result.Body) != `{"verdict":"clean"}` {
		t.Errorf("body = %q", result.Body)
	}
}
