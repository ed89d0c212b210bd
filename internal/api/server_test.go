package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ThinkFoundation/thinkos-ingest/internal/events"
	"github.com/ThinkFoundation/thinkos-ingest/internal/history"
	"github.com/ThinkFoundation/thinkos-ingest/internal/upload"
)

type fakeUploader struct {
	result upload.Result
	done   chan string
}

func (f *fakeUploader) Upload(_ context.Context, uploadID, _ string) upload.Result {
	if f.done != nil {
		defer func() { f.done <- uploadID }()
	}
	return f.result
}

func newTestServer(t *testing.T, uploader Uploader) (*Server, *history.Log) {
	t.Helper()
	journal, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { journal.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(logger, uploader, events.NewBus(100), journal), journal
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func waitFinished(t *testing.T, journal *history.Log, id string) history.Attempt {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		attempt, err := journal.Get(context.Background(), id)
		if err == nil && attempt.Status != history.StatusRunning {
			return attempt
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("attempt %s never finished", id)
	return history.Attempt{}
}

func TestStartUploadAcceptedAndJournaled(t *testing.T) {
	uploader := &fakeUploader{
		result: upload.Result{RecordID: 9, Success: true},
		done:   make(chan string, 1),
	}
	srv, journal := newTestServer(t, uploader)

	req := httptest.NewRequest(http.MethodPost, "/api/uploads",
		strings.NewReader(`{"path": "/downloads/movie.mp4"}`))
	resp := httptest.NewRecorder()
	srv.ServeHTTP(resp, req)

	if resp.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.Code)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	id := body["uploadId"]
	if id == "" {
		t.Fatalf("no upload id in %v", body)
	}

	<-uploader.done
	attempt := waitFinished(t, journal, id)
	if attempt.Status != history.StatusDone || attempt.RecordID != 9 {
		t.Fatalf("attempt = %+v", attempt)
	}
}

func TestStartUploadFailureRecordsError(t *testing.T) {
	uploader := &fakeUploader{
		result: upload.Result{ErrorMessage: "upload audio: http 500"},
		done:   make(chan string, 1),
	}
	srv, journal := newTestServer(t, uploader)

	req := httptest.NewRequest(http.MethodPost, "/api/uploads",
		strings.NewReader(`{"path": "/downloads/movie.mp4"}`))
	resp := httptest.NewRecorder()
	srv.ServeHTTP(resp, req)

	var body map[string]string
	decodeBody(t, resp, &body)
	<-uploader.done

	attempt := waitFinished(t, journal, body["uploadId"])
	if attempt.Status != history.StatusError || attempt.Error != "upload audio: http 500" {
		t.Fatalf("attempt = %+v", attempt)
	}
}

func TestStartUploadRejectsBadRequests(t *testing.T) {
	srv, _ := newTestServer(t, &fakeUploader{})

	cases := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"no path", `{}`},
		{"bad json", `{"path": `},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/uploads", strings.NewReader(tc.body))
			resp := httptest.NewRecorder()
			srv.ServeHTTP(resp, req)
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.Code)
			}
		})
	}
}

func TestGetUnknownUpload(t *testing.T) {
	srv, _ := newTestServer(t, &fakeUploader{})
	req := httptest.NewRequest(http.MethodGet, "/api/uploads/nope", nil)
	resp := httptest.NewRecorder()
	srv.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.Code)
	}
}

func TestListUploadsEmpty(t *testing.T) {
	srv, _ := newTestServer(t, &fakeUploader{})
	req := httptest.NewRequest(http.MethodGet, "/api/uploads", nil)
	resp := httptest.NewRecorder()
	srv.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Code)
	}
	var body map[string][]history.Attempt
	decodeBody(t, resp, &body)
	if body["uploads"] == nil || len(body["uploads"]) != 0 {
		t.Fatalf("uploads = %v, want empty list", body)
	}
}

func TestEventsSince(t *testing.T) {
	srv, _ := newTestServer(t, &fakeUploader{})
	first := srv.bus.Publish(events.Event{UploadID: "a", Status: "getting_metadata"})
	srv.bus.Publish(events.Event{UploadID: "a", Status: "done", Percent: 100})

	req := httptest.NewRequest(http.MethodGet,
		"/api/events?since="+strconv.FormatInt(first.Seq, 10), nil)
	resp := httptest.NewRecorder()
	srv.ServeHTTP(resp, req)

	var body map[string][]events.Event
	decodeBody(t, resp, &body)
	got := body["events"]
	if len(got) != 1 || got[0].Status != "done" {
		t.Fatalf("events = %+v, want only the done event", got)
	}
}
