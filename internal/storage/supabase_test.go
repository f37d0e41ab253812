package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSupabaseUploaderUpload(t *testing.T) {
	var gotPath, gotType, gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"Key":"audio-recordings/x.mp3"}`))
	}))
	defer srv.Close()

	u := NewSupabaseUploader(srv.URL+"/", "svc", "audio-recordings")
	url, err := u.Upload(context.Background(), "conversation_abc_1.mp3", "audio/mpeg", bytes.NewReader([]byte("mp3")))
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	if gotPath != "/storage/v1/object/audio-recordings/conversation_abc_1.mp3" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotType != "audio/mpeg" {
		t.Fatalf("unexpected content type %s", gotType)
	}
	if gotAuth != "Bearer svc" {
		t.Fatalf("unexpected auth header %s", gotAuth)
	}
	if string(gotBody) != "mp3" {
		t.Fatalf("unexpected body %q", gotBody)
	}
	want := srv.URL + "/storage/v1/object/public/audio-recordings/conversation_abc_1.mp3"
	if url != want {
		t.Fatalf("expected %s, got %s", want, url)
	}
}

func TestSupabaseUploaderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bucket not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	u := NewSupabaseUploader(srv.URL, "svc", "missing")
	if _, err := u.Upload(context.Background(), "a.mp3", "audio/mpeg", bytes.NewReader(nil)); err == nil {
		t.Fatalf("expected error for non-2xx upload")
	}
}
