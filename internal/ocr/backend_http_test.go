package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPBackendDetect(t *testing.T) {
	var got httpOCRRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/readtext" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"text":"字幕","confidence":0.88,"bbox":[[0,0],[10,0],[10,5],[0,5]]}]}`))
	}))
	defer server.Close()

	b := NewHTTPBackend(HTTPBackendConfig{BaseURL: server.URL, Languages: []string{"ch_tra", "en"}})
	dets, err := b.Detect(context.Background(), testFrame(8, 8))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if got.Image == "" || len(got.Languages) != 2 {
		t.Errorf("unexpected request: %+v", got)
	}
	if len(dets) != 1 || dets[0].Text != "字幕" || dets[0].Lang != "ch_tra" || len(dets[0].BBox) != 4 {
		t.Errorf("detections = %+v", dets)
	}
	if b.Name() != "http:ch_tra+en" {
		t.Errorf("Name() = %q", b.Name())
	}
}

func TestHTTPBackendServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model not loaded"}`))
	}))
	defer server.Close()

	b := NewHTTPBackend(HTTPBackendConfig{BaseURL: server.URL})
	if _, err := b.Detect(context.Background(), testFrame(8, 8)); err == nil {
		t.Fatal("expected error for HTTP 500")
	}
}

func TestVLMBackendDetect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"text\":\"こんにちは\",\"confidence\":0.95,\"lang\":\"ja\"}"}}]}`))
	}))
	defer server.Close()

	b := NewVLMBackend(VLMBackendConfig{Model: "gpt-4o-mini", APIKey: "secret", BaseURL: server.URL + "/v1"})
	dets, err := b.Detect(context.Background(), testFrame(8, 8))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(dets) != 1 || dets[0].Text != "こんにちは" || dets[0].Lang != "ja" {
		t.Errorf("detections = %+v", dets)
	}
}
