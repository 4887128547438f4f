package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dokzlo13/relayd/internal/agent"
)

func TestLocalAddr(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"0.0.0.0", "127.0.0.1:8080"},
		{"", "127.0.0.1:8080"},
		{"::", "127.0.0.1:8080"},
		{"192.168.4.1", "192.168.4.1:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			if got := localAddr(tt.host, 8080); got != tt.want {
				t.Errorf("localAddr(%q) = %q, want %q", tt.host, got, tt.want)
			}
		})
	}
}

func TestFetchAndPrintStatus(t *testing.T) {
	on := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(agent.Snapshot{
			Phase:          "synchronized",
			SSID:           "home",
			DeviceID:       7,
			RelayOn:        true,
			DesiredOn:      &on,
			PollIntervalMs: 2000,
			LastErrors:     map[string]string{"telemetry": "timeout"},
		})
	}))
	defer srv.Close()

	snap, err := fetchStatus(context.Background(), strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatalf("fetchStatus() error = %v", err)
	}

	var buf bytes.Buffer
	printStatus(&buf, snap)
	out := buf.String()

	for _, want := range []string{"synchronized", "home", "device id:", "7", "poll interval:", "2s", "error telemetry:", "timeout"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFetchStatusNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := fetchStatus(context.Background(), strings.TrimPrefix(srv.URL, "http://")); err == nil {
		t.Fatal("expected error for 503")
	}
}
