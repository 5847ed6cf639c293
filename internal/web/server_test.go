package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/s0-meter/internal/meter"
	"github.com/sweeney/s0-meter/internal/status"
)

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		Backend:     "gpio17",
		Resolution:  1000,
		DebounceMs:  30,
		HeartbeatMs: 900000,
		Broker:      "tcp://192.168.1.200:1883",
		HTTPAddr:    ":8080",
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, tr
}

func TestIndexPage(t *testing.T) {
	ts, tr := newTestServer(t)

	tr.RecordReading(meter.Reading{Channel: meter.ChannelPower, Time: time.Now(), Value: 3600})
	tr.RecordReading(meter.Reading{Channel: meter.ChannelImpulse, Time: time.Now(), Value: 1})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	html := string(body)

	if !strings.Contains(html, "3600.0 W") {
		t.Errorf("page missing power value:\n%s", html)
	}
	if !strings.Contains(html, "gpio17") {
		t.Errorf("page missing backend name")
	}
	if !strings.Contains(html, "disconnected") {
		t.Errorf("page should show MQTT as disconnected")
	}
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t)

	tr.RecordReading(meter.Reading{Channel: meter.ChannelImpulse, Time: time.Now(), Value: 1})
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var decoded status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.Status.Counts.Impulses != 1 {
		t.Errorf("impulses = %d, want 1", decoded.Status.Counts.Impulses)
	}
	if !decoded.Status.MQTT.Connected {
		t.Error("mqtt.connected = false")
	}
}

func TestUnknownPathIs404(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
