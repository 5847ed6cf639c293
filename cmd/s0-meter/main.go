// Command s0-meter reads impulses from an S0 energy meter and publishes
// the derived power and impulse readings to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/s0-meter/internal/config"
	"github.com/sweeney/s0-meter/internal/meter"
	"github.com/sweeney/s0-meter/internal/mqtt"
	"github.com/sweeney/s0-meter/internal/source"
	"github.com/sweeney/s0-meter/internal/status"
	"github.com/sweeney/s0-meter/internal/web"
)

func main() {
	cfgPath := flag.String("config", "/etc/s0-meter.toml", "path to the TOML configuration file")
	once := flag.Bool("once", false, "wait for two impulses, print the readings and exit")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if err := run(cfg, *once); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg *config.Config, once bool) error {
	src, err := cfg.NewSource()
	if err != nil {
		return fmt.Errorf("configure impulse source: %w", err)
	}
	m, err := meter.New(src, cfg.Resolution, cfg.DebounceDelay)
	if err != nil {
		return err
	}
	if err := m.Open(); err != nil {
		return fmt.Errorf("open %s: %w", cfg.Backend(), err)
	}
	defer m.Close()

	// Wiring-check mode: no MQTT, no HTTP, just impulses on stdout.
	if once {
		return readOnce(m)
	}

	publisher, err := mqtt.NewRealPublisher(cfg.Broker)
	if err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	defer publisher.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		Backend:     cfg.Backend(),
		Resolution:  cfg.Resolution,
		DebounceMs:  cfg.DebounceDelay.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.Broker,
		HTTPAddr:    cfg.HTTPAddr,
	})

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTPAddr)
	}

	log.Printf("started: backend=%s resolution=%d debounce=%v broker=%s",
		cfg.Backend(), cfg.Resolution, cfg.DebounceDelay, cfg.Broker)

	// The meter blocks until an impulse arrives, so reading happens in
	// its own goroutine feeding the event loop.
	readings := make(chan []meter.Reading)
	readErr := make(chan error, 1)
	go readLoop(m, readings, readErr, time.Second)

	var tick <-chan time.Time
	if cfg.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.Heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(tracker, publisher, publisher, readings, readErr, tick, sigCh)
}

func readOnce(m *meter.Meter) error {
	buf := make([]meter.Reading, 2)
	for i := 0; i < 2; i++ {
		n, err := m.Read(buf)
		if err != nil {
			return fmt.Errorf("read impulse: %w", err)
		}
		for _, r := range buf[:n] {
			fmt.Printf("%s %s %g\n", r.Time.Format(time.RFC3339Nano), r.Channel, r.Value)
		}
	}
	return nil
}

// maxConsecutiveReadErrors bounds how long a flapping device is retried
// before the daemon gives up.
const maxConsecutiveReadErrors = 10

// readLoop reads impulses until the meter reports a setup error or
// fails repeatedly. Each batch
// of readings (one or two, depending on the state machine) is sent as a
// unit so power and impulse stay together.
func readLoop(m *meter.Meter, out chan<- []meter.Reading, fatal chan<- error, retryDelay time.Duration) {
	consecutive := 0
	for {
		buf := make([]meter.Reading, 2)
		n, err := m.Read(buf)
		if err != nil {
			var se *source.SetupError
			if errors.As(err, &se) {
				fatal <- err
				return
			}
			consecutive++
			log.Printf("read error (%d/%d): %v", consecutive, maxConsecutiveReadErrors, err)
			if consecutive >= maxConsecutiveReadErrors {
				fatal <- fmt.Errorf("giving up after %d consecutive read errors: %w", consecutive, err)
				return
			}
			time.Sleep(retryDelay)
			continue
		}
		consecutive = 0
		if n > 0 {
			out <- buf[:n]
		}
	}
}

func runLoop(tracker *status.Tracker, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, readings <-chan []meter.Reading, readErr <-chan error, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			publishShutdown(tracker, publisher, mqttStatus, signalName)
			return nil

		case err := <-readErr:
			publishShutdown(tracker, publisher, mqttStatus, "READ_FAILURE")
			return err

		case rds := <-readings:
			for _, r := range rds {
				log.Printf("reading: %s=%g", r.Channel, r.Value)
				tracker.RecordReading(r)
				if err := publisher.Publish(r); err != nil {
					log.Printf("publish error: %v", err)
				}
			}
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}

		case <-tick:
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
			snap := tracker.Snapshot()
			log.Printf("heartbeat: uptime=%v impulses=%d impulses_neg=%d power=%.1fW",
				snap.Uptime().Truncate(time.Second), snap.Counts.Impulses, snap.Counts.ImpulsesNeg, snap.LastPowerW)
			hbEvent := mqtt.SystemEvent{
				Timestamp:  snap.Now,
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}

func publishShutdown(tracker *status.Tracker, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, reason string) {
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
	snap := tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "SHUTDOWN",
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
	}
	if err := publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish shutdown event: %v", err)
	} else {
		log.Printf("published shutdown event")
	}
}
