package ingestor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"shuttletrack/internal/domain"
	"shuttletrack/internal/engine"
)

// Replay feeds recorded geolocation events from a JSONL file through
// the tracker, one event per line, paced by a fixed interval. It exists
// for local development and load testing when no real driver devices
// are posting to the HTTP API.
type Replay struct {
	path     string
	interval time.Duration
	tracker  *engine.Tracker
	logger   *slog.Logger

	ready   bool
	readyMu sync.RWMutex
}

func NewReplay(path string, interval time.Duration, tracker *engine.Tracker, logger *slog.Logger) *Replay {
	return &Replay{
		path:     path,
		interval: interval,
		tracker:  tracker,
		logger:   logger.With("component", "replay"),
	}
}

func (r *Replay) Run(ctx context.Context) error {
	file, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("open replay file: %w", err)
	}
	defer file.Close()

	r.setReady(true)
	r.logger.Info("replay started", "file", r.path, "interval", r.interval)

	var processed, failed int
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var ev domain.GeolocationEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			r.logger.Warn("skipping malformed replay line", "error", err)
			continue
		}

		if _, err := r.tracker.Process(ctx, ev); err != nil {
			failed++
			r.logger.Warn("replay event failed", "vehicle", ev.VehicleID, "error", err)
		} else {
			processed++
		}

		if r.interval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.interval):
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read replay file: %w", err)
	}

	r.logger.Info("replay completed", "processed", processed, "failed", failed)
	return nil
}

func (r *Replay) IsReady() bool {
	r.readyMu.RLock()
	defer r.readyMu.RUnlock()
	return r.ready
}

func (r *Replay) setReady(ready bool) {
	r.readyMu.Lock()
	defer r.readyMu.Unlock()
	r.ready = ready
}
