package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	yaml "go.yaml.in/yaml/v3"

	"github.com/dukerupert/meetings/internal/model"
)

const seedDebounce = 250 * time.Millisecond

// Seed is the on-disk meeting definitions file.
type Seed struct {
	Meetings []model.RawMeeting `json:"meetings"`
}

// ParseSeed decodes a seed file. YAML (by .yaml/.yml extension) is converted
// to JSON first so both formats share the strict decoder.
func ParseSeed(path string, data []byte) (*Seed, error) {
	jb, err := coerceToJSONBytes(path, data)
	if err != nil {
		return nil, err
	}

	var seed Seed
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("decode seed %s: %w", path, err)
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("decode seed %s: trailing data", path)
		}
		return nil, fmt.Errorf("decode seed %s: %w", path, err)
	}
	return &seed, nil
}

// LoadSeed reads and parses the seed file at path.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	return ParseSeed(path, data)
}

type MeetingUpserter interface {
	Upsert(ctx context.Context, raw model.RawMeeting) (model.Meeting, error)
}

// ApplySeed upserts every meeting in seed. A bad entry does not stop the
// others; the failures are returned joined.
func ApplySeed(ctx context.Context, store MeetingUpserter, seed *Seed) (int, error) {
	var (
		applied int
		errs    []error
	)
	for i, raw := range seed.Meetings {
		if _, err := store.Upsert(ctx, raw); err != nil {
			errs = append(errs, fmt.Errorf("meeting %d (%q): %w", i, raw.ID, err))
			continue
		}
		applied++
	}
	return applied, errors.Join(errs...)
}

// WatchSeed calls fn with the parsed seed each time the file at path
// changes. Bursts of events are debounced and unchanged content is skipped.
// The watcher is registered before WatchSeed returns; it stops when ctx is
// done.
func WatchSeed(ctx context.Context, path string, logger *slog.Logger, fn func(*Seed)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create seed watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	file := filepath.Base(path)
	var (
		mu    sync.Mutex
		timer *time.Timer
		last  []byte
	)
	if data, err := os.ReadFile(path); err == nil {
		last = data
	}

	reload := func() {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("seed read failed", "path", path, "error", err)
			return
		}
		mu.Lock()
		unchanged := bytes.Equal(data, last)
		if !unchanged {
			last = data
		}
		mu.Unlock()
		if unchanged {
			logger.Debug("seed unchanged; skipping reload", "path", path)
			return
		}

		seed, err := ParseSeed(path, data)
		if err != nil {
			logger.Warn("seed parse failed", "path", path, "error", err)
			return
		}
		fn(seed)
	}

	debounce := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(seedDebounce, reload)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				mu.Unlock()
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) == file && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					debounce()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("seed watch error", "dir", dir, "error", err)
			}
		}
	}()

	logger.Debug("seed watcher started", "path", path)
	return nil
}

func coerceToJSONBytes(path string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}

	j, err := json.Marshal(normalizeYAML(v))
	if err != nil {
		return nil, fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, nil
}

// normalizeYAML ensures all map keys are strings so the result can be JSON-marshaled.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = normalizeYAML(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}
