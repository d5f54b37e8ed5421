// Package config loads the client's static settings from YAML and,
// optionally, watches the file for edits so a long-running process can
// pick up rotated credentials without a restart.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Session is the on-disk shape of the settings this module needs: the
// Supabase project coordinates and the JWT refresh stream's retry policy.
type Session struct {
	BaseURL              string        `yaml:"base_url"`
	APIKey               string        `yaml:"api_key"`
	MaxReconnectAttempts uint8         `yaml:"max_reconnect_attempts"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	LogLevel             string        `yaml:"log_level"`
	LogFile              string        `yaml:"log_file"`
}

// Load reads and parses a YAML settings file.
func Load(path string) (Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Session{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var s Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return s, nil
}

// Watcher reloads Session from disk whenever the backing file changes and
// publishes each successfully parsed version on Updates.
type Watcher struct {
	path    string
	logger  *logrus.Entry
	mu      sync.Mutex
	current Session
	updates chan Session
	watcher *fsnotify.Watcher
}

// NewWatcher performs an initial Load and starts watching path for writes.
func NewWatcher(path string, logger *logrus.Entry) (*Watcher, error) {
	initial, err := Load(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	w := &Watcher{
		path:    path,
		logger:  logger,
		current: initial,
		updates: make(chan Session, 1),
		watcher: fsw,
	}
	go w.run()
	return w, nil
}

// Current returns the most recently loaded Session.
func (w *Watcher) Current() Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Updates yields a new Session each time the file is successfully reparsed.
func (w *Watcher) Updates() <-chan Session {
	return w.updates
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s, err := Load(w.path)
			if err != nil {
				if w.logger != nil {
					w.logger.WithError(err).Warn("config: reload failed, keeping previous settings")
				}
				continue
			}
			w.mu.Lock()
			w.current = s
			w.mu.Unlock()
			select {
			case w.updates <- s:
			default:
				// drop the stale pending update; Current() always has the latest.
				select {
				case <-w.updates:
				default:
				}
				w.updates <- s
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.WithError(err).Warn("config: watcher error")
			}
		}
	}
}
