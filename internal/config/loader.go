package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

const reloadDebounce = 100 * time.Millisecond

// Load reads path, applies environment overrides and validates. A missing
// file yields the defaults. An empty path skips the file.
func Load(path string) (*File, error) {
	f, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	f.ApplyEnvOverrides()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Loader loads a configuration file and reloads it when it changes on disk.
type Loader struct {
	path string

	mu       sync.RWMutex
	file     *File
	onChange []func(*File)

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	errChan chan error
}

// NewLoader creates a loader for path.
func NewLoader(path string) *Loader {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		path:    path,
		ctx:     ctx,
		cancel:  cancel,
		errChan: make(chan error, 1),
	}
}

// Load reads the file and makes it current.
func (l *Loader) Load() (*File, error) {
	f, err := Load(l.path)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.file = f
	l.mu.Unlock()
	return f, nil
}

// File returns the current configuration.
func (l *Loader) File() *File {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.file
}

// Watch starts watching the file's directory. Editors often replace the
// file instead of writing it, so the directory is watched and events are
// filtered by name.
func (l *Loader) Watch() error {
	if l.path == "" {
		return errors.New("config: no file to watch")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	l.watcher = watcher

	go l.watchLoop()
	return nil
}

func (l *Loader) watchLoop() {
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-l.ctx.Done():
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(l.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, l.reload)

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.report(err)
		}
	}
}

// reload keeps the previous configuration when the new file is invalid.
func (l *Loader) reload() {
	if l.ctx.Err() != nil {
		return
	}
	f, err := Load(l.path)
	if err != nil {
		l.report(fmt.Errorf("reload config: %w", err))
		return
	}

	l.mu.Lock()
	l.file = f
	callbacks := append([]func(*File){}, l.onChange...)
	l.mu.Unlock()

	for _, cb := range callbacks {
		cb(f)
	}
}

func (l *Loader) report(err error) {
	select {
	case l.errChan <- err:
	default:
	}
}

// OnChange registers a callback run after every successful reload.
func (l *Loader) OnChange(cb func(*File)) {
	l.mu.Lock()
	l.onChange = append(l.onChange, cb)
	l.mu.Unlock()
}

// Errors returns reload and watcher errors. Errors are dropped when nobody
// reads them.
func (l *Loader) Errors() <-chan error {
	return l.errChan
}

// Close stops watching.
func (l *Loader) Close() error {
	l.cancel()
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

func loadFile(path string) (*File, error) {
	f := Default()
	if path == "" {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch filepath.Ext(path) {
	case ".toml":
		if _, err := toml.Decode(string(data), f); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, f); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, f); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if err := autoDetect(data, f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// autoDetect tries each format on a fresh copy so a failed attempt leaves
// no partial values behind.
func autoDetect(data []byte, f *File) error {
	try := Default()
	if _, err := toml.Decode(string(data), try); err == nil {
		*f = *try
		return nil
	}
	try = Default()
	if err := json.Unmarshal(data, try); err == nil {
		*f = *try
		return nil
	}
	try = Default()
	if err := yaml.Unmarshal(data, try); err == nil {
		*f = *try
		return nil
	}
	return errors.New("config: unable to parse file (tried TOML, JSON, YAML)")
}
