package plugin

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
)

// ErrPluginNotFound is returned when a requested plugin cannot be found.
var ErrPluginNotFound = errors.New("plugin not found")

const manifestFile = "plugin.json"

// Manager discovers pointer driver plugins. Each subdirectory of the plugin
// directory holding a plugin.json is one plugin.
type Manager struct {
	dir string

	mu       sync.RWMutex
	plugins  map[string]*Plugin
	problems []error
}

// NewManager creates a Manager for dir. Nothing is read until Discover.
func NewManager(dir string) *Manager {
	return &Manager{dir: dir, plugins: map[string]*Plugin{}}
}

// Discover rescans the plugin directory. A missing directory holds no
// plugins. Broken manifests and duplicate names are skipped and reported by
// Problems; only a directory that cannot be listed is an error.
func (m *Manager) Discover() error {
	found := map[string]*Plugin{}
	var problems []error

	entries, err := os.ReadDir(m.dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read plugin directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		p, err := load(filepath.Join(m.dir, entry.Name()))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			continue
		case err != nil:
			problems = append(problems, fmt.Errorf("%s: %w", entry.Name(), err))
			continue
		}
		if prev, dup := found[p.Manifest.Name]; dup {
			problems = append(problems, fmt.Errorf("%s: name %q already used by %s", entry.Name(), p.Manifest.Name, prev.Path))
			continue
		}
		found[p.Manifest.Name] = p
	}

	m.mu.Lock()
	m.plugins, m.problems = found, problems
	m.mu.Unlock()
	return nil
}

// load reads and checks the manifest in dir.
func load(dir string) (*Plugin, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, err
	}

	var mf Manifest
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if err := mf.validate(); err != nil {
		return nil, err
	}
	return &Plugin{
		Manifest:   mf,
		Path:       dir,
		Executable: filepath.Join(dir, mf.Executable),
	}, nil
}

func (mf *Manifest) validate() error {
	switch {
	case mf.Name == "":
		return errors.New("manifest has no name")
	case mf.Executable == "":
		return fmt.Errorf("plugin %s has no executable", mf.Name)
	}
	for _, a := range mf.Actions {
		if !knownAction(a) {
			return fmt.Errorf("plugin %s declares unknown action %q", mf.Name, a)
		}
	}
	return nil
}

// Problems returns why the last Discover skipped entries.
func (m *Manager) Problems() []error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.problems)
}

// Get returns a plugin by name.
func (m *Manager) Get(name string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.plugins[name]; ok {
		return p, nil
	}
	return nil, ErrPluginNotFound
}

// List returns the discovered plugins sorted by name.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*Plugin, 0, len(m.plugins))
	for _, p := range m.plugins {
		list = append(list, p)
	}
	slices.SortFunc(list, func(a, b *Plugin) int {
		return cmp.Compare(a.Manifest.Name, b.Manifest.Name)
	})
	return list
}

// PointerDriver returns the named plugin. With no name it picks a plugin
// that runs here and handles every pointer action, persistent drivers first,
// then by name.
func (m *Manager) PointerDriver(name string) (*Plugin, error) {
	if name != "" {
		return m.Get(name)
	}

	var best *Plugin
	for _, p := range m.List() {
		if !p.RunsOn(runtime.GOOS) || !p.Supports(ActionMove) || !p.Supports(ActionClick) || !p.Supports(ActionDoubleClick) {
			continue
		}
		if best == nil || (p.Manifest.Persistent && !best.Manifest.Persistent) {
			best = p
		}
	}
	if best == nil {
		return nil, ErrPluginNotFound
	}
	return best, nil
}

// PluginDir returns the plugin directory path.
func (m *Manager) PluginDir() string {
	return m.dir
}
