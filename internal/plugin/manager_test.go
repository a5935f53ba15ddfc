package plugin

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeManifest(t *testing.T, root string, manifest Manifest) string {
	t.Helper()

	dir := filepath.Join(root, manifest.Name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create plugin dir: %v", err)
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		t.Fatalf("failed to marshal manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "plugin.json"), data, 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return dir
}

func TestManager_Discover(t *testing.T) {
	tmpDir := t.TempDir()
	pluginDir := writeManifest(t, tmpDir, Manifest{
		Name:        "pointer",
		Version:     "1.0.0",
		Description: "Pointer driver",
		Executable:  "pointer",
		Actions:     []string{ActionMove, ActionClick},
	})

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	plugins := manager.List()
	if len(plugins) != 1 {
		t.Fatalf("expected 1 plugin, got %d", len(plugins))
	}

	plugin := plugins[0]
	if plugin.Manifest.Name != "pointer" {
		t.Errorf("expected plugin name 'pointer', got %q", plugin.Manifest.Name)
	}
	if plugin.Path != pluginDir {
		t.Errorf("expected path %q, got %q", pluginDir, plugin.Path)
	}
	if plugin.Executable != filepath.Join(pluginDir, "pointer") {
		t.Errorf("unexpected executable %q", plugin.Executable)
	}
	if !plugin.Supports(ActionClick) || plugin.Supports(ActionDoubleClick) {
		t.Errorf("Supports() does not match manifest actions %v", plugin.Manifest.Actions)
	}
}

func TestManager_List_Sorted(t *testing.T) {
	tmpDir := t.TempDir()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		writeManifest(t, tmpDir, Manifest{Name: name, Executable: name})
	}

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	var names []string
	for _, p := range manager.List() {
		names = append(names, p.Manifest.Name)
	}
	if len(names) != 3 || names[0] != "alpha" || names[1] != "mid" || names[2] != "zeta" {
		t.Errorf("List() names = %v, want sorted", names)
	}
}

func TestManager_Discover_SkipsBadEntries(t *testing.T) {
	tmpDir := t.TempDir()

	bad := filepath.Join(tmpDir, "bad")
	if err := os.MkdirAll(bad, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bad, "plugin.json"), []byte("not valid json"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(tmpDir, "no-manifest"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "stray-file"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, tmpDir, Manifest{Name: "scroller", Executable: "x", Actions: []string{"scroll"}})
	writeManifest(t, tmpDir, Manifest{Name: "no-exec", Actions: []string{ActionMove}})

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed unexpectedly: %v", err)
	}
	if n := len(manager.List()); n != 0 {
		t.Fatalf("expected 0 plugins, got %d", n)
	}

	// The directory without a manifest is not a problem; the other three are.
	problems := manager.Problems()
	if len(problems) != 3 {
		t.Fatalf("Problems() = %v, want 3 entries", problems)
	}
}

func TestManager_Discover_NonExistentDir(t *testing.T) {
	manager := NewManager("/path/that/does/not/exist")
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed on non-existent dir: %v", err)
	}
	if n := len(manager.List()); n != 0 {
		t.Fatalf("expected 0 plugins, got %d", n)
	}
}

func TestManager_Get_NotFound(t *testing.T) {
	manager := NewManager(t.TempDir())
	if _, err := manager.Get("nonexistent"); err != ErrPluginNotFound {
		t.Errorf("expected ErrPluginNotFound, got %v", err)
	}
}

func TestManager_PointerDriver(t *testing.T) {
	all := []string{ActionMove, ActionClick, ActionDoubleClick}
	tmpDir := t.TempDir()
	writeManifest(t, tmpDir, Manifest{Name: "a-partial", Executable: "x", Actions: []string{ActionMove}})
	writeManifest(t, tmpDir, Manifest{Name: "b-elsewhere", Executable: "x", Actions: all, Platforms: []string{"plan9"}})
	writeManifest(t, tmpDir, Manifest{Name: "c-full", Executable: "x", Actions: all, Platforms: []string{runtime.GOOS}})

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	p, err := manager.PointerDriver("")
	if err != nil {
		t.Fatalf("PointerDriver() error = %v", err)
	}
	if p.Manifest.Name != "c-full" {
		t.Errorf("PointerDriver() = %q, want c-full", p.Manifest.Name)
	}

	p, err = manager.PointerDriver("a-partial")
	if err != nil || p.Manifest.Name != "a-partial" {
		t.Errorf("PointerDriver(name) = %v, %v", p, err)
	}

	if _, err := NewManager(t.TempDir()).PointerDriver(""); err != ErrPluginNotFound {
		t.Errorf("expected ErrPluginNotFound, got %v", err)
	}
}

func TestManager_PointerDriver_PrefersPersistent(t *testing.T) {
	all := []string{ActionMove, ActionClick, ActionDoubleClick}
	tmpDir := t.TempDir()
	writeManifest(t, tmpDir, Manifest{Name: "a-oneshot", Executable: "x", Actions: all})
	writeManifest(t, tmpDir, Manifest{Name: "b-resident", Executable: "x", Actions: all, Persistent: true})
	writeManifest(t, tmpDir, Manifest{Name: "c-resident", Executable: "x", Actions: all, Persistent: true})

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	p, err := manager.PointerDriver("")
	if err != nil {
		t.Fatalf("PointerDriver() error = %v", err)
	}
	if p.Manifest.Name != "b-resident" {
		t.Errorf("PointerDriver() = %q, want b-resident", p.Manifest.Name)
	}
}

func TestManager_Discover_DuplicateNames(t *testing.T) {
	tmpDir := t.TempDir()
	writeManifest(t, tmpDir, Manifest{Name: "pointer", Executable: "x"})

	// A second directory claiming the same name.
	dup := filepath.Join(tmpDir, "pointer-copy")
	if err := os.MkdirAll(dup, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dup, "plugin.json"), []byte(`{"name":"pointer","executable":"y"}`), 0644); err != nil {
		t.Fatal(err)
	}

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	p, err := manager.Get("pointer")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	// Directories are read in name order, so the first wins.
	if p.Executable != filepath.Join(tmpDir, "pointer", "x") {
		t.Errorf("Get() executable = %q", p.Executable)
	}
	if problems := manager.Problems(); len(problems) != 1 {
		t.Errorf("Problems() = %v, want 1 entry", problems)
	}
}

func TestManager_Discover_Rescan(t *testing.T) {
	tmpDir := t.TempDir()
	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatal(err)
	}
	if n := len(manager.List()); n != 0 {
		t.Fatalf("expected 0 plugins, got %d", n)
	}

	writeManifest(t, tmpDir, Manifest{Name: "late", Executable: "x"})
	if err := manager.Discover(); err != nil {
		t.Fatal(err)
	}
	if _, err := manager.Get("late"); err != nil {
		t.Errorf("Get() after rescan error = %v", err)
	}
}

func TestManager_PluginDir(t *testing.T) {
	manager := NewManager("/path/to/plugins")
	if manager.PluginDir() != "/path/to/plugins" {
		t.Errorf("unexpected plugin dir %q", manager.PluginDir())
	}
}
