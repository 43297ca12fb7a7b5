package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestProfileAttribString(t *testing.T) {
	p := Profile{
		Name:      "line3",
		Protocol:  "ab_eip",
		Gateway:   "10.0.0.5",
		Path:      "1,0",
		Family:    "ControlLogix",
		ElemSize:  4,
		ElemCount: 1,
	}
	got := p.AttribString()
	want := "protocol=ab_eip&gateway=10.0.0.5&path=1,0&plc=ControlLogix&elem_size=4&elem_count=1"
	if got != want {
		t.Errorf("AttribString() = %q, want %q", got, want)
	}
}

func TestProfileAttribStringExtra(t *testing.T) {
	p := Profile{Protocol: "ab_eip", Gateway: "10.0.0.5", Extra: "use_connected_msg=0"}
	got := p.AttribString()
	want := "protocol=ab_eip&gateway=10.0.0.5&use_connected_msg=0"
	if got != want {
		t.Errorf("AttribString() = %q, want %q", got, want)
	}
}

func TestLoadMissingFileYieldsEmptyConfig(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Profiles) != 0 || len(cfg.Tags) != 0 {
		t.Fatalf("expected empty config, got %+v", cfg)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")

	cfg := DefaultConfig()
	cfg.AddProfile(Profile{Name: "line3", Protocol: "ab_eip", Gateway: "10.0.0.5", Path: "1,0"})
	cfg.AddTag(TagDef{Name: "TestArr", Type: "DINT", Dims: []int{10}})

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Profiles) != 1 || loaded.Profiles[0].Name != "line3" {
		t.Fatalf("profiles not round-tripped: %+v", loaded.Profiles)
	}
	if len(loaded.Tags) != 1 || loaded.Tags[0].Name != "TestArr" || loaded.Tags[0].Dims[0] != 10 {
		t.Fatalf("tags not round-tripped: %+v", loaded.Tags)
	}
}

func TestProfileCRUD(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AddProfile(Profile{Name: "a", Gateway: "1.1.1.1"})
	cfg.AddProfile(Profile{Name: "b", Gateway: "2.2.2.2"})

	if cfg.FindProfile("a") == nil {
		t.Fatal("expected to find profile a")
	}
	if !cfg.UpdateProfile("a", Profile{Name: "a", Gateway: "9.9.9.9"}) {
		t.Fatal("UpdateProfile should succeed for existing name")
	}
	if cfg.FindProfile("a").Gateway != "9.9.9.9" {
		t.Fatal("update did not apply")
	}
	if !cfg.RemoveProfile("b") {
		t.Fatal("RemoveProfile should succeed for existing name")
	}
	if cfg.FindProfile("b") != nil {
		t.Fatal("expected profile b to be removed")
	}
}

func TestAddTagReplacesOnNameCollision(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AddTag(TagDef{Name: "N7", Type: "INT", Dims: []int{10}})
	cfg.AddTag(TagDef{Name: "N7", Type: "INT", Dims: []int{20}})

	if len(cfg.Tags) != 1 {
		t.Fatalf("expected a single tag entry after collision, got %d", len(cfg.Tags))
	}
	if cfg.Tags[0].Dims[0] != 20 {
		t.Fatalf("expected the later definition to win, got dims %v", cfg.Tags[0].Dims)
	}
}

func TestValidateRejectsDuplicateNames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Profiles = []Profile{{Name: "a"}, {Name: "a"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to reject duplicate profile names")
	}

	cfg2 := DefaultConfig()
	cfg2.Tags = []TagDef{{Name: "N7"}, {Name: "N7"}}
	if err := cfg2.Validate(); err == nil {
		t.Fatal("expected Validate to reject duplicate tag names")
	}
}

func TestValidateRejectsEmptyName(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Profiles = []Profile{{Name: ""}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to reject an empty profile name")
	}
}

func TestOnChangeListenerFiresOnSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	cfg := DefaultConfig()

	var wg sync.WaitGroup
	wg.Add(1)
	var fired bool
	var mu sync.Mutex
	id := cfg.AddOnChangeListener(func() {
		mu.Lock()
		fired = true
		mu.Unlock()
		wg.Done()
	})
	defer cfg.RemoveOnChangeListener(id)

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if !fired {
		t.Fatal("expected change listener to fire")
	}
}

func TestDefaultPathUnderHome(t *testing.T) {
	p := DefaultPath()
	if filepath.Base(p) != "profiles.yaml" {
		t.Fatalf("DefaultPath() = %q, expected to end in profiles.yaml", p)
	}
}

func TestRemoveOnChangeListenerStopsFutureCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	cfg := DefaultConfig()

	calls := 0
	var mu sync.Mutex
	id := cfg.AddOnChangeListener(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	cfg.RemoveOnChangeListener(id)

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to be written: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Errorf("removed listener was called %d times, want 0", calls)
	}
}
