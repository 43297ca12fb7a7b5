// Package config handles optional YAML-backed configuration for this
// module's companion CLIs: a named connection-profile file for
// plctagctl (so a caller doesn't have to retype a full attribute
// string every invocation) and a tag/register-file inventory for
// ab_server. Neither file is read or written by the client library
// itself; plctag.Create always takes an attribute string directly and
// keeps no persisted state. This package is CLI convenience only.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// ConfigListenerID is a unique identifier for a registered change
// listener, returned by AddOnChangeListener so it can later be removed.
type ConfigListenerID string

// Profile is one named connection-profile entry: the subset of
// attrstr.Options fields a human picks when addressing a PLC, stored
// so plctagctl can resolve "--profile=line3-plc1" to a full attribute
// string instead of requiring it on every invocation.
type Profile struct {
	Name       string `yaml:"name"`
	Protocol   string `yaml:"protocol"`
	Gateway    string `yaml:"gateway"`
	Path       string `yaml:"path,omitempty"`
	Family     string `yaml:"plc,omitempty"`
	ElemSize   int    `yaml:"elem_size,omitempty"`
	ElemCount  int    `yaml:"elem_count,omitempty"`
	ReadCacheMs int   `yaml:"read_cache_ms,omitempty"`
	Extra      string `yaml:"extra,omitempty"` // raw "&k=v&k=v" appended verbatim
}

// AttribString renders the profile as a libplctag-style attribute
// string, minus "name=" (the caller still supplies the tag name
// per-call; a profile addresses a PLC, not a single tag).
func (p *Profile) AttribString() string {
	s := fmt.Sprintf("protocol=%s&gateway=%s", p.Protocol, p.Gateway)
	if p.Path != "" {
		s += "&path=" + p.Path
	}
	if p.Family != "" {
		s += "&plc=" + p.Family
	}
	if p.ElemSize != 0 {
		s += fmt.Sprintf("&elem_size=%d", p.ElemSize)
	}
	if p.ElemCount != 0 {
		s += fmt.Sprintf("&elem_count=%d", p.ElemCount)
	}
	if p.ReadCacheMs != 0 {
		s += fmt.Sprintf("&read_cache_ms=%d", p.ReadCacheMs)
	}
	if p.Extra != "" {
		s += "&" + p.Extra
	}
	return s
}

// TagDef is one ab_server tag-inventory entry, the YAML equivalent of
// the CLI's repeated "--tag=name:TYPE[dims]" flag.
type TagDef struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"` // SINT, INT, DINT, LINT, REAL, LREAL
	Dims []int  `yaml:"dims,omitempty"`
}

// Config holds the complete parsed configuration file: named
// connection profiles (plctagctl) and/or a tag inventory (ab_server).
// A single file may supply either or both sections.
type Config struct {
	Profiles []Profile `yaml:"profiles,omitempty"`
	Tags     []TagDef  `yaml:"tags,omitempty"`

	// dataMu protects all fields against concurrent access. Callers
	// that modify config should Lock(), modify, then UnlockAndSave().
	dataMu sync.Mutex `yaml:"-"`

	changeListeners map[ConfigListenerID]func() `yaml:"-"`
	listenersMu     sync.RWMutex                `yaml:"-"`
	listenerCounter uint64                      `yaml:"-"`
}

// DefaultConfig returns an empty, ready-to-populate configuration.
func DefaultConfig() *Config {
	return &Config{
		Profiles: []Profile{},
		Tags:     []TagDef{},
	}
}

// DefaultPath returns the default connection-profile file path
// (~/.plctagctl/profiles.yaml).
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "profiles.yaml"
	}
	return filepath.Join(home, ".plctagctl", "profiles.yaml")
}

// Load reads configuration from a YAML file. A missing file is not an
// error: it yields an empty Config so the CLI can still run from
// flags alone.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// AddOnChangeListener registers a callback invoked (in its own
// goroutine) whenever the config is saved. Returns an id usable with
// RemoveOnChangeListener.
func (c *Config) AddOnChangeListener(cb func()) ConfigListenerID {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	if c.changeListeners == nil {
		c.changeListeners = make(map[ConfigListenerID]func())
	}

	id := ConfigListenerID(fmt.Sprintf("listener-%d", atomic.AddUint64(&c.listenerCounter, 1)))
	c.changeListeners[id] = cb
	return id
}

// RemoveOnChangeListener removes a previously registered listener.
func (c *Config) RemoveOnChangeListener(id ConfigListenerID) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	delete(c.changeListeners, id)
}

func (c *Config) notifyChangeListeners() {
	c.listenersMu.RLock()
	listeners := make([]func(), 0, len(c.changeListeners))
	for _, cb := range c.changeListeners {
		listeners = append(listeners, cb)
	}
	c.listenersMu.RUnlock()

	for _, cb := range listeners {
		go cb()
	}
}

// Lock acquires the config mutex for exclusive access before a
// multi-field mutation; pair with UnlockAndSave.
func (c *Config) Lock() { c.dataMu.Lock() }

// Unlock releases the mutex without saving.
func (c *Config) Unlock() { c.dataMu.Unlock() }

// Save acquires the lock, marshals, writes, and notifies listeners.
func (c *Config) Save(path string) error {
	c.dataMu.Lock()
	return c.saveLocked(path)
}

// UnlockAndSave marshals, releases a lock already held via Lock, then
// writes and notifies.
func (c *Config) UnlockAndSave(path string) error {
	return c.saveLocked(path)
}

func (c *Config) saveLocked(path string) error {
	data, err := yaml.Marshal(c)
	c.dataMu.Unlock()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}

	c.notifyChangeListeners()
	return nil
}

// FindProfile returns the profile with the given name, or nil.
func (c *Config) FindProfile(name string) *Profile {
	for i := range c.Profiles {
		if c.Profiles[i].Name == name {
			return &c.Profiles[i]
		}
	}
	return nil
}

// AddProfile appends a new connection profile.
func (c *Config) AddProfile(p Profile) {
	c.Profiles = append(c.Profiles, p)
}

// RemoveProfile removes a profile by name.
func (c *Config) RemoveProfile(name string) bool {
	for i, p := range c.Profiles {
		if p.Name == name {
			c.Profiles = append(c.Profiles[:i], c.Profiles[i+1:]...)
			return true
		}
	}
	return false
}

// UpdateProfile replaces an existing profile by name.
func (c *Config) UpdateProfile(name string, updated Profile) bool {
	for i, p := range c.Profiles {
		if p.Name == name {
			c.Profiles[i] = updated
			return true
		}
	}
	return false
}

// FindTag returns the ab_server tag definition with the given name, or nil.
func (c *Config) FindTag(name string) *TagDef {
	for i := range c.Tags {
		if c.Tags[i].Name == name {
			return &c.Tags[i]
		}
	}
	return nil
}

// AddTag appends a new ab_server tag definition, replacing any existing
// entry of the same name, so of two calls with one name the later one
// wins.
func (c *Config) AddTag(t TagDef) {
	for i := range c.Tags {
		if c.Tags[i].Name == t.Name {
			c.Tags[i] = t
			return
		}
	}
	c.Tags = append(c.Tags, t)
}

// Validate checks the configuration for internal consistency: no two
// profiles or tags may share a name.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Profiles))
	for _, p := range c.Profiles {
		if p.Name == "" {
			return fmt.Errorf("config: profile with empty name")
		}
		if seen[p.Name] {
			return fmt.Errorf("config: duplicate profile name %q", p.Name)
		}
		seen[p.Name] = true
	}

	seenTags := make(map[string]bool, len(c.Tags))
	for _, t := range c.Tags {
		if t.Name == "" {
			return fmt.Errorf("config: tag with empty name")
		}
		if seenTags[t.Name] {
			return fmt.Errorf("config: duplicate tag name %q", t.Name)
		}
		seenTags[t.Name] = true
	}
	return nil
}
