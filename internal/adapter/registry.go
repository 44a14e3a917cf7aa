package adapter

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/antzucaro/matchr"
	"gopkg.in/yaml.v3"
)

//go:embed sites/*.yaml
var builtin embed.FS

// ErrUnknownAuthority is returned by Registry.Get for undeclared names.
var ErrUnknownAuthority = errors.New("unknown authority")

// LoadConfig decodes one authority declaration, merges its family
// defaults, fills remaining defaults and validates the result.
func LoadConfig(data []byte, source string) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	if err := cfg.prepare(); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return cfg, nil
}

func (c *Config) prepare() error {
	if err := c.mergeFamily(); err != nil {
		return err
	}
	c.applyDefaults()
	return c.Validate()
}

// Registry holds the declared authorities by normalised name.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]*Config
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{configs: make(map[string]*Config)}
}

// LoadRegistry loads the built-in declarations, then every *.yaml / *.yml
// file in dir (if set). Declarations in dir replace built-ins of the same
// authority.
func LoadRegistry(dir string) (*Registry, error) {
	r := NewRegistry()
	if err := r.loadFS(builtin, "sites"); err != nil {
		return nil, err
	}
	if dir != "" {
		if err := r.loadFS(os.DirFS(dir), "."); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) loadFS(fsys fs.FS, root string) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return fmt.Errorf("read site declarations: %w", err)
	}
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		name := filepath.ToSlash(filepath.Join(root, e.Name()))
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return err
		}
		cfg, err := LoadConfig(data, name)
		if err != nil {
			return err
		}
		r.Add(cfg)
	}
	return nil
}

// Add registers cfg, replacing any declaration with the same name.
func (r *Registry) Add(cfg *Config) {
	r.mu.Lock()
	r.configs[key(cfg.Authority)] = cfg
	r.mu.Unlock()
}

// Names returns the declared authority names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.configs))
	for _, c := range r.configs {
		names = append(names, c.Authority)
	}
	sort.Strings(names)
	return names
}

// All returns every declaration ordered by name.
func (r *Registry) All() []*Config {
	names := r.Names()
	out := make([]*Config, 0, len(names))
	for _, n := range names {
		c, _ := r.Get(n)
		out = append(out, c)
	}
	return out
}

// Get finds a declaration. Names match case-insensitively, ignoring
// spaces, hyphens and underscores.
func (r *Registry) Get(name string) (*Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k := key(name)
	if c, ok := r.configs[k]; ok {
		return c, nil
	}
	best, bestScore := "", 0.0
	for ck, c := range r.configs {
		if score := matchr.JaroWinkler(k, ck, false); score > bestScore {
			best, bestScore = c.Authority, score
		}
	}
	if bestScore >= 0.85 {
		return nil, fmt.Errorf("%w %q (did you mean %q?)", ErrUnknownAuthority, name, best)
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownAuthority, name)
}

// Open builds the adapter for a declared authority.
func (r *Registry) Open(name string, env Env) (Adapter, error) {
	cfg, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return Open(cfg, env)
}

func key(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_', '\t':
			return -1
		}
		return r
	}, strings.ToLower(name))
}
