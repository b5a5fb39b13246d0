package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// ErrEmptyManifest is returned when a manifest lists no clips.
var ErrEmptyManifest = errors.New("catalog: manifest has no clips")

// ClipSpec is one manifest line.
type ClipSpec struct {
	Path     string `yaml:"path"`
	Name     string `yaml:"name,omitempty"`
	Category string `yaml:"category,omitempty"`
}

// Manifest lists the animation files of one character.
type Manifest struct {
	// Character is the model whose skeleton the clips target.
	Character  string     `yaml:"character,omitempty"`
	BaseDir    string     `yaml:"base_dir,omitempty"`
	// IdlePrefix marks clips whose name or file name starts with it (any
	// case) as idles.
	IdlePrefix string     `yaml:"idle_prefix,omitempty"`
	Clips      []ClipSpec `yaml:"clips"`

	dir string
}

// ParseManifest decodes YAML manifest bytes. Relative paths resolve against
// the working directory.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("catalog: parse manifest: %w", err)
	}
	if len(m.Clips) == 0 {
		return nil, ErrEmptyManifest
	}
	for i, c := range m.Clips {
		if c.Path == "" {
			return nil, fmt.Errorf("catalog: clip %d has no path", i)
		}
	}
	return &m, nil
}

// LoadManifest reads a manifest file. Relative paths inside it resolve
// against the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}
	m.dir = filepath.Dir(path)
	return m, nil
}

func (m *Manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.dir, m.BaseDir, p)
}

// CharacterPath is the resolved path of the character model, or empty.
func (m *Manifest) CharacterPath() string {
	return m.resolve(m.Character)
}

// Entries resolves every clip to an Entry. Categories inferred from the path
// give way to IdlePrefix, and an explicit per-clip category wins over both.
func (m *Manifest) Entries() []Entry {
	return lo.Map(m.Clips, func(c ClipSpec, _ int) Entry {
		// Names derive from the path as written, not the resolved one.
		e := NewEntry(c.Path, c.Name)
		e.Path = m.resolve(c.Path)
		if m.hasIdlePrefix(e.Name) || m.hasIdlePrefix(filepath.Base(c.Path)) {
			e.Category = CategoryIdle
		}
		if cat, ok := ParseCategory(c.Category); ok {
			e.Category = cat
		}
		return e
	})
}

func (m *Manifest) hasIdlePrefix(name string) bool {
	prefix := strings.TrimSpace(m.IdlePrefix)
	if prefix == "" {
		return false
	}
	return strings.HasPrefix(strings.ToLower(name), strings.ToLower(prefix))
}
