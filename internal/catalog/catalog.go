// Package catalog describes the course: days, their modules and the
// exercises inside each module. It decides which modules can run in the
// sandbox and how learners move from one exercise to the next.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// SupportedSchema is the range of manifest schema versions this build reads.
const SupportedSchema = ">= 1.0.0, < 2.0.0"

var (
	// ErrUnknownModule is returned for module IDs not in the manifest.
	ErrUnknownModule = errors.New("unknown module")
	// ErrUnknownExercise is returned for exercise IDs not in their module.
	ErrUnknownExercise = errors.New("unknown exercise")
)

//go:embed default.yaml
var defaultManifest []byte

// Exercise is a single coding task.
type Exercise struct {
	Slug             string `yaml:"slug" json:"slug"`
	Title            string `yaml:"title" json:"title"`
	Difficulty       string `yaml:"difficulty" json:"difficulty"`
	EstimatedMinutes int    `yaml:"estimated_minutes" json:"estimated_minutes"`
}

// Module groups exercises around one theme.
type Module struct {
	Slug         string     `yaml:"slug" json:"slug"`
	Title        string     `yaml:"title" json:"title"`
	RunInBrowser bool       `yaml:"run_in_browser" json:"run_in_browser"`
	Exercises    []Exercise `yaml:"exercises" json:"exercises"`
}

// Day is one day of the course.
type Day struct {
	Number  int      `yaml:"day" json:"day"`
	Title   string   `yaml:"title" json:"title"`
	Modules []Module `yaml:"modules" json:"modules"`
}

// Ref points at one exercise, with enough context to build a URL or a
// progress key.
type Ref struct {
	Day      int    `json:"day"`
	Module   string `json:"module"`
	Exercise string `json:"exercise"`
	Title    string `json:"title"`
}

// Key returns the "<day>/<module>/<exercise>" form used by the progress store.
func (r Ref) Key() string {
	return fmt.Sprintf("%d/%s/%s", r.Day, r.Module, r.Exercise)
}

// Manifest is a parsed, validated course catalog. It is immutable once
// returned by Parse.
type Manifest struct {
	SchemaVersion string `yaml:"schema_version" json:"schema_version"`
	Title         string `yaml:"title" json:"title"`
	Days          []Day  `yaml:"days" json:"days"`

	modules map[string]*Module
	dayOf   map[string]int
	order   []Ref
}

var schemaConstraint = mustConstraint(SupportedSchema)

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Parse decodes and validates a YAML manifest.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if err := m.index(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Default returns the manifest compiled into the binary.
func Default() *Manifest {
	m, err := Parse(defaultManifest)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded manifest is invalid: %v", err))
	}
	return m
}

func (m *Manifest) index() error {
	if strings.TrimSpace(m.SchemaVersion) == "" {
		return errors.New("schema_version is required")
	}
	v, err := semver.NewVersion(m.SchemaVersion)
	if err != nil {
		return fmt.Errorf("schema_version %q: %w", m.SchemaVersion, err)
	}
	if !schemaConstraint.Check(v) {
		return fmt.Errorf("schema_version %s is not supported (want %s)", v, SupportedSchema)
	}

	m.modules = make(map[string]*Module)
	m.dayOf = make(map[string]int)
	m.order = nil

	days := make(map[int]bool)
	for di := range m.Days {
		day := &m.Days[di]
		if day.Number <= 0 {
			return fmt.Errorf("days[%d]: day number must be positive", di)
		}
		if days[day.Number] {
			return fmt.Errorf("day %d is declared twice", day.Number)
		}
		days[day.Number] = true

		for mi := range day.Modules {
			mod := &day.Modules[mi]
			if mod.Slug == "" {
				return fmt.Errorf("day %d: module %d has no slug", day.Number, mi)
			}
			if _, dup := m.modules[mod.Slug]; dup {
				return fmt.Errorf("module %q is declared twice", mod.Slug)
			}
			m.modules[mod.Slug] = mod
			m.dayOf[mod.Slug] = day.Number

			seen := make(map[string]bool, len(mod.Exercises))
			for _, ex := range mod.Exercises {
				if ex.Slug == "" {
					return fmt.Errorf("module %q: exercise without slug", mod.Slug)
				}
				if seen[ex.Slug] {
					return fmt.Errorf("module %q: exercise %q is declared twice", mod.Slug, ex.Slug)
				}
				seen[ex.Slug] = true
				m.order = append(m.order, Ref{Day: day.Number, Module: mod.Slug, Exercise: ex.Slug, Title: ex.Title})
			}
		}
	}
	return nil
}

// CanRunInBrowser reports whether exercises of moduleID may run in the
// sandbox. Unknown modules cannot.
func (m *Manifest) CanRunInBrowser(moduleID string) bool {
	mod, ok := m.modules[moduleID]
	return ok && mod.RunInBrowser
}

// Module returns the module with the given slug.
func (m *Manifest) Module(id string) (*Module, error) {
	mod, ok := m.modules[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, id)
	}
	return mod, nil
}

// DayOf returns the day number a module belongs to.
func (m *Manifest) DayOf(moduleID string) (int, error) {
	day, ok := m.dayOf[moduleID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownModule, moduleID)
	}
	return day, nil
}

// Exercise resolves one exercise to a Ref.
func (m *Manifest) Exercise(moduleID, exerciseID string) (Ref, error) {
	i, err := m.position(moduleID, exerciseID)
	if err != nil {
		return Ref{}, err
	}
	return m.order[i], nil
}

// Exercises returns every exercise in course order.
func (m *Manifest) Exercises() []Ref {
	out := make([]Ref, len(m.order))
	copy(out, m.order)
	return out
}

// Adjacent returns the exercises before and after the given one in course
// order, crossing module and day boundaries. prev is nil for the first
// exercise and next is nil for the last.
func (m *Manifest) Adjacent(moduleID, exerciseID string) (prev, next *Ref, err error) {
	i, err := m.position(moduleID, exerciseID)
	if err != nil {
		return nil, nil, err
	}
	if i > 0 {
		p := m.order[i-1]
		prev = &p
	}
	if i+1 < len(m.order) {
		n := m.order[i+1]
		next = &n
	}
	return prev, next, nil
}

func (m *Manifest) position(moduleID, exerciseID string) (int, error) {
	if _, ok := m.modules[moduleID]; !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownModule, moduleID)
	}
	for i, ref := range m.order {
		if ref.Module == moduleID && ref.Exercise == exerciseID {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %s/%s", ErrUnknownExercise, moduleID, exerciseID)
}
