package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const smallManifest = `schema_version: "1.0.0"
title: Small
days:
  - day: 1
    title: One
    modules:
      - slug: mod-a
        title: A
        run_in_browser: true
        exercises:
          - slug: a1
            title: A one
          - slug: a2
            title: A two
      - slug: mod-b
        title: B
        exercises:
          - slug: b1
            title: B one
  - day: 2
    title: Two
    modules:
      - slug: mod-c
        title: C
        exercises:
          - slug: c1
            title: C one
`

func TestDefaultManifest(t *testing.T) {
	m := Default()

	assert.True(t, m.CanRunInBrowser("module-1-templating"))
	assert.False(t, m.CanRunInBrowser("module-2-llm-api"))
	assert.False(t, m.CanRunInBrowser("no-such-module"))

	eligible := 0
	for _, d := range m.Days {
		for _, mod := range d.Modules {
			if mod.RunInBrowser {
				eligible++
			}
			assert.NotEmpty(t, mod.Exercises, mod.Slug)
		}
	}
	assert.Equal(t, 1, eligible, "exactly one module runs in the sandbox")
}

func TestParse(t *testing.T) {
	m, err := Parse([]byte(smallManifest))
	require.NoError(t, err)

	assert.Equal(t, "Small", m.Title)
	require.Len(t, m.Days, 2)

	mod, err := m.Module("mod-b")
	require.NoError(t, err)
	assert.Equal(t, "B", mod.Title)
	assert.False(t, mod.RunInBrowser)

	day, err := m.DayOf("mod-c")
	require.NoError(t, err)
	assert.Equal(t, 2, day)

	ref, err := m.Exercise("mod-a", "a2")
	require.NoError(t, err)
	assert.Equal(t, Ref{Day: 1, Module: "mod-a", Exercise: "a2", Title: "A two"}, ref)
	assert.Equal(t, "1/mod-a/a2", ref.Key())

	assert.Len(t, m.Exercises(), 4)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing schema version",
			yaml:    "days: []\n",
			wantErr: "schema_version is required",
		},
		{
			name:    "bad schema version",
			yaml:    "schema_version: banana\n",
			wantErr: "schema_version",
		},
		{
			name:    "unsupported major",
			yaml:    "schema_version: 2.0.0\n",
			wantErr: "not supported",
		},
		{
			name:    "too old",
			yaml:    "schema_version: 0.9.0\n",
			wantErr: "not supported",
		},
		{
			name: "duplicate module",
			yaml: `schema_version: 1.0.0
days:
  - day: 1
    modules: [{slug: m}]
  - day: 2
    modules: [{slug: m}]
`,
			wantErr: `module "m" is declared twice`,
		},
		{
			name: "duplicate exercise",
			yaml: `schema_version: 1.0.0
days:
  - day: 1
    modules:
      - slug: m
        exercises: [{slug: e}, {slug: e}]
`,
			wantErr: `exercise "e" is declared twice`,
		},
		{
			name: "duplicate day",
			yaml: `schema_version: 1.0.0
days:
  - day: 1
  - day: 1
`,
			wantErr: "day 1 is declared twice",
		},
		{
			name:    "invalid yaml",
			yaml:    "schema_version: [\n",
			wantErr: "decode manifest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSameExerciseSlugInDifferentModules(t *testing.T) {
	_, err := Parse([]byte(`schema_version: 1.4.2
days:
  - day: 1
    modules:
      - slug: m1
        exercises: [{slug: intro}]
      - slug: m2
        exercises: [{slug: intro}]
`))
	assert.NoError(t, err)
}

func TestUnknownLookups(t *testing.T) {
	m, err := Parse([]byte(smallManifest))
	require.NoError(t, err)

	_, err = m.Module("nope")
	assert.ErrorIs(t, err, ErrUnknownModule)

	_, err = m.DayOf("nope")
	assert.ErrorIs(t, err, ErrUnknownModule)

	_, err = m.Exercise("nope", "a1")
	assert.ErrorIs(t, err, ErrUnknownModule)

	_, err = m.Exercise("mod-a", "b1")
	assert.ErrorIs(t, err, ErrUnknownExercise)

	_, _, err = m.Adjacent("mod-a", "zzz")
	assert.ErrorIs(t, err, ErrUnknownExercise)
}

func TestAdjacent(t *testing.T) {
	m, err := Parse([]byte(smallManifest))
	require.NoError(t, err)

	tests := []struct {
		module, exercise string
		prev, next       string
	}{
		{"mod-a", "a1", "", "mod-a/a2"},
		{"mod-a", "a2", "mod-a/a1", "mod-b/b1"},
		{"mod-b", "b1", "mod-a/a2", "mod-c/c1"},
		{"mod-c", "c1", "mod-b/b1", ""},
	}

	name := func(r *Ref) string {
		if r == nil {
			return ""
		}
		return r.Module + "/" + r.Exercise
	}

	for _, tt := range tests {
		t.Run(tt.module+"/"+tt.exercise, func(t *testing.T) {
			prev, next, err := m.Adjacent(tt.module, tt.exercise)
			require.NoError(t, err)
			assert.Equal(t, tt.prev, name(prev))
			assert.Equal(t, tt.next, name(next))
		})
	}

	_, next, _ := m.Adjacent("mod-b", "b1")
	require.NotNil(t, next)
	assert.Equal(t, 2, next.Day)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "course.yaml")
	require.NoError(t, os.WriteFile(path, []byte(smallManifest), 0644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.True(t, m.CanRunInBrowser("mod-a"))

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
