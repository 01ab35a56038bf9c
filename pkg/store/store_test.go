package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flagforge/flagforge/pkg/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func sampleFlags(variation string) map[string]*model.FlagConfig {
	return map[string]*model.FlagConfig{
		"checkout-v2": {
			Variations:  map[string]any{"enabled": true, "disabled": false},
			DefaultRule: &model.Rule{Variation: variation},
		},
	}
}

func TestReadMissingProject(t *testing.T) {
	s := newTestStore(t)

	flags, exists, err := s.Read("ghost")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Empty(t, flags)
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	want := sampleFlags("disabled")
	require.NoError(t, s.Write("payments", want))

	got, exists, err := s.Read("payments")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, want, got)
}

func TestWriteEmptyProject(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Write("payments", map[string]*model.FlagConfig{}))

	flags, exists, err := s.Read("payments")
	require.NoError(t, err)
	assert.True(t, exists, "an empty project file still exists")
	assert.Empty(t, flags)
}

func TestCreateIsExclusive(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Create("payments", sampleFlags("disabled")))

	err := s.Create("payments", sampleFlags("enabled"))
	require.ErrorIs(t, err, ErrProjectExists)

	// the losing create did not overwrite the winner
	got, _, err := s.Read("payments")
	require.NoError(t, err)
	assert.Equal(t, "disabled", got["checkout-v2"].DefaultRule.Variation)
}

func TestConcurrentCreatesSameProject(t *testing.T) {
	s := newTestStore(t)

	const attempts = 16
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Create("payments", sampleFlags("disabled"))
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrProjectExists)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one create wins")
}

func TestInvalidProjectName(t *testing.T) {
	s := newTestStore(t)

	for _, name := range []string{"", "a/b", `a\b`, "..", "."} {
		_, _, err := s.Read(name)
		assert.ErrorIs(t, err, ErrInvalidProject, "name %q", name)
		assert.ErrorIs(t, s.Write(name, nil), ErrInvalidProject, "name %q", name)
		assert.ErrorIs(t, s.Create(name, nil), ErrInvalidProject, "name %q", name)
	}
}

func TestCorruptFile(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "broken"+fileSuffix), []byte("{{{not yaml"), 0o644))

	_, exists, err := s.Read("broken")
	assert.True(t, exists)
	var corrupt *CorruptionError
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, "broken", corrupt.Project)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Write("payments", sampleFlags("enabled")))
	require.NoError(t, s.Delete("payments"))

	_, exists, err := s.Read("payments")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.ErrorIs(t, s.Delete("payments"), ErrProjectNotFound)
}

func TestListProjects(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)

	require.NoError(t, s.Write("payments", nil))
	require.NoError(t, s.Write("ads", nil))
	// files without the project suffix are ignored
	require.NoError(t, os.WriteFile(filepath.Join(root, "registry.yaml"), []byte("{}"), 0o644))

	projects, err := s.ListProjects()
	require.NoError(t, err)
	assert.Equal(t, []string{"ads", "payments"}, projects)
}

func TestConcurrentWritersDifferentProjects(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Write("a", sampleFlags(fmt.Sprintf("v%d", i))))
		}(i)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Write("b", sampleFlags(fmt.Sprintf("v%d", i))))
		}(i)
	}
	wg.Wait()

	for _, project := range []string{"a", "b"} {
		flags, exists, err := s.Read(project)
		require.NoError(t, err)
		assert.True(t, exists)
		assert.Len(t, flags, 1)
	}
}

func TestConcurrentWritersSameProject(t *testing.T) {
	s := newTestStore(t)

	variations := []string{"enabled", "disabled"}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Write("payments", sampleFlags(variations[i%2])))
		}(i)
	}
	wg.Wait()

	// the surviving file decodes cleanly and holds exactly one of the two
	// payloads, never a mix
	flags, exists, err := s.Read("payments")
	require.NoError(t, err)
	assert.True(t, exists)
	require.Contains(t, flags, "checkout-v2")
	assert.Contains(t, variations, flags["checkout-v2"].DefaultRule.Variation)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := sampleFlags("enabled")

	raw, err := Encode(want)
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestEncodeMatchesDiskFormat(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)

	flags := sampleFlags("enabled")
	require.NoError(t, s.Write("payments", flags))

	onDisk, err := os.ReadFile(filepath.Join(root, "payments"+fileSuffix))
	require.NoError(t, err)

	encoded, err := Encode(flags)
	require.NoError(t, err)
	assert.Equal(t, encoded, onDisk, "pull-request content and disk files must serialize identically")
}
