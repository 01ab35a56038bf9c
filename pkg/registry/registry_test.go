package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.yaml")
	r, err := Load(path)
	require.NoError(t, err)
	return r, path
}

func TestIntegrationLifecycle(t *testing.T) {
	r, _ := newTestRegistry(t)

	stored, err := r.UpsertIntegration(GitIntegration{
		Name:          "main gitlab",
		Provider:      "gitlab",
		Endpoint:      "https://gitlab.example.com",
		Token:         "glpat-secret",
		ProjectID:     "42",
		BaseBranch:    "main",
		FlagsFilePath: "flags.yaml",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)

	got, ok := r.Integration(stored.ID)
	require.True(t, ok)
	assert.Equal(t, "glpat-secret", got.Token, "the pipeline read path keeps the real credential")

	require.NoError(t, r.DeleteIntegration(stored.ID))
	_, ok = r.Integration(stored.ID)
	assert.False(t, ok)
	assert.ErrorIs(t, r.DeleteIntegration(stored.ID), ErrNotFound)
}

func TestIntegrationMasking(t *testing.T) {
	r, _ := newTestRegistry(t)

	stored, err := r.UpsertIntegration(GitIntegration{Name: "x", Token: "glpat-secret"})
	require.NoError(t, err)

	list := r.ListIntegrations()
	require.Len(t, list, 1)
	assert.Equal(t, MaskedValue, list[0].Token)
	assert.Equal(t, stored.ID, list[0].ID)
}

func TestDefaultIntegrationIsExclusive(t *testing.T) {
	r, _ := newTestRegistry(t)

	first, err := r.UpsertIntegration(GitIntegration{Name: "first", Default: true})
	require.NoError(t, err)
	second, err := r.UpsertIntegration(GitIntegration{Name: "second", Default: true})
	require.NoError(t, err)

	def, ok := r.DefaultIntegration()
	require.True(t, ok)
	assert.Equal(t, second.ID, def.ID)

	got, _ := r.Integration(first.ID)
	assert.False(t, got.Default, "marking a new default clears the old one")
}

func TestNoDefaultIntegration(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, ok := r.DefaultIntegration()
	assert.False(t, ok)
}

func TestRecordMasking(t *testing.T) {
	r, _ := newTestRegistry(t)

	stored, err := r.Upsert(KindNotifiers, Record{
		Name: "team slack",
		Type: "slack",
		Settings: map[string]any{
			"channel":      "#releases",
			"webhookToken": "xoxb-secret",
			"apiKey":       "key-123",
		},
	})
	require.NoError(t, err)

	got, ok := r.Get(KindNotifiers, stored.ID)
	require.True(t, ok)
	assert.Equal(t, "#releases", got.Settings["channel"])
	assert.Equal(t, MaskedValue, got.Settings["webhookToken"])
	assert.Equal(t, MaskedValue, got.Settings["apiKey"])
}

func TestRecordKindValidation(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Upsert("gadgets", Record{Name: "x"})
	assert.Error(t, err)
}

func TestRegistryPersistsAcrossLoads(t *testing.T) {
	r, path := newTestRegistry(t)

	stored, err := r.UpsertIntegration(GitIntegration{Name: "main", Token: "secret"})
	require.NoError(t, err)
	_, err = r.Upsert(KindExporters, Record{Name: "s3 exporter", Type: "s3"})
	require.NoError(t, err)

	reloaded, err := Load(path)
	require.NoError(t, err)

	got, ok := reloaded.Integration(stored.ID)
	require.True(t, ok)
	assert.Equal(t, "secret", got.Token)
	assert.Len(t, reloaded.List(KindExporters), 1)
}
