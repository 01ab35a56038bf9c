package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Record kinds managed by the registry. Integrations are stored separately
// because the publish pipeline consumes them as typed GitIntegration values.
const (
	KindFlagSets   = "flagsets"
	KindNotifiers  = "notifiers"
	KindExporters  = "exporters"
	KindRetrievers = "retrievers"
)

var recordKinds = []string{KindFlagSets, KindNotifiers, KindExporters, KindRetrievers}

// ErrNotFound is returned when a record or integration id is unknown.
var ErrNotFound = errors.New("registry entry not found")

// ValidKind reports whether kind names a generic record bucket.
func ValidKind(kind string) bool {
	for _, k := range recordKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Record is a generic keyed configuration entry (flag set, notifier,
// exporter or retriever). Settings are free-form; secret-looking keys are
// masked on read views.
type Record struct {
	ID       string         `json:"id" yaml:"id"`
	Name     string         `json:"name" yaml:"name"`
	Type     string         `json:"type,omitempty" yaml:"type,omitempty"`
	Settings map[string]any `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// GitIntegration is a registered git endpoint the publish pipeline can open
// proposals against.
type GitIntegration struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Provider string `json:"provider" yaml:"provider"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	Token    string `json:"token" yaml:"token"`

	// ADO coordinates.
	Organization string `json:"organization,omitempty" yaml:"organization,omitempty"`
	Project      string `json:"project,omitempty" yaml:"project,omitempty"`
	Repository   string `json:"repository,omitempty" yaml:"repository,omitempty"`

	// GitLab project id or url-encoded path.
	ProjectID string `json:"projectId,omitempty" yaml:"projectId,omitempty"`

	BaseBranch    string `json:"baseBranch" yaml:"baseBranch"`
	FlagsFilePath string `json:"flagsFilePath" yaml:"flagsFilePath"`

	// Default marks the tenant-wide integration used when a publish call does
	// not name one.
	Default bool `json:"default,omitempty" yaml:"default,omitempty"`
}

// Masked returns a read view with the credential hidden.
func (g GitIntegration) Masked() GitIntegration {
	if g.Token != "" {
		g.Token = MaskedValue
	}
	return g
}

// MaskedValue is what read views show in place of a secret.
const MaskedValue = "**********"

var secretKeys = []string{"token", "secret", "password", "apikey", "api_key", "credential"}

func maskSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	masked := make(map[string]any, len(settings))
	for key, value := range settings {
		lower := strings.ToLower(key)
		hidden := false
		for _, s := range secretKeys {
			if strings.Contains(lower, s) {
				hidden = true
				break
			}
		}
		if hidden {
			masked[key] = MaskedValue
		} else {
			masked[key] = value
		}
	}
	return masked
}

// Masked returns a read view of the record with secret-looking settings
// hidden.
func (r Record) Masked() Record {
	r.Settings = maskSettings(r.Settings)
	return r
}

type registryFile struct {
	Integrations map[string]GitIntegration    `yaml:"integrations"`
	Records      map[string]map[string]Record `yaml:"records"`
}

// Registry owns the keyed configuration stores and persists them as a single
// yaml file beside the project files. All methods are safe for concurrent
// use.
type Registry struct {
	mu   sync.RWMutex
	path string
	data registryFile
}

// Load reads the registry file, or starts empty when it does not exist.
func Load(path string) (*Registry, error) {
	r := &Registry{
		path: path,
		data: registryFile{
			Integrations: map[string]GitIntegration{},
			Records:      map[string]map[string]Record{},
		},
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	if err := yaml.Unmarshal(raw, &r.data); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	if r.data.Integrations == nil {
		r.data.Integrations = map[string]GitIntegration{}
	}
	if r.data.Records == nil {
		r.data.Records = map[string]map[string]Record{}
	}
	return r, nil
}

// save persists the registry. Caller holds the write lock.
func (r *Registry) save() error {
	raw, err := yaml.Marshal(r.data)
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".registry.*.tmp")
	if err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	return nil
}

// UpsertIntegration stores a git integration, assigning an id when missing.
// Marking one integration as default clears the flag on the others.
func (r *Registry) UpsertIntegration(integration GitIntegration) (GitIntegration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if integration.ID == "" {
		integration.ID = uuid.NewString()
	}
	if integration.Default {
		for id, other := range r.data.Integrations {
			if other.Default {
				other.Default = false
				r.data.Integrations[id] = other
			}
		}
	}
	r.data.Integrations[integration.ID] = integration
	if err := r.save(); err != nil {
		return GitIntegration{}, err
	}
	return integration, nil
}

// Integration looks up an integration by id, unmasked; it is the pipeline's
// read path and carries the real credential.
func (r *Registry) Integration(id string) (GitIntegration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	integration, ok := r.data.Integrations[id]
	return integration, ok
}

// DefaultIntegration returns the tenant-wide default, when one is marked.
func (r *Registry) DefaultIntegration() (GitIntegration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, integration := range r.data.Integrations {
		if integration.Default {
			return integration, true
		}
	}
	return GitIntegration{}, false
}

// ListIntegrations returns masked read views of all integrations.
func (r *Registry) ListIntegrations() []GitIntegration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]GitIntegration, 0, len(r.data.Integrations))
	for _, integration := range r.data.Integrations {
		list = append(list, integration.Masked())
	}
	return list
}

func (r *Registry) DeleteIntegration(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data.Integrations[id]; !ok {
		return ErrNotFound
	}
	delete(r.data.Integrations, id)
	return r.save()
}

// Upsert stores a generic record under kind, assigning an id when missing.
func (r *Registry) Upsert(kind string, record Record) (Record, error) {
	if !ValidKind(kind) {
		return Record{}, fmt.Errorf("unknown registry kind %q", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if r.data.Records[kind] == nil {
		r.data.Records[kind] = map[string]Record{}
	}
	r.data.Records[kind][record.ID] = record
	if err := r.save(); err != nil {
		return Record{}, err
	}
	return record, nil
}

// Get returns a masked read view of one record.
func (r *Registry) Get(kind, id string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.data.Records[kind][id]
	if !ok {
		return Record{}, false
	}
	return record.Masked(), true
}

// List returns masked read views of all records under kind.
func (r *Registry) List(kind string) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]Record, 0, len(r.data.Records[kind]))
	for _, record := range r.data.Records[kind] {
		list = append(list, record.Masked())
	}
	return list
}

func (r *Registry) Delete(kind, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data.Records[kind][id]; !ok {
		return ErrNotFound
	}
	delete(r.data.Records[kind], id)
	return r.save()
}
