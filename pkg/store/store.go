package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/flagforge/flagforge/pkg/model"
)

// fileSuffix marks project flag files under the storage root. Other files
// (registry.yaml, editor leftovers) are ignored by ListProjects and Watch.
const fileSuffix = ".flags.yaml"

// Store persists one flag map per project as a yaml file under a root
// directory. Writers to the same project are serialized through a per-project
// readers-writer lock; writers to different projects do not block each other.
type Store struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// New creates the root directory if needed and returns a store over it.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, &StorageError{Op: "mkdir", Project: "", Err: err}
	}
	return &Store{
		root:  root,
		locks: map[string]*sync.RWMutex{},
	}, nil
}

func (s *Store) lock(project string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[project]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[project] = l
	}
	return l
}

func validProject(project string) bool {
	return project != "" &&
		!strings.ContainsAny(project, `/\`) &&
		project != "." && project != ".."
}

func (s *Store) path(project string) string {
	return filepath.Join(s.root, project+fileSuffix)
}

// Read returns the project's flag map. A missing file is not an error: the
// exists flag distinguishes "no project" from "project with no flags".
func (s *Store) Read(project string) (map[string]*model.FlagConfig, bool, error) {
	if !validProject(project) {
		return nil, false, fmt.Errorf("%w: %q", ErrInvalidProject, project)
	}

	l := s.lock(project)
	l.RLock()
	defer l.RUnlock()

	raw, err := os.ReadFile(s.path(project))
	if os.IsNotExist(err) {
		return map[string]*model.FlagConfig{}, false, nil
	}
	if err != nil {
		return nil, false, &StorageError{Op: "read", Project: project, Err: err}
	}

	flags, err := Decode(raw)
	if err != nil {
		return nil, true, &CorruptionError{Project: project, Err: err}
	}
	return flags, true, nil
}

// Write replaces the project file's full contents atomically. The map is
// serialized as a whole and swapped in via rename, so a concurrent reader
// never observes a partial write.
func (s *Store) Write(project string, flags map[string]*model.FlagConfig) error {
	if !validProject(project) {
		return fmt.Errorf("%w: %q", ErrInvalidProject, project)
	}

	raw, err := Encode(flags)
	if err != nil {
		return &StorageError{Op: "encode", Project: project, Err: err}
	}

	l := s.lock(project)
	l.Lock()
	defer l.Unlock()

	return s.writeLocked(project, raw, len(flags))
}

// Create writes a new project file, failing with ErrProjectExists when one is
// already present. The existence check runs under the project's write lock,
// so two concurrent creates cannot both succeed.
func (s *Store) Create(project string, flags map[string]*model.FlagConfig) error {
	if !validProject(project) {
		return fmt.Errorf("%w: %q", ErrInvalidProject, project)
	}

	raw, err := Encode(flags)
	if err != nil {
		return &StorageError{Op: "encode", Project: project, Err: err}
	}

	l := s.lock(project)
	l.Lock()
	defer l.Unlock()

	if _, err := os.Stat(s.path(project)); err == nil {
		return fmt.Errorf("%w: %q", ErrProjectExists, project)
	} else if !os.IsNotExist(err) {
		return &StorageError{Op: "create", Project: project, Err: err}
	}

	return s.writeLocked(project, raw, len(flags))
}

// writeLocked swaps the serialized map in via rename; the caller holds the
// project's write lock.
func (s *Store) writeLocked(project string, raw []byte, flags int) error {
	tmp, err := os.CreateTemp(s.root, project+".*.tmp")
	if err != nil {
		return &StorageError{Op: "write", Project: project, Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return &StorageError{Op: "write", Project: project, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &StorageError{Op: "write", Project: project, Err: err}
	}
	if err := os.Rename(tmp.Name(), s.path(project)); err != nil {
		return &StorageError{Op: "write", Project: project, Err: err}
	}

	log.WithFields(log.Fields{"project": project, "flags": flags}).Debug("project file written")
	return nil
}

// Delete removes the project file. Returns ErrProjectNotFound when there is
// nothing to remove.
func (s *Store) Delete(project string) error {
	if !validProject(project) {
		return fmt.Errorf("%w: %q", ErrInvalidProject, project)
	}

	l := s.lock(project)
	l.Lock()
	defer l.Unlock()

	err := os.Remove(s.path(project))
	if os.IsNotExist(err) {
		return ErrProjectNotFound
	}
	if err != nil {
		return &StorageError{Op: "delete", Project: project, Err: err}
	}
	return nil
}

// ListProjects enumerates the persisted project files, sorted by name.
func (s *Store) ListProjects() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, &StorageError{Op: "list", Project: "", Err: err}
	}

	projects := []string{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileSuffix) {
			continue
		}
		projects = append(projects, strings.TrimSuffix(entry.Name(), fileSuffix))
	}
	sort.Strings(projects)
	return projects, nil
}

// Encode renders a project flag map in the on-disk format. The publish
// pipeline uses the same encoding for pull-request content, so a directly
// written file and a merged proposal are byte-for-byte identical.
func Encode(flags map[string]*model.FlagConfig) ([]byte, error) {
	if flags == nil {
		flags = map[string]*model.FlagConfig{}
	}
	return yaml.Marshal(flags)
}

// Decode parses the on-disk format back into a flag map.
func Decode(raw []byte) (map[string]*model.FlagConfig, error) {
	flags := map[string]*model.FlagConfig{}
	if err := yaml.Unmarshal(raw, &flags); err != nil {
		return nil, err
	}
	return flags, nil
}
