package store

import (
	"context"
	"strings"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watch observes the storage root and invokes fn with the project name
// whenever a project file is written, created or removed out-of-band (an
// editor, a git pull of a merged proposal). It blocks until ctx is done.
//
// The store's own writes also trigger fn; callers are expected to treat the
// callback as a best-effort change signal, not an exact edit log.
func (s *Store) Watch(ctx context.Context, fn func(project string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return &StorageError{Op: "watch", Project: "", Err: err}
	}
	defer watcher.Close()

	if err := watcher.Add(s.root); err != nil {
		return &StorageError{Op: "watch", Project: "", Err: err}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Remove) {
				continue
			}
			name := event.Name
			if i := strings.LastIndexAny(name, `/\`); i >= 0 {
				name = name[i+1:]
			}
			if !strings.HasSuffix(name, fileSuffix) {
				continue
			}
			project := strings.TrimSuffix(name, fileSuffix)
			log.WithFields(log.Fields{"project": project, "op": event.Op.String()}).Debug("project file changed on disk")
			fn(project)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Error("storage watcher error")
		}
	}
}
