package runtime

import (
	"context"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/flagforge/flagforge/pkg/notifier"
	"github.com/flagforge/flagforge/pkg/pipeline"
	"github.com/flagforge/flagforge/pkg/registry"
	"github.com/flagforge/flagforge/pkg/service"
	"github.com/flagforge/flagforge/pkg/store"
)

// Config is the environment-level configuration of the flag console.
type Config struct {
	Port        int
	StorageRoot string

	// Relay proxy refresh signal.
	RelayURL        string
	RelayToken      string
	RefreshSchedule string
}

const registryFile = "registry.yaml"

// Start wires the store, registry, pipeline and HTTP service together and
// serves until ctx is canceled. All dependencies are constructed here, so
// tests can build their own composition against a temporary directory.
func Start(ctx context.Context, cfg Config) error {
	st, err := store.New(cfg.StorageRoot)
	if err != nil {
		return err
	}

	reg, err := registry.Load(filepath.Join(cfg.StorageRoot, registryFile))
	if err != nil {
		return err
	}

	relay := notifier.NewRelayProxy(cfg.RelayURL, cfg.RelayToken)
	pipe := pipeline.New(st, reg, relay)

	svc, err := service.New(service.Config{Port: cfg.Port}, st, reg, pipe, relay)
	if err != nil {
		return err
	}

	scheduler, err := notifier.NewScheduler(cfg.RefreshSchedule, relay)
	if err != nil {
		return err
	}
	defer scheduler.Stop()

	// out-of-band file edits (a merged proposal pulled to disk) also reach
	// the relay
	go func() {
		if err := st.Watch(ctx, func(string) { relay.RefreshAsync() }); err != nil {
			log.WithError(err).Error("storage watcher stopped")
		}
	}()

	log.WithFields(log.Fields{
		"storage": cfg.StorageRoot,
		"port":    cfg.Port,
	}).Info("flag console starting")
	return svc.Serve(ctx)
}
