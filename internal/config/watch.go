package config

import (
	"context"
	"path/filepath"

	"emperror.dev/errors"
	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watch reloads path whenever it changes and calls onChange with the new config
// when its hash differs from the last one seen. Files that fail to load are
// logged and skipped. Watch returns when ctx is cancelled.
func Watch(ctx context.Context, path string, overrides map[string]interface{}, current *Config, onChange func(*Config)) error {
	lastHash, err := current.Hash()
	if err != nil {
		return errors.WrapIf(err, "failed to hash config")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WithStack(err)
	}
	defer watcher.Close()

	// editors replace files rather than writing them, so watch the directory
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return errors.WithStack(err)
	}
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("could not retrieve event")
			}
			if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			cfg, err := Load(path, overrides)
			if err != nil {
				log.WithError(err).WithField("path", path).Warn("ignoring invalid config file")
				continue
			}
			hash, err := cfg.Hash()
			if err != nil {
				log.WithError(err).Warn("failed to hash config")
				continue
			}
			if hash == lastHash {
				log.WithField("path", path).Debug("config file changed but effective config did not")
				continue
			}

			log.WithField("path", path).Info("reloading config file")
			lastHash = hash
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("could not retrieve error")
			}
			return errors.WithStack(err)
		}
	}
}
