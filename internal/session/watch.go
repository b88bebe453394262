package session

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDelay = 150 * time.Millisecond

// watchConfig reloads the policy when either config file is written,
// created, renamed or removed. The parent directories are watched since
// editors and the resolver itself replace files by rename. Bursts of
// events are coalesced into one reload.
func (s *Session) watchConfig(ctx context.Context) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.Warn("config watch unavailable", "error", err)
		return
	}
	defer w.Close()

	paths := s.resolver.Paths()
	targets := map[string]bool{}
	for _, p := range []string{paths.Global, paths.Project} {
		if p == "" {
			continue
		}
		p = filepath.Clean(p)
		targets[p] = true
		dir := filepath.Dir(p)
		if err := w.Add(dir); err != nil {
			s.log.Debug("not watching config directory", "dir", dir, "error", err)
		}
	}

	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !targets[filepath.Clean(ev.Name)] {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			s.log.Debug("config changed", "path", ev.Name, "op", ev.Op.String())
			timer.Reset(reloadDelay)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.log.Warn("config watch error", "error", err)
		case <-timer.C:
			s.Reload()
		}
	}
}
