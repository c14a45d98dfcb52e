package namedevent

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// watchPath closes b's listener once its rendezvous path is removed or
// replaced, since no new client can reach it by name after that.
func (s *Service) watchPath(b *Broker, socket os.FileInfo) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		b.logger.Warn("rendezvous watch unavailable", slog.String("error", err.Error()))
		return
	}
	if err := w.Add(filepath.Dir(b.path)); err != nil {
		_ = w.Close()
		b.logger.Warn("rendezvous watch unavailable", slog.String("error", err.Error()))
		return
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-b.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != b.path {
					continue
				}
				if !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Create) {
					continue
				}
				if cur, err := os.Lstat(b.path); err == nil && os.SameFile(cur, socket) {
					continue
				}
				b.logger.Info("rendezvous path gone, closing listener",
					slog.String("broker_id", b.id),
					slog.String("op", ev.Op.String()),
				)
				b.StopListening()
				return
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				b.logger.Warn("rendezvous watch error", slog.String("error", err.Error()))
			}
		}
	}()
}
