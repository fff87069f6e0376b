package watch

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"github.com/ampio/canresolve/internal/logging"
	"github.com/ampio/canresolve/internal/model"
	"github.com/ampio/canresolve/internal/netdesc"
	"github.com/ampio/canresolve/internal/resolve"
)

// Watcher polls a network description file for changes and re-runs
// resolve.Resolve on every change, broadcasting stage transitions and the
// final outcome to the Hub. Polling (rather than an inotify-style watch)
// matches the gateway's own preference for simple, portable timers over
// platform-specific event sources (see cmd/canresolve's periodic metrics logger).
type Watcher struct {
	Path     string
	Interval time.Duration
	Hub      *Hub

	seq atomic.Uint64
}

// NewWatcher constructs a Watcher with a sane default poll interval.
func NewWatcher(path string, hub *Hub) *Watcher {
	return &Watcher{Path: path, Interval: time.Second, Hub: hub}
}

// Run polls until ctx is cancelled, resolving once immediately and again
// every time the file's modification time advances.
func (w *Watcher) Run(ctx context.Context) {
	var lastMod time.Time
	t := time.NewTicker(w.Interval)
	defer t.Stop()
	w.tryResolve(&lastMod)
	for {
		select {
		case <-t.C:
			w.tryResolve(&lastMod)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) tryResolve(lastMod *time.Time) {
	info, err := os.Stat(w.Path)
	if err != nil {
		logging.L().Warn("watch_stat_failed", "path", w.Path, "error", err)
		return
	}
	if !info.ModTime().After(*lastMod) {
		return
	}
	*lastMod = info.ModTime()
	logging.L().Info("watch_resolve_start", "path", w.Path)

	b, err := netdesc.Load(w.Path)
	if err != nil {
		w.broadcast(resolve.StageFailed, err.Error())
		logging.L().Error("watch_load_failed", "error", err)
		return
	}
	input := b.Freeze()
	net, err := resolve.Resolve(input, resolve.WithProgress(func(stage resolve.Stage, detail string) {
		w.broadcast(stage, detail)
	}))
	if err != nil {
		logging.L().Error("watch_resolve_failed", "error", err)
		return
	}
	w.broadcastDone(net)
}

func (w *Watcher) broadcast(stage resolve.Stage, detail string) {
	if w.Hub == nil {
		return
	}
	w.Hub.Broadcast(FromStage(w.seq.Add(1), stage, detail))
}

func (w *Watcher) broadcastDone(net *model.Network) {
	if w.Hub == nil {
		return
	}
	w.Hub.Broadcast(Event{
		Stage:    resolve.StageDone.String(),
		Sequence: w.seq.Add(1),
		Messages: len(net.Messages),
		Buses:    len(net.Buses),
	})
}
