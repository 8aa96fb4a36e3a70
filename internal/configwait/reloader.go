// Copyright 2025 Castle Bravo Project
// SPDX-License-Identifier: MIT

package configwait

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/chainguard-dev/clog"
)

// ReloadFunc re-runs initialization. A returned error leaves the
// previous state in place.
type ReloadFunc func(ctx context.Context) error

// Reloader re-runs initialization on SIGHUP or programmatic trigger,
// re-replaying installation state from the provider.
type Reloader struct {
	reload ReloadFunc
	ctx    context.Context

	mu        sync.Mutex
	reloading bool
	reloadCh  chan struct{}
}

// NewReloader creates a Reloader that calls reload when triggered.
func NewReloader(ctx context.Context, reload ReloadFunc) *Reloader {
	return &Reloader{
		reload:   reload,
		ctx:      ctx,
		reloadCh: make(chan struct{}, 1),
	}
}

// Start listens for SIGHUP and programmatic triggers in the background.
// The returned channel is closed when the reloader stops.
func (r *Reloader) Start() <-chan struct{} {
	done := make(chan struct{})

	sighupCh := make(chan os.Signal, 1)
	signal.Notify(sighupCh, syscall.SIGHUP)

	go func() {
		defer close(done)
		defer signal.Stop(sighupCh)

		log := clog.FromContext(r.ctx)
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-sighupCh:
				log.Infof("received SIGHUP, re-replaying installation state")
				r.doReload()
			case <-r.reloadCh:
				log.Infof("programmatic reload triggered")
				r.doReload()
			}
		}
	}()

	return done
}

// Trigger requests a reload. A pending reload makes this a no-op.
func (r *Reloader) Trigger() {
	select {
	case r.reloadCh <- struct{}{}:
	default:
	}
}

func (r *Reloader) doReload() {
	r.mu.Lock()
	if r.reloading {
		r.mu.Unlock()
		return
	}
	r.reloading = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.reloading = false
		r.mu.Unlock()
	}()

	log := clog.FromContext(r.ctx)
	if err := r.reload(r.ctx); err != nil {
		log.Errorf("reload failed, keeping previous state: %v", err)
		return
	}
	log.Infof("reload complete")
}
