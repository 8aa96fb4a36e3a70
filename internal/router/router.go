// Copyright 2025 Castle Bravo Project
// SPDX-License-Identifier: MIT

package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/castle-bravo-project/ignition-sub002/internal/tenant"
)

// ErrInvalidSignature rejects a delivery before any tenant state is
// touched. It is reported separately from processor failures.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// SignatureVerifier validates inbound webhook signatures.
type SignatureVerifier interface {
	VerifyWebhookSignature(payload []byte, signature string) bool
}

// Processor handles one webhook event type. The returned metadata is
// attached to the recorded ProcessedEvent.
type Processor interface {
	Process(ctx context.Context, ev *Event) (map[string]any, error)
}

// Router dispatches verified webhook deliveries to registered
// processors and records each outcome.
type Router struct {
	verifier   SignatureVerifier
	registry   *tenant.Registry
	processors map[string]Processor
	history    *history
	metrics    *metrics

	// now is overridable in tests.
	now func() time.Time
}

// Option configures a Router.
type Option func(*Router)

// WithHistoryLimit overrides the bounded history cap.
func WithHistoryLimit(n int) Option {
	return func(r *Router) { r.history = newHistory(n) }
}

// WithMetrics registers the router's collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(r *Router) { r.metrics = newMetrics(reg) }
}

// New creates a Router with the default processors registered for every
// supported event type. sync may be nil, disabling project re-sync
// scheduling from push events.
func New(verifier SignatureVerifier, registry *tenant.Registry, sync ProjectSyncScheduler, opts ...Option) *Router {
	r := &Router{
		verifier:   verifier,
		registry:   registry,
		processors: make(map[string]Processor),
		history:    newHistory(DefaultHistoryLimit),
		metrics:    newMetrics(nil),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.Register(EventInstallation, &installationProcessor{registry: registry})
	r.Register(EventInstallationRepo, &repositoriesProcessor{registry: registry})
	r.Register(EventPush, &pushProcessor{registry: registry, sync: sync})
	r.Register(EventPullRequest, &pullRequestProcessor{registry: registry})
	r.Register(EventIssues, &issuesProcessor{registry: registry})

	security := &securityProcessor{registry: registry}
	r.Register(EventSecurityAdvisory, security)
	r.Register(EventCodeScanning, security)
	r.Register(EventSecretScanning, security)

	return r
}

// Register installs a processor for an event type, replacing any
// existing registration.
func (r *Router) Register(eventType string, p Processor) {
	r.processors[eventType] = p
}

// ProcessWebhook verifies the delivery signature, dispatches the event,
// and records the outcome. Signature failures return ErrInvalidSignature
// without touching tenant state. Every other outcome, including unknown
// event types and processor failures, becomes a recorded ProcessedEvent;
// one failing event never halts subsequent processing.
func (r *Router) ProcessWebhook(ctx context.Context, eventType string, payload []byte, signature string) (*ProcessedEvent, error) {
	return r.processDelivery(ctx, eventType, "", payload, signature)
}

// ProcessDelivery is ProcessWebhook with the provider's delivery id
// attached to logs and the recorded event.
func (r *Router) ProcessDelivery(ctx context.Context, eventType, deliveryID string, payload []byte, signature string) (*ProcessedEvent, error) {
	return r.processDelivery(ctx, eventType, deliveryID, payload, signature)
}

func (r *Router) processDelivery(ctx context.Context, eventType, deliveryID string, payload []byte, signature string) (*ProcessedEvent, error) {
	log := clog.FromContext(ctx).With("delivery", deliveryID, "event", eventType)
	ctx = clog.WithLogger(ctx, log)

	if !r.verifier.VerifyWebhookSignature(payload, signature) {
		r.metrics.signatureFailures.Inc()
		log.Warnf("rejected delivery with invalid signature")
		return nil, ErrInvalidSignature
	}

	pe := ProcessedEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		ProcessedAt: r.now(),
	}
	if deliveryID != "" {
		pe.Metadata = map[string]any{"delivery_id": deliveryID}
	}

	ev, err := decodeEvent(eventType, deliveryID, payload)
	if err != nil {
		pe.Error = err.Error()
		r.record(ctx, pe)
		return &pe, nil
	}
	pe.Action = ev.Action
	pe.InstallationID = ev.InstallationID
	pe.Repository = ev.RepoFullName

	p, ok := r.processors[eventType]
	if !ok {
		pe.Error = fmt.Sprintf("no processor registered for event type %q", eventType)
		r.record(ctx, pe)
		return &pe, nil
	}

	meta, err := r.runProcessor(ctx, p, ev)
	if err != nil {
		pe.Error = err.Error()
	} else {
		pe.Success = true
	}
	for k, v := range meta {
		if pe.Metadata == nil {
			pe.Metadata = make(map[string]any, len(meta))
		}
		pe.Metadata[k] = v
	}

	r.record(ctx, pe)
	return &pe, nil
}

// runProcessor isolates processor faults, converting panics into errors.
func (r *Router) runProcessor(ctx context.Context, p Processor, ev *Event) (meta map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("processor panicked: %v", rec)
		}
	}()
	return p.Process(ctx, ev)
}

func (r *Router) record(ctx context.Context, pe ProcessedEvent) {
	r.history.add(pe)
	r.metrics.recordEvent(pe.Type, pe.Success)
	if pe.Success {
		clog.FromContext(ctx).Infof("processed %s event for installation %d", pe.Type, pe.InstallationID)
	} else {
		clog.FromContext(ctx).Warnf("failed to process %s event: %s", pe.Type, pe.Error)
	}
}

// EventHistory returns up to limit recorded events, most recent first.
// installationID of 0 returns events for all installations.
func (r *Router) EventHistory(installationID int64, limit int) []ProcessedEvent {
	return r.history.list(installationID, limit)
}

// Stats derives aggregate processing statistics from the history.
func (r *Router) Stats() Stats {
	return r.history.stats()
}
