/*
poller.go - Background poller for timeouts and reminders

PURPOSE:
  The engine holds no timers: auto-release and reminder decisions are
  pure predicates (see generic/predicates.go) that some job must drive.
  This poller is that job. On each tick it walks the configured tenants,
  releases prep-room reservations that timed out without check-in, and
  fires reminder events for upcoming appointments.

DESIGN:
  - Runs a background goroutine with a configurable tick interval
  - Reads the clock once per tick and passes that instant to every
    predicate, so one sweep is internally consistent
  - Stamps reminded windows (metadata reminder_sent) so a reminder fires
    at most once per window
  - Failures are logged and skipped; the next tick retries naturally

USAGE:
  p := api.NewPoller(bookingSvc, store, store, notifier, logger, tenants)
  p.Start()
  // ... later
  p.Stop()

SEE ALSO:
  - generic/predicates.go: HasAutoReleaseTimeout, NeedsEmailReminder
  - booking/service.go: AutoReleasePrepRoom
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/evermore/scheduling-engine/booking"
	"github.com/evermore/scheduling-engine/generic"
)

// Poller drives time-based transitions against the window store.
type Poller struct {
	Booking  *booking.Service
	Windows  generic.WindowStore
	Policies generic.PolicyStore
	Notifier generic.Notifier

	// Tenants to sweep on each tick.
	Tenants []generic.TenantID

	// TickInterval defaults to one minute.
	TickInterval time.Duration

	// Now is injectable for tests; nil means time.Now.
	Now func() time.Time

	log    zerolog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewPoller creates a poller over the booking service and engine ports.
func NewPoller(b *booking.Service, windows generic.WindowStore, policies generic.PolicyStore, notifier generic.Notifier, log zerolog.Logger, tenants []generic.TenantID) *Poller {
	if notifier == nil {
		notifier = generic.NopNotifier{}
	}
	return &Poller{
		Booking:      b,
		Windows:      windows,
		Policies:     policies,
		Notifier:     notifier,
		Tenants:      tenants,
		TickInterval: time.Minute,
		log:          log,
		stop:         make(chan struct{}),
	}
}

func (p *Poller) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

// Start begins the background sweep loop.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ticker = time.NewTicker(p.TickInterval)
	p.wg.Add(1)
	go p.run()

	p.log.Info().Dur("interval", p.TickInterval).Msg("poller started")
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ticker != nil {
		p.ticker.Stop()
		close(p.stop)
		p.wg.Wait()
		p.log.Info().Msg("poller stopped")
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (p *Poller) RunNow(ctx context.Context) {
	p.sweep(ctx)
}

func (p *Poller) run() {
	defer p.wg.Done()

	// Sweep immediately on start.
	p.sweep(context.Background())

	for {
		select {
		case <-p.ticker.C:
			p.sweep(context.Background())
		case <-p.stop:
			return
		}
	}
}

func (p *Poller) sweep(ctx context.Context) {
	now := p.now()
	for _, tenant := range p.Tenants {
		p.releaseTimedOut(ctx, tenant, now)
		p.sendReminders(ctx, tenant, now)
	}
}

// releaseTimedOut auto-releases prep-room reservations that sat past the
// policy timeout without check-in.
func (p *Poller) releaseTimedOut(ctx context.Context, tenant generic.TenantID, now time.Time) {
	pv, err := p.Policies.FindCurrent(ctx, generic.BusinessKey{Tenant: tenant, Kind: generic.PolicyPrepRoom})
	if err != nil {
		p.log.Warn().Err(err).Str("tenant", string(tenant)).Msg("no prep room policy, skipping auto-release")
		return
	}

	windows, err := p.Windows.FindCurrentByKind(ctx, tenant, booking.KindPrepRoom.KindID(),
		[]generic.Status{booking.StatusPending, booking.StatusConfirmed})
	if err != nil {
		p.log.Error().Err(err).Str("tenant", string(tenant)).Msg("failed to list reservations")
		return
	}

	for _, w := range windows {
		if !generic.HasAutoReleaseTimeout(w, pv.Rules, now) {
			continue
		}
		if _, err := p.Booking.AutoReleasePrepRoom(ctx, tenant, w.ID); err != nil {
			p.log.Error().Err(err).Str("window", string(w.ID)).Msg("auto-release failed")
			continue
		}
		p.log.Info().
			Str("tenant", string(tenant)).
			Str("window", string(w.ID)).
			Str("resource", string(w.ResourceID)).
			Msg("reservation auto-released")
	}
}

// sendReminders fires reminder events for upcoming appointments and
// stamps the window so each reminder fires at most once.
func (p *Poller) sendReminders(ctx context.Context, tenant generic.TenantID, now time.Time) {
	pv, err := p.Policies.FindCurrent(ctx, generic.BusinessKey{Tenant: tenant, Kind: generic.PolicyAppointment})
	if err != nil {
		p.log.Warn().Err(err).Str("tenant", string(tenant)).Msg("no appointment policy, skipping reminders")
		return
	}

	windows, err := p.Windows.FindCurrentByKind(ctx, tenant, booking.KindAppointment.KindID(),
		[]generic.Status{booking.StatusScheduled, booking.StatusConfirmed})
	if err != nil {
		p.log.Error().Err(err).Str("tenant", string(tenant)).Msg("failed to list appointments")
		return
	}

	for _, w := range windows {
		if !generic.NeedsEmailReminder(w, pv.Rules, now) {
			continue
		}

		if err := p.Notifier.Publish(ctx, generic.Event{
			Kind:     generic.EventReminderDue,
			TenantID: tenant,
			WindowID: w.ID,
			At:       now,
			Details:  map[string]string{"start": w.Start.Format(time.RFC3339)},
		}); err != nil {
			p.log.Error().Err(err).Str("window", string(w.ID)).Msg("reminder publish failed")
			continue
		}

		w.SetMeta(generic.MetaReminderSent, "true")
		w.UpdatedBy = generic.ActorSystem
		w.UpdatedAt = now
		if _, err := p.Windows.Update(ctx, w, nil); err != nil {
			// The stamp lost a race; the next sweep re-evaluates.
			p.log.Warn().Err(err).Str("window", string(w.ID)).Msg("reminder stamp failed")
			continue
		}
		p.log.Info().
			Str("tenant", string(tenant)).
			Str("window", string(w.ID)).
			Msg("reminder sent")
	}
}
