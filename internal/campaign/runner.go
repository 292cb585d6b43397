package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/damaro/courier/internal/channel"
	"github.com/damaro/courier/internal/events"
	"github.com/damaro/courier/internal/metrics"
)

// Sender is the delivery half of the channel client capability
type Sender interface {
	SendText(ctx context.Context, addr, text string) error
	SendMedia(ctx context.Context, addr string, media channel.Media, caption string) error
}

// Limiter gates send attempts and charges successful ones
type Limiter interface {
	Allow(tenant string) bool
	Charge(tenant string)
}

// Saver persists campaign snapshots between iterations
type Saver interface {
	SaveCampaign(tenant string, snap *Snapshot) error
}

// Options holds scheduling knobs shared by all tenants
type Options struct {
	// Wait before re-polling after the hourly cap is hit
	LimitBackoff time.Duration

	// Pacing bounds: MinInterval is the floor for tenant-supplied values,
	// DefaultMin/DefaultMax apply when a value is absent or invalid.
	MinInterval int
	DefaultMin  int
	DefaultMax  int

	// Addressing
	AddressField  string
	CountryCode   string
	AddressSuffix string
}

func (o *Options) setDefaults() {
	if o.LimitBackoff == 0 {
		o.LimitBackoff = 60 * time.Second
	}
	if o.MinInterval == 0 {
		o.MinInterval = 10
	}
	if o.DefaultMin == 0 {
		o.DefaultMin = 60
	}
	if o.DefaultMax == 0 {
		o.DefaultMax = 180
	}
	if o.AddressField == "" {
		o.AddressField = "numero"
	}
}

// Runner drives one tenant's dispatch loop. All state mutation happens
// under r.mu; the delivery attempt is the only step performed outside
// the lock. At most one loop goroutine exists per tenant: start and
// resume are no-ops while a loop is alive, and the loop exits on its own
// when the state flags tell it to stop.
type Runner struct {
	tenant  string
	opts    Options
	sender  Sender
	limiter Limiter
	hub     *events.Hub
	store   Saver
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	state   *State
	running bool
	cancel  context.CancelFunc

	// test seams
	now       func() time.Time
	randInt   func(n int) int
	delayUnit time.Duration
}

// NewRunner creates a dispatch loop for one tenant. store and metrics
// may be nil.
func NewRunner(tenant string, state *State, sender Sender, limiter Limiter, hub *events.Hub, store Saver, m *metrics.Metrics, logger *slog.Logger, opts Options) *Runner {
	opts.setDefaults()
	return &Runner{
		tenant:    tenant,
		opts:      opts,
		sender:    sender,
		limiter:   limiter,
		hub:       hub,
		store:     store,
		metrics:   m,
		logger:    logger.With("component", "campaign", "tenant", tenant),
		state:     state,
		now:       time.Now,
		randInt:   func(n int) int { return rand.IntN(n) },
		delayUnit: time.Second,
	}
}

// Replace overwrites the contact list from uploaded rows
func (r *Runner) Replace(rows []map[string]string) {
	r.mu.Lock()
	r.state.Replace(rows)
	contacts := r.state.cloneContacts()
	snap := r.state.snapshot()
	r.mu.Unlock()

	r.hub.Publish(events.NewContacts(contacts))
	r.persist(snap)
}

// Attach stores the shared attachment for the current batch
func (r *Runner) Attach(att *Attachment) {
	r.mu.Lock()
	r.state.Attach(att)
	contacts := r.state.cloneContacts()
	snap := r.state.snapshot()
	r.mu.Unlock()

	r.hub.Publish(events.NewContacts(contacts))
	r.persist(snap)
}

// Configure updates the message template and pacing bounds, applying the
// clamping rules: min defaults when absent/invalid and is floored at
// MinInterval; max defaults when absent/invalid and is clamped up to min.
func (r *Runner) Configure(template string, intervalMin, intervalMax int) {
	if intervalMin <= 0 {
		intervalMin = r.opts.DefaultMin
	}
	if intervalMin < r.opts.MinInterval {
		intervalMin = r.opts.MinInterval
	}
	if intervalMax <= 0 {
		intervalMax = r.opts.DefaultMax
	}
	if intervalMax < intervalMin {
		intervalMax = intervalMin
	}

	r.mu.Lock()
	r.state.Template = template
	r.state.IntervalMin = intervalMin
	r.state.IntervalMax = intervalMax
	snap := r.state.snapshot()
	r.mu.Unlock()

	r.persist(snap)
}

// Start begins sending. It has no effect while a campaign is already
// sending.
func (r *Runner) Start() {
	r.mu.Lock()
	if r.state.Sending {
		r.mu.Unlock()
		return
	}
	r.state.Sending = true
	r.state.Paused = false
	buttons := r.state.Buttons()
	r.launchLocked()
	r.mu.Unlock()

	r.hub.Publish(events.NewStatus("started"))
	r.hub.Publish(events.NewButtons(buttons))
}

// Pause holds the campaign. The already-scheduled wake-up no-ops and the
// loop goroutine winds down; Resume starts a fresh one.
func (r *Runner) Pause() {
	r.mu.Lock()
	if !r.state.Sending || r.state.Paused {
		r.mu.Unlock()
		return
	}
	r.state.Paused = true
	buttons := r.state.Buttons()
	r.mu.Unlock()

	r.hub.Publish(events.NewStatus("paused"))
	r.hub.Publish(events.NewButtons(buttons))
}

// Resume continues a paused or cancelled campaign from the current
// cursor position. It has no effect while the campaign is actively
// sending.
func (r *Runner) Resume() {
	r.mu.Lock()
	if r.state.Sending && !r.state.Paused {
		r.mu.Unlock()
		return
	}
	r.state.Sending = true
	r.state.Paused = false
	buttons := r.state.Buttons()
	r.launchLocked()
	r.mu.Unlock()

	r.hub.Publish(events.NewStatus("resumed"))
	r.hub.Publish(events.NewButtons(buttons))
}

// Cancel stops the campaign but keeps the cursor, so a later resume
// continues where it left off. An in-flight attempt is not interrupted;
// its outcome is still recorded before the loop observes the flag.
func (r *Runner) Cancel() {
	r.mu.Lock()
	if !r.state.Sending && !r.state.Paused {
		r.mu.Unlock()
		return
	}
	r.state.Sending = false
	r.state.Paused = false
	buttons := r.state.Buttons()
	r.mu.Unlock()

	r.hub.Publish(events.NewStatus("cancelled"))
	r.hub.Publish(events.NewButtons(buttons))
}

// Close tears the runner down for process shutdown. Unlike Cancel it
// aborts the loop goroutine immediately, including an in-flight attempt.
func (r *Runner) Close() {
	r.mu.Lock()
	r.state.Sending = false
	r.state.Paused = false
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()
}

// View is a read-only snapshot of the campaign for status endpoints
type View struct {
	Contacts    []*Contact     `json:"contacts"`
	Cursor      int            `json:"cursor"`
	Total       int            `json:"total"`
	Sending     bool           `json:"sending"`
	Paused      bool           `json:"paused"`
	Template    string         `json:"template"`
	IntervalMin int            `json:"intervalMin"`
	IntervalMax int            `json:"intervalMax"`
	Buttons     events.Buttons `json:"buttons"`
}

// View returns the current campaign state for observers
func (r *Runner) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return View{
		Contacts:    r.state.cloneContacts(),
		Cursor:      r.state.Cursor,
		Total:       len(r.state.Contacts),
		Sending:     r.state.Sending,
		Paused:      r.state.Paused,
		Template:    r.state.Template,
		IntervalMin: r.state.IntervalMin,
		IntervalMax: r.state.IntervalMax,
		Buttons:     r.state.Buttons(),
	}
}

// launchLocked spawns the loop goroutine unless one is already alive.
// Callers hold r.mu.
func (r *Runner) launchLocked() {
	if r.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.running = true
	go r.run(ctx)
}

func (r *Runner) run(ctx context.Context) {
	r.metrics.CampaignStarted()
	defer r.finishRun()

	for {
		delay, cont := r.step(ctx)
		if !cont {
			return
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}

// finishRun is the loop goroutine's deferred cleanup. A control event
// can land between the loop's decision to stop and this cleanup; its
// launchLocked call sees the old goroutine still marked running and
// declines to spawn. Re-checking the flags here, under the same lock
// that clears running, relaunches in that case so the wakeup is never
// lost.
func (r *Runner) finishRun() {
	if rec := recover(); rec != nil {
		// Invariant violation in the loop itself. Abort this tenant's
		// loop; other tenants are unaffected.
		r.logger.Error("campaign loop aborted", "panic", rec)
		r.mu.Lock()
		r.state.Sending = false
		r.state.Paused = false
		r.mu.Unlock()
	}

	r.mu.Lock()
	r.running = false
	if r.state.Sending && !r.state.Paused {
		r.launchLocked()
	}
	r.mu.Unlock()
	r.metrics.CampaignStopped()
}

// step performs one loop iteration and reports how long to sleep before
// the next one. cont=false stops the loop; control events are then the
// only way to start it again.
func (r *Runner) step(ctx context.Context) (delay time.Duration, cont bool) {
	if ctx.Err() != nil {
		return 0, false
	}

	r.mu.Lock()

	// Suspension point: pause and cancel are observed here.
	if !r.state.Sending || r.state.Paused {
		r.mu.Unlock()
		return 0, false
	}

	// Hourly cap: back off without advancing the cursor. The gate only
	// checks; budget is charged after a successful send.
	if !r.limiter.Allow(r.tenant) {
		r.mu.Unlock()
		r.metrics.RateLimited(r.tenant)
		r.hub.Publish(events.NewStatus("hourly limit reached, waiting"))
		return r.opts.LimitBackoff, true
	}

	// Batch complete.
	if r.state.Cursor >= len(r.state.Contacts) {
		r.state.Sending = false
		r.state.Paused = false
		buttons := r.state.Buttons()
		r.mu.Unlock()
		r.hub.Publish(events.NewStatus("completed"))
		r.hub.Publish(events.NewButtons(buttons))
		return 0, false
	}

	contact := r.state.Contacts[r.state.Cursor]
	addr := channel.NormalizeAddress(contact.Field(r.opts.AddressField), r.opts.CountryCode, r.opts.AddressSuffix)
	if addr == "" {
		// Malformed row: skip synchronously, no delay, no budget.
		r.state.Cursor++
		r.mu.Unlock()
		return 0, true
	}

	text := Render(r.state.Template, contact.Fields)
	attachment := r.state.Attachment
	total := len(r.state.Contacts)
	intervalMin, intervalMax := r.state.IntervalMin, r.state.IntervalMax
	contact.Status = StatusSending
	sending := contact.Clone()
	r.mu.Unlock()

	r.hub.Publish(events.NewContactUpdated(sending))

	attemptedAt := r.now().Format("15:04:05")
	sendErr := r.attempt(ctx, addr, text, attachment)

	r.mu.Lock()
	if sendErr != nil {
		contact.Status = StatusError
		contact.AttachmentStatus = AttachmentError
	} else {
		contact.Status = StatusSent
		if attachment != nil {
			contact.AttachmentStatus = AttachmentSent
		}
		r.limiter.Charge(r.tenant)
	}
	contact.SentAt = attemptedAt
	r.state.Cursor++
	current := r.state.Cursor
	updated := contact.Clone()
	label := contact.Label(r.opts.AddressField)
	snap := r.state.snapshot()
	r.mu.Unlock()

	if sendErr != nil {
		r.logger.Warn("send failed", "contact", label, "error", sendErr)
		r.metrics.MessageFailed(r.tenant)
		r.hub.Publish(events.NewDeliveryError(label, sendErr.Error()))
	} else {
		r.metrics.MessageSent(r.tenant)
	}

	r.hub.Publish(events.NewContactUpdated(updated))
	r.hub.Publish(events.NewProgress(current, total, label))
	r.persist(snap)

	seconds := r.nextDelay(intervalMin, intervalMax)
	r.startCountdown(ctx, seconds)
	return time.Duration(seconds) * r.delayUnit, true
}

// attempt performs the delivery through the channel client, converting
// any failure, including a panicking client, into an error.
func (r *Runner) attempt(ctx context.Context, addr, text string, att *Attachment) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("channel client panic: %v", rec)
		}
	}()

	if att != nil {
		media := channel.Media{Data: att.Data, Mime: att.Mime, Filename: att.Filename}
		return r.sender.SendMedia(ctx, addr, media, text)
	}
	return r.sender.SendText(ctx, addr, text)
}

// nextDelay picks a uniform random integer in [min, max] seconds
func (r *Runner) nextDelay(min, max int) int {
	if max < min {
		max = min
	}
	return min + r.randInt(max-min+1)
}

// startCountdown emits advisory one-second ticks from seconds down to
// zero. Rescheduling uses the delay value itself, never these ticks.
func (r *Runner) startCountdown(ctx context.Context, seconds int) {
	if seconds <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(r.delayUnit)
		defer ticker.Stop()

		remaining := seconds
		r.hub.Publish(events.NewCountdown(remaining))
		for remaining > 0 {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				remaining--
				r.hub.Publish(events.NewCountdown(remaining))
			}
		}
	}()
}

func (r *Runner) persist(snap *Snapshot) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveCampaign(r.tenant, snap); err != nil {
		r.logger.Error("failed to persist campaign snapshot", "error", err)
	}
}
