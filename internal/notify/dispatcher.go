package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"walkin-queue-coordinator/internal/audit"
	"walkin-queue-coordinator/internal/domain"
	"walkin-queue-coordinator/internal/models"
	"walkin-queue-coordinator/internal/realtime"
	"walkin-queue-coordinator/pkg/circuit"
	errs "walkin-queue-coordinator/pkg/errors"
	"walkin-queue-coordinator/pkg/logging"
	"walkin-queue-coordinator/pkg/metrics"
	"walkin-queue-coordinator/pkg/retry"
)

// Notification is one customer-facing message to fan out.
type Notification struct {
	QueueID string
	UserID  string
	VenueID string
	Kind    models.NotificationKind
	Data    TemplateData

	// FrameFields are merged into the realtime frame on top of title/body.
	FrameFields map[string]any
}

// Breakers holds the per-channel circuit breakers.
type Breakers struct {
	Realtime *circuit.Breaker
	SMS      *circuit.Breaker
	Push     *circuit.Breaker
}

// Dispatcher renders a notification and delivers it concurrently over the
// realtime bus, SMS and web push. Overall success means at least one channel
// delivered. A NotificationLog is written whatever the outcome.
type Dispatcher struct {
	renderer *Renderer
	bus      *realtime.Bus
	sms      *SMSSender
	push     *WebPushSender
	users    domain.UserRepository
	audit    *audit.Writer
	breakers Breakers
	policy   retry.Policy
	clock    clockwork.Clock
	log      *logging.Logger

	// sf collapses concurrent duplicate dispatches for the same entry+kind,
	// e.g. a sweeper and an operator acting in the same instant.
	sf singleflight.Group

	mDispatched *metrics.Counter
	mSucceeded  *metrics.Counter
	mChanFailed *metrics.Counter
}

func NewDispatcher(
	renderer *Renderer,
	bus *realtime.Bus,
	sms *SMSSender,
	push *WebPushSender,
	users domain.UserRepository,
	auditw *audit.Writer,
	breakers Breakers,
	policy retry.Policy,
	clock clockwork.Clock,
	log *logging.Logger,
) *Dispatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if policy.ShouldRetry == nil {
		policy.ShouldRetry = errs.Retryable
	}
	return &Dispatcher{
		renderer:    renderer,
		bus:         bus,
		sms:         sms,
		push:        push,
		users:       users,
		audit:       auditw,
		breakers:    breakers,
		policy:      policy,
		clock:       clock,
		log:         log.WithComponent("notify"),
		mDispatched: metrics.Default.Counter("notify_dispatch_total", "Notifications dispatched"),
		mSucceeded:  metrics.Default.Counter("notify_success_total", "Notifications with at least one channel delivered"),
		mChanFailed: metrics.Default.Counter("notify_channel_failures_total", "Per-channel delivery failures"),
	}
}

// frameType maps a notification kind to its realtime frame discriminator.
func frameType(kind models.NotificationKind) string {
	if kind == models.KindPositionUpdate {
		return realtime.FramePositionUpdate
	}
	return string(kind)
}

// Notify fans the notification out and reports whether any channel
// delivered it. Errors are reserved for rendering problems; channel
// failures are recorded in the log instead.
func (d *Dispatcher) Notify(ctx context.Context, n Notification) (bool, error) {
	v, err, _ := d.sf.Do(n.QueueID+"|"+string(n.Kind), func() (any, error) {
		return d.dispatch(ctx, n)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (d *Dispatcher) dispatch(ctx context.Context, n Notification) (bool, error) {
	d.mDispatched.Inc(1)

	title, body, err := d.renderer.Render(n.Kind, n.Data)
	if err != nil {
		return false, err
	}

	results := make(map[models.Channel]models.ChannelResult, len(models.Channels))
	var mu sync.Mutex
	record := func(ch models.Channel, err error) {
		now := d.clock.Now().UTC()
		res := models.ChannelResult{}
		if err == nil {
			res.Sent = true
			res.SentAt = &now
			delivered := true
			res.Delivered = &delivered
		} else {
			res.Error = err.Error()
			d.mChanFailed.Inc(1)
		}
		mu.Lock()
		results[ch] = res
		mu.Unlock()
	}

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		record(models.ChannelRealtime, d.sendRealtime(ctx, n, title, body))
	}()
	go func() {
		defer wg.Done()
		record(models.ChannelSMS, d.sendSMS(ctx, n, title, body))
	}()
	go func() {
		defer wg.Done()
		record(models.ChannelWebPush, d.sendPush(ctx, n, title, body))
	}()
	wg.Wait()

	success := false
	for _, r := range results {
		if r.Sent {
			success = true
			break
		}
	}
	if success {
		d.mSucceeded.Inc(1)
	} else {
		d.log.Warn("all notification channels failed",
			logging.String("queue_id", n.QueueID),
			logging.String("kind", string(n.Kind)))
	}

	d.audit.Notification(ctx, models.NotificationLog{
		ID:      uuid.NewString(),
		QueueID: n.QueueID,
		UserID:  n.UserID,
		VenueID: n.VenueID,
		Kind:    n.Kind,
		Title:   title,
		Body:    body,
		Results: results,
	})
	return success, nil
}

// sendRealtime pushes the frame to a live connection; when the user is
// offline the frame goes to the buffer and the channel counts as failed for
// this dispatch. An offline user is not a bus fault: the breaker only sees
// actual failures, so buffered dispatches never open it and an open breaker
// never starves the buffer.
func (d *Dispatcher) sendRealtime(ctx context.Context, n Notification, title, body string) error {
	const op = "notify.sendRealtime"
	buffered := false
	err := d.breakers.Realtime.Do(ctx, func(context.Context) error {
		fields := map[string]any{
			"queueId": n.QueueID,
			"venueId": n.VenueID,
			"title":   title,
			"body":    body,
		}
		for k, val := range n.FrameFields {
			fields[k] = val
		}
		frame := realtime.NewFrame(frameType(n.Kind), d.clock.Now(), fields)
		buffered = !d.bus.SendOrBuffer(n.UserID, frame)
		return nil
	})
	if err != nil {
		return err
	}
	if buffered {
		e := errs.New(errs.CodeRealtimeFailed, op, "user offline; frame buffered", nil)
		e.Retryable = false
		return e
	}
	return nil
}

func (d *Dispatcher) sendSMS(ctx context.Context, n Notification, title, body string) error {
	const op = "notify.sendSMS"
	if !d.sms.Enabled() {
		return errs.New(errs.CodeExternalMessageFailed, op, "channel disabled", nil)
	}
	user, err := d.users.GetUserCtx(ctx, n.UserID)
	if err != nil {
		return errs.New(errs.CodeExternalMessageFailed, op, "user lookup failed", err)
	}
	if user.Phone == nil || *user.Phone == "" {
		e := errs.New(errs.CodeExternalMessageFailed, op, "user has no phone", nil)
		e.Retryable = false
		return e
	}
	text := title + ". " + body
	return d.breakers.SMS.Do(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, d.clock, d.policy, func(ctx context.Context) error {
			return d.sms.Send(ctx, *user.Phone, text)
		})
	})
}

func (d *Dispatcher) sendPush(ctx context.Context, n Notification, title, body string) error {
	const op = "notify.sendPush"
	if !d.push.Enabled() {
		return errs.New(errs.CodePushFailed, op, "channel disabled", nil)
	}
	return d.breakers.Push.Do(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, d.clock, d.policy, func(ctx context.Context) error {
			return d.push.Send(ctx, n.UserID, string(n.Kind), title, body)
		})
	})
}
