package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"walkin-queue-coordinator/internal/domain"
	errs "walkin-queue-coordinator/pkg/errors"
	"walkin-queue-coordinator/pkg/logging"
)

// WebPushConfig holds the VAPID credentials. Empty keys disable the channel.
type WebPushConfig struct {
	PublicKey  string
	PrivateKey string
	Subject    string // mailto: or https: contact for the push service
	TTLSeconds int
}

// WebPushSender delivers payloads to every stored subscription of a user.
// Gone subscriptions (404/410) are removed as they are discovered.
type WebPushSender struct {
	cfg  WebPushConfig
	subs domain.PushSubscriptionRepository
	log  *logging.Logger
}

func NewWebPushSender(cfg WebPushConfig, subs domain.PushSubscriptionRepository, log *logging.Logger) *WebPushSender {
	if cfg.TTLSeconds <= 0 {
		cfg.TTLSeconds = 300
	}
	return &WebPushSender{cfg: cfg, subs: subs, log: log.WithComponent("webpush")}
}

// Enabled reports whether VAPID keys are configured.
func (w *WebPushSender) Enabled() bool {
	return w.cfg.PublicKey != "" && w.cfg.PrivateKey != ""
}

type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Kind  string `json:"kind"`
}

// Send pushes the title/body to every subscription of the user. It succeeds
// when at least one push was accepted.
func (w *WebPushSender) Send(ctx context.Context, userID, kind, title, body string) error {
	const op = "notify.WebPushSender.Send"
	if !w.Enabled() {
		return errs.New(errs.CodePushFailed, op, "web push not configured", nil)
	}

	subs, err := w.subs.GetPushSubscriptionsCtx(ctx, userID)
	if err != nil {
		return errs.New(errs.CodePushFailed, op, "load subscriptions", err)
	}
	if len(subs) == 0 {
		e := errs.New(errs.CodePushFailed, op, "no push subscriptions", nil)
		e.Retryable = false
		return e
	}

	payload, err := json.Marshal(pushPayload{Title: title, Body: body, Kind: kind})
	if err != nil {
		return errs.New(errs.CodePushFailed, op, "marshal payload", err)
	}

	delivered := 0
	var lastErr error
	for _, sub := range subs {
		resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
		}, &webpush.Options{
			Subscriber:      w.cfg.Subject,
			VAPIDPublicKey:  w.cfg.PublicKey,
			VAPIDPrivateKey: w.cfg.PrivateKey,
			TTL:             w.cfg.TTLSeconds,
		})
		if err != nil {
			lastErr = err
			continue
		}
		code := resp.StatusCode
		resp.Body.Close()
		switch {
		case code >= 200 && code < 300:
			delivered++
		case code == http.StatusNotFound || code == http.StatusGone:
			if derr := w.subs.DeletePushSubscriptionCtx(ctx, userID, sub.Endpoint); derr != nil {
				w.log.Warn("stale subscription cleanup failed",
					logging.String("user_id", userID), logging.Err(derr))
			}
			lastErr = fmt.Errorf("subscription gone (%d)", code)
		default:
			lastErr = fmt.Errorf("push service returned %d", code)
		}
	}
	if delivered == 0 {
		return errs.New(errs.CodePushFailed, op, "all pushes failed", lastErr)
	}
	return nil
}
