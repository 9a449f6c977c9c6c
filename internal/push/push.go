// Package push alerts subscribed admins through Web Push when a month
// closes.
package push

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tariel-x/affiliates/internal/leaderboard"
	"github.com/tariel-x/affiliates/internal/models"
	"github.com/tariel-x/affiliates/internal/store"

	"github.com/SherClockHolmes/webpush-go"
)

var errInvalidKeys = errors.New("invalid subscription keys")

type VAPIDKeys struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

type Notifier struct {
	store  *store.Store
	keys   VAPIDKeys
	client *http.Client
	logger *slog.Logger
}

func NewNotifier(st *store.Store, keys VAPIDKeys, client *http.Client, logger *slog.Logger) *Notifier {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{store: st, keys: keys, client: client, logger: logger}
}

// LeaderboardPublished alerts admins about final results only.
func (n *Notifier) LeaderboardPublished(ctx context.Context, b leaderboard.Boards, final bool) {
	if !final {
		return
	}
	body := fmt.Sprintf("%d inviters, %d affiliates", len(b.Invites), len(b.Affiliates))
	if err := n.Notify(ctx, "Final results "+b.Month, body, map[string]any{"month": b.Month}); err != nil {
		n.logger.Error("admin push failed", "month", b.Month, "error", err)
	}
}

// Notify sends to every subscription. Subscriptions with broken keys or
// that the push service reports as gone are deleted.
func (n *Notifier) Notify(ctx context.Context, title, body string, data map[string]any) error {
	subs, err := n.store.PushSubscriptions(ctx)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}

	payload, err := json.Marshal(map[string]any{
		"title": title,
		"body":  body,
		"data":  data,
	})
	if err != nil {
		return err
	}

	sent, failed := 0, 0
	for _, sub := range subs {
		if err := n.send(ctx, payload, sub); err != nil {
			failed++
			n.logger.Warn("push delivery failed", "subscription_id", sub.ID, "admin_id", sub.AdminID, "error", err)
			continue
		}
		sent++
	}
	n.logger.Info("admin push sent", "title", title, "sent", sent, "failed", failed)
	return nil
}

func (n *Notifier) send(ctx context.Context, payload []byte, sub models.PushSubscription) error {
	p256dh := strings.TrimSpace(sub.P256DH)
	auth := strings.TrimSpace(sub.Auth)
	if err := validateKeys(p256dh, auth); err != nil {
		n.drop(ctx, sub, err.Error())
		return err
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: p256dh, Auth: auth},
	}, &webpush.Options{
		HTTPClient:      n.client,
		Subscriber:      n.keys.Subject,
		VAPIDPublicKey:  n.keys.PublicKey,
		VAPIDPrivateKey: n.keys.PrivateKey,
		TTL:             3600,
		Urgency:         webpush.UrgencyHigh,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		n.drop(ctx, sub, resp.Status)
		return fmt.Errorf("subscription gone: %s", resp.Status)
	case resp.StatusCode >= 300:
		return fmt.Errorf("push service: %s", resp.Status)
	}
	return nil
}

func (n *Notifier) drop(ctx context.Context, sub models.PushSubscription, reason string) {
	if err := n.store.DeletePushSubscription(ctx, sub.ID); err != nil {
		n.logger.Error("delete push subscription", "subscription_id", sub.ID, "error", err)
		return
	}
	n.logger.Info("push subscription deleted", "subscription_id", sub.ID, "reason", reason)
}

// validateKeys checks the browser keys: an uncompressed P-256 point and a
// 16-byte auth secret, URL-safe or standard base64.
func validateKeys(p256dh, auth string) error {
	key, err := decode(p256dh)
	if err != nil || len(key) != 65 || key[0] != 0x04 {
		return fmt.Errorf("%w: p256dh", errInvalidKeys)
	}
	secret, err := decode(auth)
	if err != nil || len(secret) != 16 {
		return fmt.Errorf("%w: auth", errInvalidKeys)
	}
	return nil
}

func decode(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "=")); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(s)
}
