package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"

	"github.com/parium/parium-api/internal/dtos"
	"github.com/parium/parium-api/internal/metrics"
	"github.com/parium/parium-api/internal/models"
)

type VAPIDKeys struct {
	Public  string
	Private string
	Subject string
}

// PushService delivers Web Push notifications to every browser a user has
// subscribed. Subscriptions the push service reports as gone are deleted.
type PushService struct {
	repo   PushRepository
	keys   VAPIDKeys
	client webpush.HTTPClient
	log    logrus.FieldLogger
}

func NewPushService(repo PushRepository, keys VAPIDKeys, client webpush.HTTPClient, log logrus.FieldLogger) *PushService {
	if client == nil {
		client = http.DefaultClient
	}
	return &PushService{repo: repo, keys: keys, client: client, log: log}
}

func (s *PushService) Enabled() bool {
	return s.keys.Public != "" && s.keys.Private != ""
}

func (s *PushService) Subscribe(ctx context.Context, caller Caller, req *dtos.PushSubscriptionRequest) (*models.PushSubscription, error) {
	sub := &models.PushSubscription{
		UserID:   caller.UserID,
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	}
	if err := s.repo.SavePushSubscription(ctx, sub); err != nil {
		return nil, fromStore(err)
	}
	return sub, nil
}

func (s *PushService) Notify(ctx context.Context, userID string, n Notification) error {
	if !s.Enabled() {
		s.log.WithFields(logrus.Fields{"user_id": userID, "title": n.Title}).Debug("push disabled, notification skipped")
		return nil
	}
	subs, err := s.repo.PushSubscriptions(ctx, userID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}

	var failures int
	for _, sub := range subs {
		if err := s.send(ctx, sub, payload); err != nil {
			failures++
			s.log.WithError(err).WithField("user_id", userID).Warn("web push failed")
		}
	}
	if failures > 0 && failures == len(subs) {
		return fmt.Errorf("push to %s: all %d subscriptions failed", userID, failures)
	}
	return nil
}

func (s *PushService) send(ctx context.Context, sub models.PushSubscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.keys.Subject,
		VAPIDPublicKey:  s.keys.Public,
		VAPIDPrivateKey: s.keys.Private,
		TTL:             86400,
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		metrics.RecordPush("failed")
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		metrics.RecordPush("expired")
		s.log.WithField("user_id", sub.UserID).Info("push subscription expired, removing")
		return s.repo.DeletePushSubscription(ctx, sub.Endpoint)
	case resp.StatusCode >= 300:
		metrics.RecordPush("failed")
		return fmt.Errorf("push endpoint returned %d", resp.StatusCode)
	}
	metrics.RecordPush("sent")
	return nil
}
