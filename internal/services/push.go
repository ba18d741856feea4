package services

import (
	"context"
	"fmt"

	"truth-dare-backend/internal/metrics"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// APNsConfig holds what NewAPNsPusher needs to sign requests
type APNsConfig struct {
	KeyPath    string
	KeyID      string
	TeamID     string
	Topic      string
	Production bool
}

type apnsClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// APNsPusher sends game alerts to users' iOS devices
type APNsPusher struct {
	client  apnsClient
	users   UserStore
	topic   string
	metrics *metrics.Metrics
}

// NewAPNsPusher creates a token-authenticated APNs pusher
func NewAPNsPusher(cfg APNsConfig, users UserStore, m *metrics.Metrics) (*APNsPusher, error) {
	authKey, err := token.AuthKeyFromFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs auth key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNsPusher{
		client:  client,
		users:   users,
		topic:   cfg.Topic,
		metrics: m,
	}, nil
}

// Push sends msg as an alert if the user registered a device token
func (p *APNsPusher) Push(ctx context.Context, userID string, msg WSMessage) error {
	user, err := p.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user.PushToken == nil || *user.PushToken == "" {
		p.metrics.PushSent("no_token")
		return nil
	}

	title, body := pushText(msg)
	notification := &apns2.Notification{
		DeviceToken: *user.PushToken,
		Topic:       p.topic,
		Payload: payload.NewPayload().
			AlertTitle(title).
			AlertBody(body).
			Sound("default").
			Custom("type", msg.Type).
			Custom("sessionId", msg.SessionID),
	}

	res, err := p.client.PushWithContext(ctx, notification)
	if err != nil {
		p.metrics.PushSent("error")
		return fmt.Errorf("failed to push notification: %w", err)
	}
	if !res.Sent() {
		p.metrics.PushSent("rejected")
		return fmt.Errorf("apns rejected notification: %d %s", res.StatusCode, res.Reason)
	}

	p.metrics.PushSent("sent")
	return nil
}

func pushText(msg WSMessage) (string, string) {
	switch msg.Type {
	case MsgMatched:
		if msg.IsYourTurn != nil && *msg.IsYourTurn {
			return "Match found", "You're up first. Pick truth or dare!"
		}
		return "Match found", "Your opponent is choosing truth or dare."
	case MsgPromptDelivered:
		return "New " + string(msg.ChallengeType), msg.Prompt
	}
	return "Truth or Dare", msg.Message
}
