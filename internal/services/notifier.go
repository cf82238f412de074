package services

import (
	"context"
	"errors"

	"github.com/matcha-bookable/bookable-bot/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrDirectMessagesForbidden is returned when the owner does not accept
// direct messages from the bot
var ErrDirectMessagesForbidden = errors.New("direct messages forbidden")

// Notifier delivers user-visible notices to the chat platform
type Notifier interface {
	// ProbeDirect checks whether the owner can receive direct messages.
	// It returns ErrDirectMessagesForbidden when they cannot; any other error
	// means the probe itself failed.
	ProbeDirect(ctx context.Context, owner models.OwnerID) error
	// SendDirect sends a private message to the owner
	SendDirect(ctx context.Context, owner models.OwnerID, notice models.Notice) error
	// SendToChannel posts to the configured broadcast channel
	SendToChannel(ctx context.Context, notice models.Notice) error
	// UpdateMessage edits the outstanding message referenced by handle
	UpdateMessage(ctx context.Context, handle models.MessageHandle, notice models.Notice) error
}

// NopNotifier logs notices instead of delivering them. Used when the chat
// platform is disabled.
type NopNotifier struct {
	logger *logrus.Logger
}

// NewNopNotifier creates a logging notifier
func NewNopNotifier(logger *logrus.Logger) *NopNotifier {
	return &NopNotifier{logger: logger}
}

func (n *NopNotifier) log(target string, notice models.Notice) {
	n.logger.WithFields(logrus.Fields{
		"target": target,
		"notice": notice.Kind,
		"owner":  notice.Owner,
		"region": notice.Region,
		"status": notice.StatusCode,
	}).Info("Notice not delivered, chat platform disabled")
}

// ProbeDirect always reports that direct messages are accepted
func (n *NopNotifier) ProbeDirect(ctx context.Context, owner models.OwnerID) error {
	return nil
}

// SendDirect implements Notifier
func (n *NopNotifier) SendDirect(ctx context.Context, owner models.OwnerID, notice models.Notice) error {
	n.log("direct", notice)
	return nil
}

// SendToChannel implements Notifier
func (n *NopNotifier) SendToChannel(ctx context.Context, notice models.Notice) error {
	n.log("channel", notice)
	return nil
}

// UpdateMessage implements Notifier
func (n *NopNotifier) UpdateMessage(ctx context.Context, handle models.MessageHandle, notice models.Notice) error {
	n.log("message", notice)
	return nil
}
