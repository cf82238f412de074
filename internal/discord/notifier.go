package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/matcha-bookable/bookable-bot/internal/models"
	"github.com/matcha-bookable/bookable-bot/internal/services"
	"github.com/sirupsen/logrus"
)

// Notifier delivers notices as Discord embeds
type Notifier struct {
	client    restClient
	channelID string
	logger    *logrus.Logger
	now       func() time.Time
}

var _ services.Notifier = (*Notifier)(nil)

// NewNotifier creates a notifier posting broadcasts to channelID
func NewNotifier(session *discordgo.Session, channelID string, logger *logrus.Logger) *Notifier {
	return newNotifier(session, channelID, logger)
}

func newNotifier(client restClient, channelID string, logger *logrus.Logger) *Notifier {
	return &Notifier{
		client:    client,
		channelID: channelID,
		logger:    logger,
		now:       time.Now,
	}
}

// ProbeDirect sends an empty direct message. Discord rejects it either way;
// a 403 means the owner does not accept direct messages.
func (n *Notifier) ProbeDirect(ctx context.Context, owner models.OwnerID) error {
	channel, err := n.client.UserChannelCreate(string(owner), discordgo.WithContext(ctx))
	if err != nil {
		if isForbidden(err) {
			return services.ErrDirectMessagesForbidden
		}
		return fmt.Errorf("failed to open direct channel: %w", err)
	}

	_, err = n.client.ChannelMessageSend(channel.ID, "", discordgo.WithContext(ctx))
	if err == nil || !isForbidden(err) {
		return nil
	}
	return services.ErrDirectMessagesForbidden
}

// SendDirect implements services.Notifier
func (n *Notifier) SendDirect(ctx context.Context, owner models.OwnerID, notice models.Notice) error {
	channel, err := n.client.UserChannelCreate(string(owner), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to open direct channel: %w", err)
	}

	_, err = n.client.ChannelMessageSendComplex(channel.ID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{RenderNotice(notice, n.now())},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to send direct message: %w", err)
	}
	return nil
}

// SendToChannel implements services.Notifier
func (n *Notifier) SendToChannel(ctx context.Context, notice models.Notice) error {
	_, err := n.client.ChannelMessageSendComplex(n.channelID, &discordgo.MessageSend{
		Content: Mention(notice.Owner),
		Embeds:  []*discordgo.MessageEmbed{RenderNotice(notice, n.now())},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to send channel message: %w", err)
	}
	return nil
}

// UpdateMessage edits the interaction followup referenced by handle
func (n *Notifier) UpdateMessage(ctx context.Context, handle models.MessageHandle, notice models.Notice) error {
	if handle.IsZero() {
		return nil
	}

	content := Mention(notice.Owner)
	embeds := []*discordgo.MessageEmbed{RenderNotice(notice, n.now())}
	interaction := &discordgo.Interaction{AppID: handle.AppID, Token: handle.Token}

	_, err := n.client.FollowupMessageEdit(interaction, handle.MessageID, &discordgo.WebhookEdit{
		Content: &content,
		Embeds:  &embeds,
	}, discordgo.WithContext(ctx))
	if err != nil {
		n.logger.WithFields(logrus.Fields{
			"notice":     notice.Kind,
			"owner":      notice.Owner,
			"message_id": handle.MessageID,
		}).WithError(err).Warn("Failed to update interaction message")
		return fmt.Errorf("failed to edit followup message: %w", err)
	}
	return nil
}

func isForbidden(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeCannotSendMessagesToThisUser {
		return true
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusForbidden
}
