package discord

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/matcha-bookable/bookable-bot/internal/models"
	"github.com/matcha-bookable/bookable-bot/internal/services"
	"github.com/matcha-bookable/bookable-bot/pkg/provisioning"
	"github.com/sirupsen/logrus"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func forbiddenError() error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusForbidden, Status: "403 Forbidden"},
		Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeCannotSendMessagesToThisUser, Message: "Cannot send messages to this user"},
	}
}

func emptyMessageError() error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusBadRequest, Status: "400 Bad Request"},
		Message:  &discordgo.APIErrorMessage{Code: 50006, Message: "Cannot send an empty message"},
	}
}

type editedMessage struct {
	interaction *discordgo.Interaction
	messageID   string
	data        *discordgo.WebhookEdit
}

type sentMessage struct {
	channelID string
	content   string
	data      *discordgo.MessageSend
}

// fakeClient records every REST call
type fakeClient struct {
	mu sync.Mutex

	channelErr  error
	sendErr     error
	respondErr  error
	followupErr error
	editErr     error

	sent      []sentMessage
	responses []*discordgo.InteractionResponse
	followups []*discordgo.WebhookParams
	edits     []editedMessage
	overwrite []*discordgo.ApplicationCommand
	appID     string
}

func (c *fakeClient) UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	if c.channelErr != nil {
		return nil, c.channelErr
	}
	return &discordgo.Channel{ID: "dm-" + recipientID}, nil
}

func (c *fakeClient) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{channelID: channelID, content: content})
	return &discordgo.Message{ID: "m"}, c.sendErr
}

func (c *fakeClient) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{channelID: channelID, content: data.Content, data: data})
	return &discordgo.Message{ID: "m"}, c.sendErr
}

func (c *fakeClient) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, resp)
	return c.respondErr
}

func (c *fakeClient) FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.followupErr != nil {
		return nil, c.followupErr
	}
	c.followups = append(c.followups, data)
	return &discordgo.Message{ID: "followup-1"}, nil
}

func (c *fakeClient) FollowupMessageEdit(interaction *discordgo.Interaction, messageID string, data *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.edits = append(c.edits, editedMessage{interaction: interaction, messageID: messageID, data: data})
	return &discordgo.Message{ID: messageID}, c.editErr
}

func (c *fakeClient) ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appID = appID
	c.overwrite = commands
	return commands, nil
}

// fakeBooker records the requests handed to the coordinator
type fakeBooker struct {
	mu      sync.Mutex
	books   []services.BookRequest
	unbooks []services.UnbookRequest
}

func (b *fakeBooker) Book(ctx context.Context, req services.BookRequest) models.Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.books = append(b.books, req)
	return models.Outcome{Kind: models.OutcomeStarted}
}

func (b *fakeBooker) Unbook(ctx context.Context, req services.UnbookRequest) models.Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unbooks = append(b.unbooks, req)
	return models.Outcome{Kind: models.OutcomeUnbooked, Reason: models.NoticeUnbooked}
}

type fakeRegions struct {
	regions      []provisioning.Region
	availability []services.RegionAvailability
	err          error
	asked        string
}

func (r *fakeRegions) Regions() []provisioning.Region {
	return r.regions
}

func (r *fakeRegions) Availability(ctx context.Context, region string) ([]services.RegionAvailability, error) {
	r.asked = region
	return r.availability, r.err
}

type fixedCapacity services.CapacitySnapshot

func (c fixedCapacity) Snapshot() services.CapacitySnapshot {
	return services.CapacitySnapshot(c)
}

func commandInteraction(name, owner string, options ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:    "interaction-1",
		AppID: "app-1",
		Token: "token-1",
		Type:  discordgo.InteractionApplicationCommand,
		Data: discordgo.ApplicationCommandInteractionData{
			Name:    name,
			Options: options,
		},
		Member: &discordgo.Member{User: &discordgo.User{ID: owner}},
	}}
}

func regionOption(code string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  "region",
		Type:  discordgo.ApplicationCommandOptionString,
		Value: code,
	}
}
