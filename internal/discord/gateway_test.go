package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/matcha-bookable/bookable-bot/internal/models"
	"github.com/matcha-bookable/bookable-bot/internal/services"
	"github.com/matcha-bookable/bookable-bot/pkg/provisioning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gatewayFixture struct {
	client  *fakeClient
	booker  *fakeBooker
	regions *fakeRegions
	gateway *Gateway
}

func newGatewayFixture() *gatewayFixture {
	f := &gatewayFixture{
		client:  &fakeClient{},
		booker:  &fakeBooker{},
		regions: &fakeRegions{regions: []provisioning.Region{{Code: "sgp", Name: "Singapore"}, {Code: "tyo", Name: "Tokyo"}}},
	}
	f.gateway = newGateway(f.client, f.booker, f.regions, fixedCapacity{Active: 1, Ceiling: 5}, GatewayConfig{
		GuildID:      "guild-1",
		ProviderName: "Google Cloud",
	}, newTestLogger())
	return f
}

func TestGateway_Commands(t *testing.T) {
	f := newGatewayFixture()

	commands := f.gateway.Commands()
	require.Len(t, commands, 3)
	assert.Equal(t, "status", commands[0].Name)
	assert.False(t, commands[0].Options[0].Required)
	assert.Equal(t, "book", commands[1].Name)
	assert.True(t, commands[1].Options[0].Required)
	require.Len(t, commands[1].Options[0].Choices, 2)
	assert.Equal(t, "Singapore", commands[1].Options[0].Choices[0].Name)
	assert.Equal(t, "sgp", commands[1].Options[0].Choices[0].Value)
	assert.Equal(t, "unbook", commands[2].Name)
	assert.Empty(t, commands[2].Options)
}

func TestGateway_CommandsCapChoices(t *testing.T) {
	f := newGatewayFixture()
	f.regions.regions = nil
	for i := 0; i < 30; i++ {
		f.regions.regions = append(f.regions.regions, provisioning.Region{Code: fmt.Sprintf("r%02d", i)})
	}

	commands := f.gateway.Commands()
	assert.Len(t, commands[1].Options[0].Choices, maxChoices)
	assert.Equal(t, "r00", commands[1].Options[0].Choices[0].Name)
}

func TestGateway_SyncCommands(t *testing.T) {
	f := newGatewayFixture()

	require.NoError(t, f.gateway.SyncCommands(context.Background(), "app-1"))
	assert.Equal(t, "app-1", f.client.appID)
	assert.Len(t, f.client.overwrite, 3)
}

func TestGateway_Book(t *testing.T) {
	f := newGatewayFixture()

	f.gateway.HandleInteraction(commandInteraction("book", "100", regionOption("sgp")))
	f.gateway.wait()

	require.Len(t, f.client.responses, 1)
	assert.Equal(t, discordgo.InteractionResponseDeferredChannelMessageWithSource, f.client.responses[0].Type)
	require.Len(t, f.client.followups, 1)
	assert.Equal(t, "<@100>", f.client.followups[0].Content)
	assert.Equal(t, "Your request is being processed.\nThis message will be updated accordingly later.", f.client.followups[0].Embeds[0].Description)

	require.Len(t, f.booker.books, 1)
	req := f.booker.books[0]
	assert.Equal(t, models.OwnerID("100"), req.Owner)
	assert.Equal(t, "sgp", req.Region)
	assert.Equal(t, models.MessageHandle{AppID: "app-1", Token: "token-1", MessageID: "followup-1"}, req.Handle)
}

func TestGateway_Unbook(t *testing.T) {
	f := newGatewayFixture()

	f.gateway.HandleInteraction(commandInteraction("unbook", "100"))
	f.gateway.wait()

	require.Len(t, f.booker.unbooks, 1)
	assert.Equal(t, models.OwnerID("100"), f.booker.unbooks[0].Owner)
	assert.Equal(t, "followup-1", f.booker.unbooks[0].Handle.MessageID)
	assert.Equal(t, "Your unbook request is being processed.\nThis message will be updated accordingly later.", f.client.followups[0].Embeds[0].Description)
}

func TestGateway_Status(t *testing.T) {
	f := newGatewayFixture()
	f.regions.availability = []services.RegionAvailability{
		{Code: "sgp", Availability: provisioning.Availability{Name: "Singapore", Quota: 4, Available: 3}},
	}

	f.gateway.HandleInteraction(commandInteraction("status", "100", regionOption("sgp")))

	assert.Equal(t, "sgp", f.regions.asked)
	require.Len(t, f.client.followups, 1)
	embed := f.client.followups[0].Embeds[0]
	assert.Equal(t, "**Status - Google Cloud**", embed.Title)
	assert.Equal(t, "Total Capacity: `1/5` booked", embed.Description)
	require.Len(t, embed.Fields, 1)
	assert.Empty(t, f.booker.books)
}

func TestGateway_StatusBackendError(t *testing.T) {
	f := newGatewayFixture()
	f.regions.err = errors.New("backend down")

	f.gateway.HandleInteraction(commandInteraction("status", "100"))

	require.Len(t, f.client.followups, 1)
	assert.Equal(t, "Error", f.client.followups[0].Embeds[0].Title)
}

func TestGateway_DeferFailureSkipsFlow(t *testing.T) {
	f := newGatewayFixture()
	f.client.respondErr = errors.New("unknown interaction")

	f.gateway.HandleInteraction(commandInteraction("book", "100", regionOption("sgp")))
	f.gateway.wait()

	assert.Empty(t, f.client.followups)
	assert.Empty(t, f.booker.books)
}

func TestGateway_FollowupFailureSkipsFlow(t *testing.T) {
	f := newGatewayFixture()
	f.client.followupErr = errors.New("unknown webhook")

	f.gateway.HandleInteraction(commandInteraction("unbook", "100"))
	f.gateway.wait()

	assert.Empty(t, f.booker.unbooks)
}

func TestGateway_IgnoresOtherInteractions(t *testing.T) {
	f := newGatewayFixture()

	f.gateway.HandleInteraction(&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{Type: discordgo.InteractionPing}})

	assert.Empty(t, f.client.responses)
}

func TestInteractionOwner_DirectMessage(t *testing.T) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{User: &discordgo.User{ID: "200"}}}
	assert.Equal(t, models.OwnerID("200"), interactionOwner(i))
}

func TestGateway_ResyncCommands(t *testing.T) {
	f := newGatewayFixture()
	f.regions.regions = nil

	// Before the session is ready there is nothing to overwrite
	require.NoError(t, f.gateway.ResyncCommands(context.Background()))
	assert.Nil(t, f.client.overwrite)

	f.gateway.setAppID("app-1")
	require.NoError(t, f.gateway.SyncCommands(context.Background(), "app-1"))
	assert.Empty(t, f.client.overwrite[1].Options[0].Choices)

	f.regions.regions = []provisioning.Region{{Code: "sgp", Name: "Singapore"}}
	require.NoError(t, f.gateway.ResyncCommands(context.Background()))

	assert.Equal(t, "app-1", f.client.appID)
	require.Len(t, f.client.overwrite[1].Options[0].Choices, 1)
	assert.Equal(t, "sgp", f.client.overwrite[1].Options[0].Choices[0].Value)
}

func TestGateway_RejectsCommandsAfterDrain(t *testing.T) {
	for _, name := range []string{"book", "unbook"} {
		t.Run(name, func(t *testing.T) {
			f := newGatewayFixture()
			f.gateway.drain()

			f.gateway.HandleInteraction(commandInteraction(name, "100", regionOption("sgp")))
			f.gateway.wait()

			assert.Empty(t, f.booker.books)
			assert.Empty(t, f.booker.unbooks)
			assert.Empty(t, f.client.followups)
			require.Len(t, f.client.responses, 1)
			resp := f.client.responses[0]
			assert.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, resp.Type)
			assert.Equal(t, "<@100>", resp.Data.Content)
			assert.Contains(t, resp.Data.Embeds[0].Description, "Service temporarily unavailable")
		})
	}
}

func TestGateway_RejectsCommandsAfterCancel(t *testing.T) {
	f := newGatewayFixture()
	ctx, cancel := context.WithCancel(context.Background())
	f.gateway.ctx = ctx
	cancel()

	f.gateway.HandleInteraction(commandInteraction("book", "100", regionOption("sgp")))
	f.gateway.wait()

	assert.Empty(t, f.booker.books)
	assert.Empty(t, f.client.followups)

	// Status spawns no flow and is still answered
	f.gateway.HandleInteraction(commandInteraction("status", "100"))
	assert.Len(t, f.client.followups, 1)
}

func TestGateway_UnstartedFlowUpdatesProcessingMessage(t *testing.T) {
	f := newGatewayFixture()
	f.gateway.drain()

	i := commandInteraction("book", "100", regionOption("sgp"))
	msg := &discordgo.Message{ID: "followup-1"}
	f.gateway.unavailable(f.gateway.logger.WithField("command", "book"), i, "100", msg)

	require.Len(t, f.client.edits, 1)
	assert.Equal(t, "followup-1", f.client.edits[0].messageID)
	assert.Contains(t, (*f.client.edits[0].data.Embeds)[0].Description, "Service temporarily unavailable")
}

func TestGateway_NoFlowStartsAfterDrainReturns(t *testing.T) {
	f := newGatewayFixture()
	const commands = 50

	var handlers sync.WaitGroup
	for n := 0; n < commands; n++ {
		handlers.Add(1)
		go func() {
			defer handlers.Done()
			f.gateway.HandleInteraction(commandInteraction("book", "100", regionOption("sgp")))
		}()
	}

	f.gateway.drain()
	f.booker.mu.Lock()
	booked := len(f.booker.books)
	f.booker.mu.Unlock()

	handlers.Wait()

	assert.Len(t, f.booker.books, booked)
	rejected := len(f.client.edits)
	for _, resp := range f.client.responses {
		if resp.Type == discordgo.InteractionResponseChannelMessageWithSource {
			rejected++
		}
	}
	assert.Equal(t, commands, booked+rejected)
}
