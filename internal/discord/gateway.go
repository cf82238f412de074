package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/matcha-bookable/bookable-bot/internal/config"
	"github.com/matcha-bookable/bookable-bot/internal/models"
	"github.com/matcha-bookable/bookable-bot/internal/services"
	"github.com/matcha-bookable/bookable-bot/pkg/provisioning"
	"github.com/sirupsen/logrus"
)

// Discord caps the number of choices of a command option
const maxChoices = 25

// Booker runs booking and unbooking flows
type Booker interface {
	Book(ctx context.Context, req services.BookRequest) models.Outcome
	Unbook(ctx context.Context, req services.UnbookRequest) models.Outcome
}

// RegionDirectory lists bookable regions and their live availability
type RegionDirectory interface {
	Regions() []provisioning.Region
	Availability(ctx context.Context, region string) ([]services.RegionAvailability, error)
}

// CapacityReporter exposes the capacity ledger
type CapacityReporter interface {
	Snapshot() services.CapacitySnapshot
}

// GatewayConfig holds the Discord settings of the gateway
type GatewayConfig struct {
	GuildID      string
	ProviderName string
}

// Gateway connects the slash commands to the booking coordinator
type Gateway struct {
	session *discordgo.Session
	client  restClient
	booker  Booker
	regions RegionDirectory
	ledger  CapacityReporter
	config  GatewayConfig
	logger  *logrus.Logger
	now     func() time.Time

	// Flows started by commands run under ctx and are tracked by flows.
	// Once closing is set no new flow is added.
	ctx     context.Context
	flows   sync.WaitGroup
	mu      sync.Mutex
	closing bool
	appID   string
}

var _ services.CommandSyncer = (*Gateway)(nil)

// NewSession creates a bot session limited to guild events
func NewSession(cfg config.DiscordConfig) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds
	return session, nil
}

// NewGateway creates a gateway over a bot session
func NewGateway(session *discordgo.Session, booker Booker, regions RegionDirectory, ledger CapacityReporter, config GatewayConfig, logger *logrus.Logger) *Gateway {
	g := newGateway(session, booker, regions, ledger, config, logger)
	g.session = session
	return g
}

func newGateway(client restClient, booker Booker, regions RegionDirectory, ledger CapacityReporter, config GatewayConfig, logger *logrus.Logger) *Gateway {
	return &Gateway{
		client:  client,
		booker:  booker,
		regions: regions,
		ledger:  ledger,
		config:  config,
		logger:  logger,
		now:     time.Now,
		ctx:     context.Background(),
	}
}

// Run opens the session and serves commands until ctx is cancelled. On
// return, every flow started by a command has finished.
func (g *Gateway) Run(ctx context.Context) error {
	g.mu.Lock()
	g.ctx = ctx
	g.mu.Unlock()

	removeReady := g.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		g.logger.WithFields(logrus.Fields{
			"user":  r.User.Username,
			"guild": g.config.GuildID,
		}).Info("Discord session ready")
		g.setAppID(r.User.ID)
		if err := g.SyncCommands(ctx, r.User.ID); err != nil {
			g.logger.WithError(err).Error("Failed to register slash commands")
		}
	})
	removeInteraction := g.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		g.HandleInteraction(i)
	})

	if err := g.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	g.logger.Info("Discord gateway connected")

	<-ctx.Done()

	removeInteraction()
	removeReady()
	g.logger.Info("Waiting for in-flight booking flows...")
	g.drain()

	if err := g.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}
	g.logger.Info("Discord gateway closed")
	return nil
}

// Commands builds the slash command definitions from the region list
func (g *Gateway) Commands() []*discordgo.ApplicationCommand {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, maxChoices)
	for _, r := range g.regions.Regions() {
		if len(choices) == maxChoices {
			g.logger.WithField("region", r.Code).Warn("Region left out of command choices")
			continue
		}
		name := r.Name
		if name == "" {
			name = r.Code
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: name, Value: r.Code})
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:        "status",
			Description: "List all of the bookable locations.",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "region",
				Description: "Region to show",
				Choices:     choices,
			}},
		},
		{
			Name:        "book",
			Description: "Book a server in a location",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "region",
				Description: "Region to book in",
				Required:    true,
				Choices:     choices,
			}},
		},
		{
			Name:        "unbook",
			Description: "Unbook your server",
		},
	}
}

// SyncCommands overwrites the guild commands of the application
func (g *Gateway) SyncCommands(ctx context.Context, appID string) error {
	commands := g.Commands()
	if _, err := g.client.ApplicationCommandBulkOverwrite(appID, g.config.GuildID, commands, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to overwrite commands: %w", err)
	}
	g.logger.WithField("commands", len(commands)).Info("Slash commands registered")
	return nil
}

// ResyncCommands re-registers the commands once the session is ready, so
// region choices follow the catalog
func (g *Gateway) ResyncCommands(ctx context.Context) error {
	g.mu.Lock()
	appID := g.appID
	g.mu.Unlock()

	if appID == "" {
		// Not ready yet; the ready handler registers them
		return nil
	}
	return g.SyncCommands(ctx, appID)
}

func (g *Gateway) setAppID(appID string) {
	g.mu.Lock()
	g.appID = appID
	g.mu.Unlock()
}

// HandleInteraction dispatches a slash command
func (g *Gateway) HandleInteraction(i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	owner := interactionOwner(i)
	log := g.logger.WithFields(logrus.Fields{
		"command": data.Name,
		"owner":   owner,
	})
	log.Info("Slash command received")

	if data.Name == "book" || data.Name == "unbook" {
		if g.isClosing() {
			log.Warn("Command rejected during shutdown")
			g.rejectClosing(log, i, owner)
			return
		}
	}

	switch data.Name {
	case "status":
		g.handleStatus(log, i, owner, stringOption(data, "region"))
	case "book":
		g.handleBook(log, i, owner, stringOption(data, "region"))
	case "unbook":
		g.handleUnbook(log, i, owner)
	default:
		log.Warn("Unknown slash command")
	}
}

func (g *Gateway) handleStatus(log *logrus.Entry, i *discordgo.InteractionCreate, owner models.OwnerID, region string) {
	if !g.deferReply(log, i) {
		return
	}

	var embed *discordgo.MessageEmbed
	availability, err := g.regions.Availability(g.ctx, region)
	if err != nil {
		log.WithError(err).Error("Failed to fetch availability")
		embed = RenderError(err, g.now())
	} else {
		embed = RenderStatus(g.config.ProviderName, g.ledger.Snapshot(), availability, g.now())
	}

	g.followup(log, i, owner, embed)
}

func (g *Gateway) handleBook(log *logrus.Entry, i *discordgo.InteractionCreate, owner models.OwnerID, region string) {
	if !g.deferReply(log, i) {
		return
	}

	msg, ok := g.followup(log, i, owner, RenderNotice(models.Notice{Kind: models.NoticeBookingProcessing, Owner: owner}, g.now()))
	if !ok {
		return
	}

	req := services.BookRequest{
		Owner:  owner,
		Region: region,
		Handle: handleFor(i, msg),
	}
	started := g.spawn(func(ctx context.Context) {
		outcome := g.booker.Book(ctx, req)
		log.WithField("outcome", outcome.Kind).Info("Booking flow finished")
	})
	if !started {
		g.unavailable(log, i, owner, msg)
	}
}

func (g *Gateway) handleUnbook(log *logrus.Entry, i *discordgo.InteractionCreate, owner models.OwnerID) {
	if !g.deferReply(log, i) {
		return
	}

	msg, ok := g.followup(log, i, owner, RenderNotice(models.Notice{Kind: models.NoticeUnbookProcessing, Owner: owner}, g.now()))
	if !ok {
		return
	}

	req := services.UnbookRequest{
		Owner:  owner,
		Handle: handleFor(i, msg),
	}
	started := g.spawn(func(ctx context.Context) {
		outcome := g.booker.Unbook(ctx, req)
		log.WithField("outcome", outcome.Reason).Info("Unbook flow finished")
	})
	if !started {
		g.unavailable(log, i, owner, msg)
	}
}

// spawn runs flow in the background unless the gateway is shutting down
func (g *Gateway) spawn(flow func(ctx context.Context)) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closing || g.ctx.Err() != nil {
		return false
	}

	g.flows.Add(1)
	go func() {
		defer g.flows.Done()
		flow(g.ctx)
	}()
	return true
}

func (g *Gateway) isClosing() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closing || g.ctx.Err() != nil
}

// drain stops accepting flows and waits for the running ones
func (g *Gateway) drain() {
	g.mu.Lock()
	g.closing = true
	g.mu.Unlock()
	g.flows.Wait()
}

func (g *Gateway) wait() {
	g.flows.Wait()
}

// rejectClosing answers a command received during shutdown
func (g *Gateway) rejectClosing(log *logrus.Entry, i *discordgo.InteractionCreate, owner models.OwnerID) {
	err := g.client.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: Mention(owner),
			Embeds:  []*discordgo.MessageEmbed{RenderNotice(models.Notice{Kind: models.NoticeServiceUnavailable, Owner: owner}, g.now())},
		},
	})
	if err != nil {
		log.WithError(err).Error("Failed to answer interaction")
	}
}

// unavailable replaces the processing message of a flow that was not started
func (g *Gateway) unavailable(log *logrus.Entry, i *discordgo.InteractionCreate, owner models.OwnerID, msg *discordgo.Message) {
	content := Mention(owner)
	embeds := []*discordgo.MessageEmbed{RenderNotice(models.Notice{Kind: models.NoticeServiceUnavailable, Owner: owner}, g.now())}
	if _, err := g.client.FollowupMessageEdit(i.Interaction, msg.ID, &discordgo.WebhookEdit{
		Content: &content,
		Embeds:  &embeds,
	}); err != nil {
		log.WithError(err).Error("Failed to update followup message")
	}
}

func (g *Gateway) deferReply(log *logrus.Entry, i *discordgo.InteractionCreate) bool {
	err := g.client.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		log.WithError(err).Error("Failed to defer interaction")
		return false
	}
	return true
}

func (g *Gateway) followup(log *logrus.Entry, i *discordgo.InteractionCreate, owner models.OwnerID, embed *discordgo.MessageEmbed) (*discordgo.Message, bool) {
	msg, err := g.client.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: Mention(owner),
		Embeds:  []*discordgo.MessageEmbed{embed},
	})
	if err != nil {
		log.WithError(err).Error("Failed to send followup message")
		return nil, false
	}
	return msg, true
}

func handleFor(i *discordgo.InteractionCreate, msg *discordgo.Message) models.MessageHandle {
	return models.MessageHandle{
		AppID:     i.AppID,
		Token:     i.Token,
		MessageID: msg.ID,
	}
}

func interactionOwner(i *discordgo.InteractionCreate) models.OwnerID {
	if i.Member != nil && i.Member.User != nil {
		return models.OwnerID(i.Member.User.ID)
	}
	if i.User != nil {
		return models.OwnerID(i.User.ID)
	}
	return ""
}

func stringOption(data discordgo.ApplicationCommandInteractionData, name string) string {
	for _, opt := range data.Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			return opt.StringValue()
		}
	}
	return ""
}
