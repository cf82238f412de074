package discord

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/matcha-bookable/bookable-bot/internal/models"
	"github.com/matcha-bookable/bookable-bot/internal/services"
)

// Embed colours
const (
	ColorInfo    = 0x2c4c7c
	ColorError   = 0x7c2c4c
	ColorSuccess = 0x4c7c2c
	ColorEmpty   = 0x2c7c7c
)

const bookingsTitle = "**Bookings**"

// Reminder is appended to every ready message
const Reminder = "WARNING: THIS BOOKABLE IS CURRENTLY BEING EXPERIMENTED, WE ARE NOT RESPONSIBLE FOR ANY INCIDENTS OCCURED FROM GAMES IN THIS BOOKABLE.\n\n" +
	"Use `!votemenu` to change configs and maps.\n" +
	"Use `!sdr` to receive SDR connect string in-game.\n" +
	"Server will close if there are less than 2 players for 10 minutes."

type embedTemplate struct {
	title       string
	description string
	color       int
	footer      string // Empty footer shows the status code
}

var templates = map[models.NoticeKind]embedTemplate{
	models.NoticeBookingProcessing:      {bookingsTitle, "Your request is being processed.\nThis message will be updated accordingly later.", ColorInfo, "Regards"},
	models.NoticeRequestInProgress:      {bookingsTitle, "You have a request being processed.\nPlease wait till it has finished.", ColorError, "Regards"},
	models.NoticeAlreadyBooked:          {bookingsTitle, "You have already booked a server.\nPlease unbook the server before booking a new one.", ColorError, "Regards"},
	models.NoticeDirectMessagesDisabled: {bookingsTitle, "Please enable Direct Messages before booking for a server.", ColorError, "Apologies"},
	models.NoticeCapacityReached:        {bookingsTitle, "The total server capacity has been reached.\nPlease try again later.", ColorError, "Apologies"},
	models.NoticeBookingAccepted:        {bookingsTitle, "Your server is being booked, this may take some time.\nServer details will be sent to you via private message.", ColorInfo, "Have fun"},
	models.NoticeBackendDuplicate:       {bookingsTitle, "You have a separate booking currently.\nPlease unbook from the other bookable before attempting.", ColorError, "Regards"},
	models.NoticeRegionFull:             {bookingsTitle, "This region has no available servers.\nPlease try again later.", ColorError, "Apologies"},
	models.NoticeServiceUnavailable:     {bookingsTitle, "Service temporarily unavailable.\nThis could be due to a configuration issue or network problem.\nPlease try again later or contact the admins.", ColorError, "Apologies"},
	models.NoticeInternalError:          {bookingsTitle, "An Internal Server Error has occured.\nPlease try again later.", ColorError, ""},
	models.NoticeTimedOut:               {bookingsTitle, "The request has timed out.\nPlease try again later.", ColorError, "Apologies"},

	models.NoticeServerReady: {bookingsTitle, "Your server is ready!", ColorSuccess, "Have fun"},
	models.NoticeDetailsSent: {bookingsTitle, "Server details have been sent to you via private message.", ColorSuccess, "Regards"},
	models.NoticeServerEmpty: {"**Empty**", "The server has been closed due to inactivity.\nThank you for using our service.", ColorEmpty, "Have a nice day"},

	models.NoticeUnbookProcessing: {bookingsTitle, "Your unbook request is being processed.\nThis message will be updated accordingly later.", ColorInfo, "Regards"},
	models.NoticeNothingBooked:    {bookingsTitle, "You haven't booked a server yet.\nPlease book a server first.", ColorError, "Regards"},
	models.NoticeAlreadyClosing:   {bookingsTitle, "Your server is being closed right now.\nPlease wait for it to finish.", ColorError, "Regards"},
	models.NoticeStillStarting:    {bookingsTitle, "You may close the server after it has started.\nPlease wait for it to finish.", ColorError, "Regards"},
	models.NoticeUnbooked:         {bookingsTitle, "Your server has been closed.\nThank you for using our service.", ColorSuccess, "Have a nice day"},
	models.NoticeUnbookFailed:     {bookingsTitle, "An Internal Server Error has occured.\nPlease try again later or contact the admins.", ColorError, ""},
}

// Mention is the message content that pings the owner
func Mention(owner models.OwnerID) string {
	return fmt.Sprintf("<@%s>", owner)
}

// RenderNotice builds the embed for a notice
func RenderNotice(notice models.Notice, now time.Time) *discordgo.MessageEmbed {
	tmpl, ok := templates[notice.Kind]
	if !ok {
		tmpl = templates[models.NoticeInternalError]
	}

	footer := tmpl.footer
	if footer == "" {
		footer = fmt.Sprintf("Status Code: %d", notice.StatusCode)
	}
	if notice.Kind == models.NoticeDetailsSent && notice.RegionLabel != "" {
		footer = notice.RegionLabel
	}

	embed := &discordgo.MessageEmbed{
		Title:       tmpl.title,
		Description: tmpl.description,
		Color:       tmpl.color,
		Timestamp:   now.Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: footer},
	}

	if notice.Kind == models.NoticeServerReady && notice.Details != nil {
		embed.Fields = readyFields(notice)
	}
	return embed
}

func readyFields(notice models.Notice) []*discordgo.MessageEmbedField {
	details := notice.Details
	region := notice.RegionLabel
	if region == "" {
		region = notice.Region
	}

	return []*discordgo.MessageEmbedField{
		{Name: "Connect String", Value: fmt.Sprintf("```%s```", details.ConnectString())},
		{Name: "SDR Connect String", Value: fmt.Sprintf("```%s```", details.SDRConnectString())},
		{Name: "SourceTV Details", Value: fmt.Sprintf("```%s```", details.STVConnectString())},
		{Name: "Server", Value: fmt.Sprintf("`%s`", details.Instance), Inline: true},
		{Name: "Region", Value: fmt.Sprintf("`%s`", region), Inline: true},
		{Name: "Reminder", Value: Reminder},
	}
}

// RenderStatus builds the /status embed
func RenderStatus(providerName string, capacity services.CapacitySnapshot, regions []services.RegionAvailability, now time.Time) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("**Status - %s**", providerName),
		Description: fmt.Sprintf("Total Capacity: `%d/%d` booked", capacity.Active, capacity.Ceiling),
		Color:       ColorSuccess,
		Timestamp:   now.Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: "Regards"},
	}

	for _, r := range regions {
		name := r.Name
		if name == "" {
			name = r.Code
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   name,
			Value:  fmt.Sprintf("`%d/%d` available", r.Available, r.Quota),
			Inline: true,
		})
	}
	return embed
}

// RenderError builds the embed for an unexpected command failure
func RenderError(err error, now time.Time) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Error",
		Description: fmt.Sprintf("An error has occured: %s", err.Error()),
		Color:       ColorError,
		Timestamp:   now.Format(time.RFC3339),
	}
}
