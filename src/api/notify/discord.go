package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

type embedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordAlerter posts admin alerts as embeds to one channel.
type DiscordAlerter struct {
	session   embedSender
	channelID string
}

func NewDiscordAlerter(token, channelID string) (*DiscordAlerter, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &DiscordAlerter{session: s, channelID: channelID}, nil
}

func (a *DiscordAlerter) Alert(ctx context.Context, title, body, link string) error {
	_, err := a.session.ChannelMessageSendEmbed(a.channelID, buildAlertEmbed(title, body, link), discordgo.WithContext(ctx))
	return err
}

func buildAlertEmbed(title, body, link string) *discordgo.MessageEmbed {
	if len(body) > 4000 {
		body = body[:4000] + "..."
	}
	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: body,
		Color:       0xe67e22,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: "Escrow Market admin"},
	}
	if link != "" {
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Review", Value: fmt.Sprintf("[Open](%s)", link)},
		}
	}
	return embed
}
