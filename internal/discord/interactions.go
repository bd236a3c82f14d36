package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/keshon/pokebot/internal/poke"
)

// RespondDeferredEphemeral acknowledges an interaction ephemerally without an immediate reply.
func RespondDeferredEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
}

// EditResponse edits an existing interaction response.
func EditResponse(s *discordgo.Session, i *discordgo.InteractionCreate, content string) error {
	_, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content})
	return err
}

// statusReply is what the invoker sees privately after a /poke.
func statusReply(status poke.Status, ev poke.Event) string {
	switch status {
	case poke.StatusDisabled:
		return "Poking is switched off right now."
	case poke.StatusSelf:
		return "You can't poke yourself."
	case poke.StatusCooling:
		return "Easy there. Try again in a bit."
	case poke.StatusIgnored:
		return "👉 You poked " + mention(ev.TargetID) + "."
	default:
		return "👉"
	}
}
