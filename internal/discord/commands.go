package discord

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"
)

const (
	pokeCommandName = "poke"
	pokeTargetOpt   = "user"
)

// commandDefinitions lists every slash command the bot serves.
func commandDefinitions() []*discordgo.ApplicationCommand {
	dm := true
	return []*discordgo.ApplicationCommand{
		{
			Name:         pokeCommandName,
			Description:  "Poke the bot, or someone else",
			Type:         discordgo.ChatApplicationCommand,
			DMPermission: &dm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        pokeTargetOpt,
					Description: "Who to poke; defaults to the bot",
				},
			},
		},
	}
}

// commandAPI is the slice of *discordgo.Session used for registration.
type commandAPI interface {
	ApplicationCommands(appID, guildID string, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
	ApplicationCommandCreate(appID, guildID string, cmd *discordgo.ApplicationCommand, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error)
	ApplicationCommandDelete(appID, guildID, cmdID string, options ...discordgo.RequestOption) error
}

// registerCommands syncs guild commands with commandDefinitions: obsolete
// ones are deleted and only definitions whose hash changed are re-created.
func (b *Bot) registerCommands(ctx context.Context, api commandAPI, appID, guildID string) error {
	log := b.log.With().Str("guild", guildID).Logger()
	opt := discordgo.WithContext(ctx)

	remote, err := api.ApplicationCommands(appID, guildID, opt)
	if err != nil {
		return err
	}

	wanted := commandDefinitions()
	hashes := make(map[string]string, len(wanted))
	for _, def := range wanted {
		hashes[def.Name] = hashCommand(def)
	}

	cached := b.cache.load(guildID)
	for _, rc := range remote {
		if _, ok := hashes[rc.Name]; ok {
			continue
		}
		if err := api.ApplicationCommandDelete(appID, guildID, rc.ID, opt); err != nil {
			log.Error().Err(err).Str("command", rc.Name).Msg("failed to delete obsolete command")
			continue
		}
		delete(cached, rc.Name)
		log.Info().Str("command", rc.Name).Msg("obsolete command deleted")
	}

	registered := make(map[string]bool, len(remote))
	for _, rc := range remote {
		registered[rc.Name] = true
	}

	// Discord allows a handful of writes per second per guild.
	lim := rate.NewLimiter(rate.Every(25*time.Millisecond), 1)
	for _, def := range wanted {
		if registered[def.Name] && cached[def.Name] == hashes[def.Name] {
			continue
		}
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		if _, err := api.ApplicationCommandCreate(appID, guildID, def, opt); err != nil {
			log.Error().Err(err).Str("command", def.Name).Msg("failed to register command")
			continue
		}
		cached[def.Name] = hashes[def.Name]
		log.Info().Str("command", def.Name).Msg("command registered")
	}

	return b.cache.save(guildID, cached)
}
