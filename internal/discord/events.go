package discord

import (
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/pokebot/internal/poke"
)

// displayName prefers the guild nickname, then the global name.
func displayName(u *discordgo.User, m *discordgo.Member) string {
	if m != nil && m.Nick != "" {
		return m.Nick
	}
	if u == nil {
		return ""
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

func scope(guildID, channelID string) (string, bool) {
	if guildID == "" {
		return channelID, true
	}
	return guildID, false
}

// messageEvent turns a message into a poke. Mentioning the bot pokes the
// bot; a message starting with "poke" pokes the first user it mentions.
func messageEvent(m *discordgo.MessageCreate, selfID string) (poke.Event, bool) {
	if m.Author == nil || m.Author.Bot {
		return poke.Event{}, false
	}

	target := ""
	for _, u := range m.Mentions {
		if u.ID == selfID {
			target = selfID
			break
		}
	}
	if target == "" && strings.HasPrefix(strings.ToLower(strings.TrimSpace(m.Content)), "poke") {
		for _, u := range m.Mentions {
			if u.ID != m.Author.ID && !u.Bot {
				target = u.ID
				break
			}
		}
	}
	if target == "" {
		return poke.Event{}, false
	}

	scopeID, private := scope(m.GuildID, m.ChannelID)
	at := m.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	return poke.NewEvent(poke.Event{
		ActorID:   m.Author.ID,
		ActorName: displayName(m.Author, m.Member),
		TargetID:  target,
		SelfID:    selfID,
		ScopeID:   scopeID,
		ChannelID: m.ChannelID,
		Private:   private,
		At:        at,
	}), true
}

// interactionEvent turns a /poke invocation into a poke.
func interactionEvent(i *discordgo.InteractionCreate, selfID string) (poke.Event, bool) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return poke.Event{}, false
	}
	data := i.ApplicationCommandData()
	if data.Name != pokeCommandName {
		return poke.Event{}, false
	}

	var actor *discordgo.User
	switch {
	case i.Member != nil && i.Member.User != nil:
		actor = i.Member.User
	case i.User != nil:
		actor = i.User
	default:
		return poke.Event{}, false
	}

	target := selfID
	for _, opt := range data.Options {
		if opt.Name == pokeTargetOpt && opt.Type == discordgo.ApplicationCommandOptionUser {
			if id, ok := opt.Value.(string); ok && id != "" {
				target = id
			}
		}
	}

	scopeID, private := scope(i.GuildID, i.ChannelID)
	return poke.NewEvent(poke.Event{
		ActorID:   actor.ID,
		ActorName: displayName(actor, i.Member),
		TargetID:  target,
		SelfID:    selfID,
		ScopeID:   scopeID,
		ChannelID: i.ChannelID,
		Private:   private,
	}), true
}
