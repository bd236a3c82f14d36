package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/pokebot/internal/poke"
)

// pokeFallback is sent in place of a native poke, which Discord lacks.
const pokeFallback = "👉 poke!"

// messenger is the slice of *discordgo.Session the host writes through.
type messenger interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildMemberTimeout(guildID, userID string, until *time.Time, options ...discordgo.RequestOption) error
}

// Host implements poke.Host on a Discord session.
type Host struct {
	api   messenger
	roles *RoleResolver
	now   func() time.Time
	log   zerolog.Logger
}

func NewHost(api messenger, roles *RoleResolver, log zerolog.Logger) *Host {
	return &Host{api: api, roles: roles, now: time.Now, log: log}
}

func (h *Host) Roles(ctx context.Context, ev poke.Event) (poke.Roles, error) {
	return h.roles.Roles(ctx, ev)
}

func mention(id string) string {
	return "<@" + id + ">"
}

// message builds the outgoing message for r. Mentions are limited to the
// user the response is addressed to.
func message(r poke.Response) (*discordgo.MessageSend, error) {
	msg := &discordgo.MessageSend{
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	if r.Mention != "" {
		msg.Content = mention(r.Mention)
		msg.AllowedMentions.Users = []string{r.Mention}
	}

	switch r.Kind {
	case poke.ResponseText, "":
		msg.Content = strings.TrimSpace(msg.Content + " " + r.Text)
	case poke.ResponseImage:
		if isURL(r.Media) {
			msg.Embeds = []*discordgo.MessageEmbed{{Image: &discordgo.MessageEmbedImage{URL: r.Media}}}
			return msg, nil
		}
		fallthrough
	case poke.ResponseVoice:
		f, err := os.Open(r.Media)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", r.Kind, err)
		}
		msg.Files = []*discordgo.File{{Name: filepath.Base(r.Media), Reader: f}}
	default:
		return nil, fmt.Errorf("unknown response kind %q", r.Kind)
	}
	return msg, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

func closeFiles(msg *discordgo.MessageSend) {
	for _, f := range msg.Files {
		if c, ok := f.Reader.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}
}

func (h *Host) Reply(ctx context.Context, ev poke.Event, r poke.Response) error {
	msg, err := message(r)
	if err != nil {
		return err
	}
	defer closeFiles(msg)

	_, err = h.api.ChannelMessageSendComplex(ev.ChannelID, msg, discordgo.WithContext(ctx))
	return err
}

// Mute times the user out. Direct messages have nobody to mute.
func (h *Host) Mute(ctx context.Context, ev poke.Event, userID string, d time.Duration) error {
	if ev.Private {
		return poke.ErrMuteUnsupported
	}
	until := h.now().Add(d)
	if err := h.api.GuildMemberTimeout(ev.ScopeID, userID, &until, discordgo.WithContext(ctx)); err != nil {
		var rest *discordgo.RESTError
		if errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%w: %v", poke.ErrMuteUnsupported, err)
		}
		return err
	}
	h.log.Info().Str("guild", ev.ScopeID).Str("user", userID).Dur("for", d).Msg("member timed out")
	return nil
}

// Poke sends the mention fallback.
func (h *Host) Poke(ctx context.Context, ev poke.Event, userID string) error {
	return h.Reply(ctx, ev, poke.Response{Kind: poke.ResponseText, Mention: userID, Text: pokeFallback})
}
