package discord

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/pokebot/internal/poke"
)

// Privileges says who the bot serves. *config.Config satisfies it.
type Privileges interface {
	IsProtected(id string) bool
	IsDeveloper(id string) bool
}

// guildLookup is the part of discordgo's cache the resolver reads.
// *discordgo.State implements it directly.
type guildLookup interface {
	Guild(guildID string) (*discordgo.Guild, error)
	Member(guildID, userID string) (*discordgo.Member, error)
	Role(guildID, roleID string) (*discordgo.Role, error)
}

// restLookup falls back to the REST API for anything not cached.
type restLookup struct {
	s *discordgo.Session
}

func (r restLookup) Guild(guildID string) (*discordgo.Guild, error) {
	return r.s.Guild(guildID)
}

func (r restLookup) Member(guildID, userID string) (*discordgo.Member, error) {
	return r.s.GuildMember(guildID, userID)
}

func (r restLookup) Role(guildID, roleID string) (*discordgo.Role, error) {
	roles, err := r.s.GuildRoles(guildID)
	if err != nil {
		return nil, err
	}
	for _, role := range roles {
		if role.ID == roleID {
			return role, nil
		}
	}
	return nil, discordgo.ErrStateNotFound
}

// chain tries each lookup in order.
type chain []guildLookup

func (c chain) Guild(guildID string) (g *discordgo.Guild, err error) {
	for _, l := range c {
		if g, err = l.Guild(guildID); err == nil && g != nil {
			return g, nil
		}
	}
	return nil, errors.Join(discordgo.ErrStateNotFound, err)
}

func (c chain) Member(guildID, userID string) (m *discordgo.Member, err error) {
	for _, l := range c {
		if m, err = l.Member(guildID, userID); err == nil && m != nil {
			return m, nil
		}
	}
	return nil, errors.Join(discordgo.ErrStateNotFound, err)
}

func (c chain) Role(guildID, roleID string) (r *discordgo.Role, err error) {
	for _, l := range c {
		if r, err = l.Role(guildID, roleID); err == nil && r != nil {
			return r, nil
		}
	}
	return nil, errors.Join(discordgo.ErrStateNotFound, err)
}

// RoleResolver maps guild ownership and permissions onto poke.Roles.
type RoleResolver struct {
	lookup guildLookup
	priv   Privileges
}

func NewRoleResolver(lookup guildLookup, priv Privileges) *RoleResolver {
	return &RoleResolver{lookup: lookup, priv: priv}
}

// sessionResolver reads the session cache first, then the REST API.
func sessionResolver(s *discordgo.Session, priv Privileges) *RoleResolver {
	return NewRoleResolver(chain{s.State, restLookup{s: s}}, priv)
}

// Roles always resolves the user-level flags. When a guild lookup fails
// the guild-level flags it would have set stay false and the error is
// returned alongside.
func (r *RoleResolver) Roles(_ context.Context, ev poke.Event) (poke.Roles, error) {
	roles := poke.Roles{
		ActorPrivileged: r.priv.IsDeveloper(ev.ActorID) || r.priv.IsProtected(ev.ActorID),
		TargetProtected: r.priv.IsProtected(ev.TargetID),
	}
	if ev.Private {
		return roles, nil
	}

	guild, err := r.lookup.Guild(ev.ScopeID)
	if err != nil {
		return roles, err
	}
	roles.ActorOwner = guild.OwnerID == ev.ActorID
	roles.BotOwner = guild.OwnerID == ev.SelfID

	var errs []error
	if roles.ActorAdmin, err = r.hasPermission(guild, ev.ActorID, discordgo.PermissionAdministrator); err != nil {
		errs = append(errs, err)
	}
	// Timeouts need Moderate Members, which Administrator implies.
	if roles.BotAdmin, err = r.hasPermission(guild, ev.SelfID, discordgo.PermissionAdministrator|discordgo.PermissionModerateMembers); err != nil {
		errs = append(errs, err)
	}
	return roles, errors.Join(errs...)
}

// hasPermission reports whether any of userID's roles grants one of perms.
func (r *RoleResolver) hasPermission(guild *discordgo.Guild, userID string, perms int64) (bool, error) {
	member, err := r.lookup.Member(guild.ID, userID)
	if err != nil {
		return false, err
	}
	// @everyone shares the guild id.
	ids := append([]string{guild.ID}, member.Roles...)
	for _, id := range ids {
		role, err := r.lookup.Role(guild.ID, id)
		if err != nil || role == nil {
			continue
		}
		if role.Permissions&perms != 0 {
			return true, nil
		}
	}
	return false, nil
}
