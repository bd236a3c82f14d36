package discord

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/bwmarrin/discordgo"
)

// commandShape is the part of a definition that matters for change
// detection. IDs and versions assigned by Discord are left out.
type commandShape struct {
	Name        string                           `json:"name"`
	Description string                           `json:"description"`
	Type        discordgo.ApplicationCommandType `json:"type"`
	DMAllowed   bool                             `json:"dm"`
	Options     []optionShape                    `json:"options,omitempty"`
}

type optionShape struct {
	Name        string                                 `json:"name"`
	Description string                                 `json:"description"`
	Type        discordgo.ApplicationCommandOptionType `json:"type"`
	Required    bool                                   `json:"required"`
	Options     []optionShape                          `json:"options,omitempty"`
}

// hashCommand is stable across option order.
func hashCommand(cmd *discordgo.ApplicationCommand) string {
	shape := commandShape{
		Name:        cmd.Name,
		Description: cmd.Description,
		Type:        cmd.Type,
		DMAllowed:   cmd.DMPermission != nil && *cmd.DMPermission,
		Options:     shapeOptions(cmd.Options),
	}
	data, _ := json.Marshal(shape)
	return fmt.Sprintf("%x", sha1.Sum(data))
}

func shapeOptions(opts []*discordgo.ApplicationCommandOption) []optionShape {
	if len(opts) == 0 {
		return nil
	}
	out := make([]optionShape, len(opts))
	for i, o := range opts {
		out[i] = optionShape{
			Name:        o.Name,
			Description: o.Description,
			Type:        o.Type,
			Required:    o.Required,
			Options:     shapeOptions(o.Options),
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
