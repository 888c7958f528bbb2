package domain

// ChannelType mirrors the chat platform's numeric channel types.
type ChannelType int

const (
	ChannelTypeText     ChannelType = 0
	ChannelTypeVoice    ChannelType = 2
	ChannelTypeCategory ChannelType = 4
)

// Channel is a guild channel as returned by the chat platform.
type Channel struct {
	ID       string      `json:"id"`
	GuildID  string      `json:"guild_id,omitempty"`
	Name     string      `json:"name"`
	Type     ChannelType `json:"type"`
	ParentID string      `json:"parent_id,omitempty"`
	Position int         `json:"position,omitempty"`
}

// Label returns the "#name" reference used in reports and the ledger.
func (c *Channel) Label() string {
	if c == nil {
		return ""
	}
	return ChannelLabel(c.Name)
}

// Mention returns the platform mention syntax for the channel.
func (c *Channel) Mention() string {
	if c == nil {
		return ""
	}
	return "<#" + c.ID + ">"
}

// IsVoice returns true for voice channels.
func (c *Channel) IsVoice() bool {
	return c != nil && c.Type == ChannelTypeVoice
}

// ChannelLabel prefixes name with '#' unless it already carries it.
func ChannelLabel(name string) string {
	if name == "" {
		return ""
	}
	if name[0] == '#' {
		return name
	}
	return "#" + name
}
