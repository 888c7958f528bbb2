package domain

import (
	"context"
	"time"
)

// Replier answers the interaction a command is running for.
type Replier interface {
	// Status replaces the interim reply. It is ignored once Final was called.
	Status(ctx context.Context, text string)
	// Final delivers the one terminal reply.
	Final(ctx context.Context, msg OutgoingMessage) error
}

// CommandContext carries the invoking interaction through a command execution.
type CommandContext struct {
	GuildID          string
	ChannelID        string
	UserID           string
	Username         string
	RoleNames        []string
	Permissions      int64
	InteractionID    string
	InteractionToken string
	Timestamp        time.Time
	Reply            Replier
}

func NewCommandContext(guildID, channelID, userID, username string) *CommandContext {
	return &CommandContext{
		GuildID:   guildID,
		ChannelID: channelID,
		UserID:    userID,
		Username:  username,
		Timestamp: time.Now(),
	}
}

// Age is the time elapsed since the interaction was received.
func (c *CommandContext) Age() time.Duration {
	if c == nil || c.Timestamp.IsZero() {
		return 0
	}
	return time.Since(c.Timestamp)
}
