package domain

import "time"

// Message is a chat message as read from a channel's history.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	Content   string    `json:"content"`
	Embeds    []Embed   `json:"embeds"`
	Timestamp time.Time `json:"timestamp"`
}

// Embed is a structured message payload. Report messages are embeds.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type EmbedFooter struct {
	Text string `json:"text"`
}

// FieldValue returns the value of the first field named name.
func (e *Embed) FieldValue(name string) (string, bool) {
	if e == nil {
		return "", false
	}
	for _, f := range e.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Attachment is a file uploaded alongside a message.
type Attachment struct {
	Name string
	Data []byte
}

// OutgoingMessage is what gets posted to a channel or an interaction response.
type OutgoingMessage struct {
	Content     string
	Embeds      []Embed
	Attachments []Attachment
}
