package discord

import (
	"encoding/json"
	"strconv"

	"github.com/kapu/reel-views-bot/internal/domain"
)

type WebSocketState string

const (
	WSStateConnecting   WebSocketState = "CONNECTING"
	WSStateConnected    WebSocketState = "CONNECTED"
	WSStateReady        WebSocketState = "READY"
	WSStateDisconnected WebSocketState = "DISCONNECTED"
	WSStateReconnecting WebSocketState = "RECONNECTING"
	WSStateFailed       WebSocketState = "FAILED"
	WSStateExhausted    WebSocketState = "EXHAUSTED" // reconnects given up
)

func (s WebSocketState) String() string {
	return string(s)
}

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatACK   = 11
)

// Gateway intents.
const (
	IntentGuilds         = 1 << 0
	IntentGuildMessages  = 1 << 9
	IntentMessageContent = 1 << 15

	DefaultIntents = IntentGuilds | IntentGuildMessages | IntentMessageContent
)

// Permission bits.
const (
	PermissionAdministrator int64 = 1 << 3
	PermissionConnect       int64 = 1 << 20
	PermissionSpeak         int64 = 1 << 21
)

// Interaction and callback types.
const (
	InteractionTypePing               = 1
	InteractionTypeApplicationCommand = 2

	callbackChannelMessage         = 4
	callbackDeferredChannelMessage = 5
)

// Application command option types.
const (
	OptionTypeString  = 3
	OptionTypeInteger = 4
	OptionTypeChannel = 7
)

type gatewayPayload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type helloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type presenceActivity struct {
	Name string `json:"name"`
	Type int    `json:"type"`
}

type presenceUpdate struct {
	Since      *int64             `json:"since"`
	Activities []presenceActivity `json:"activities"`
	Status     string             `json:"status"`
	AFK        bool               `json:"afk"`
}

type identifyData struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties identifyProperties `json:"properties"`
	Presence   *presenceUpdate    `json:"presence,omitempty"`
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type readyData struct {
	SessionID   string `json:"session_id"`
	User        User   `json:"user"`
	Application struct {
		ID string `json:"id"`
	} `json:"application"`
	Guilds []struct {
		ID string `json:"id"`
	} `json:"guilds"`
}

type Member struct {
	User        *User    `json:"user,omitempty"`
	Roles       []string `json:"roles"`
	Permissions string   `json:"permissions,omitempty"`
}

// PermissionBits parses the stringified permission integer.
func (m *Member) PermissionBits() int64 {
	if m == nil || m.Permissions == "" {
		return 0
	}
	n, _ := strconv.ParseInt(m.Permissions, 10, 64)
	return n
}

type InteractionOption struct {
	Name  string          `json:"name"`
	Type  int             `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// String returns the option value as text; channel ids and strings decode as-is.
func (o InteractionOption) String() string {
	var s string
	if err := json.Unmarshal(o.Value, &s); err == nil {
		return s
	}
	return string(o.Value)
}

// Int64 decodes an integer option.
func (o InteractionOption) Int64() (int64, bool) {
	var n int64
	if err := json.Unmarshal(o.Value, &n); err == nil {
		return n, true
	}
	var f float64
	if err := json.Unmarshal(o.Value, &f); err == nil {
		return int64(f), true
	}
	return 0, false
}

type InteractionData struct {
	ID      string              `json:"id"`
	Name    string              `json:"name"`
	Options []InteractionOption `json:"options,omitempty"`
}

// Option returns the named option.
func (d *InteractionData) Option(name string) (InteractionOption, bool) {
	if d == nil {
		return InteractionOption{}, false
	}
	for _, o := range d.Options {
		if o.Name == name {
			return o, true
		}
	}
	return InteractionOption{}, false
}

// Interaction is an INTERACTION_CREATE payload.
type Interaction struct {
	ID            string           `json:"id"`
	ApplicationID string           `json:"application_id"`
	Type          int              `json:"type"`
	Data          *InteractionData `json:"data,omitempty"`
	GuildID       string           `json:"guild_id,omitempty"`
	ChannelID     string           `json:"channel_id,omitempty"`
	Member        *Member          `json:"member,omitempty"`
	User          *User            `json:"user,omitempty"`
	Token         string           `json:"token"`
}

// Invoker returns the user that triggered the interaction.
func (i *Interaction) Invoker() User {
	if i.Member != nil && i.Member.User != nil {
		return *i.Member.User
	}
	if i.User != nil {
		return *i.User
	}
	return User{}
}

type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Permissions string `json:"permissions"`
}

// CommandOption describes one slash command option for registration.
type CommandOption struct {
	Type        int    `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required,omitempty"`
}

// ApplicationCommand is a slash command definition.
type ApplicationCommand struct {
	Name                     string          `json:"name"`
	Description              string          `json:"description"`
	Type                     int             `json:"type,omitempty"`
	Options                  []CommandOption `json:"options,omitempty"`
	DefaultMemberPermissions string          `json:"default_member_permissions,omitempty"`
}

type permissionOverwrite struct {
	ID    string `json:"id"`
	Type  int    `json:"type"`
	Allow string `json:"allow,omitempty"`
	Deny  string `json:"deny,omitempty"`
}

type createChannelRequest struct {
	Name                 string                `json:"name"`
	Type                 domain.ChannelType    `json:"type"`
	PermissionOverwrites []permissionOverwrite `json:"permission_overwrites,omitempty"`
}

type modifyChannelRequest struct {
	Name string `json:"name"`
}

type attachmentRef struct {
	ID       int    `json:"id"`
	Filename string `json:"filename"`
}

type messagePayload struct {
	Content     string         `json:"content"`
	Embeds      []domain.Embed `json:"embeds"`
	Attachments []attachmentRef `json:"attachments,omitempty"`
}

type interactionResponse struct {
	Type int             `json:"type"`
	Data *messagePayload `json:"data,omitempty"`
}

type apiErrorBody struct {
	Code       int     `json:"code"`
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
}
