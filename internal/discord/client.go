// Package discord is a small REST and gateway client for the parts of the
// Discord API the bot uses.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kapu/reel-views-bot/internal/domain"
	"github.com/kapu/reel-views-bot/internal/observability"
	"github.com/kapu/reel-views-bot/internal/util"
	"github.com/kapu/reel-views-bot/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type ClientConfig struct {
	BaseURL       string
	Token         string
	ApplicationID string
	RequestsPerS  float64
	Timeout       time.Duration
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger

	appMu         sync.RWMutex
	applicationID string
}

func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.RequestsPerS <= 0 {
		cfg.RequestsPerS = 40
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:       rate.NewLimiter(rate.Limit(cfg.RequestsPerS), max(1, int(cfg.RequestsPerS))),
		logger:        util.OrNop(logger),
		applicationID: cfg.ApplicationID,
	}
}

// SetApplicationID records the application id learned from READY when it was not configured.
func (c *Client) SetApplicationID(id string) {
	c.appMu.Lock()
	defer c.appMu.Unlock()
	if c.applicationID == "" {
		c.applicationID = id
	}
}

func (c *Client) ApplicationID() string {
	c.appMu.RLock()
	defer c.appMu.RUnlock()
	return c.applicationID
}

// FetchMessagesPage returns up to limit messages older than before, newest first.
func (c *Client) FetchMessagesPage(ctx context.Context, channelID string, limit int, before string) ([]domain.Message, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if before != "" {
		q.Set("before", before)
	}

	var msgs []domain.Message
	if err := c.doJSON(ctx, http.MethodGet, "/channels/"+channelID+"/messages?"+q.Encode(), nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *Client) SendMessage(ctx context.Context, channelID string, msg domain.OutgoingMessage) (*domain.Message, error) {
	var sent domain.Message
	if err := c.doMessage(ctx, http.MethodPost, "/channels/"+channelID+"/messages", msg, &sent); err != nil {
		c.logger.Error("Failed to send message",
			zap.String("channel_id", channelID),
			zap.Error(err),
		)
		return nil, err
	}
	return &sent, nil
}

// EditMessage replaces the content and embeds of a message the bot posted.
func (c *Client) EditMessage(ctx context.Context, channelID, messageID string, msg domain.OutgoingMessage) (*domain.Message, error) {
	var edited domain.Message
	if err := c.doMessage(ctx, http.MethodPatch, "/channels/"+channelID+"/messages/"+messageID, msg, &edited); err != nil {
		return nil, err
	}
	return &edited, nil
}

func (c *Client) GetChannel(ctx context.Context, channelID string) (*domain.Channel, error) {
	var ch domain.Channel
	if err := c.doJSON(ctx, http.MethodGet, "/channels/"+channelID, nil, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *Client) RenameChannel(ctx context.Context, channelID, name string) (*domain.Channel, error) {
	var ch domain.Channel
	if err := c.doJSON(ctx, http.MethodPatch, "/channels/"+channelID, modifyChannelRequest{Name: name}, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// CreateVoiceChannel creates a voice channel that @everyone cannot join or speak in.
func (c *Client) CreateVoiceChannel(ctx context.Context, guildID, name string) (*domain.Channel, error) {
	req := createChannelRequest{
		Name: name,
		Type: domain.ChannelTypeVoice,
		PermissionOverwrites: []permissionOverwrite{{
			ID:   guildID, // @everyone shares the guild id
			Type: 0,
			Deny: strconv.FormatInt(PermissionConnect|PermissionSpeak, 10),
		}},
	}

	var ch domain.Channel
	if err := c.doJSON(ctx, http.MethodPost, "/guilds/"+guildID+"/channels", req, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *Client) ListGuildChannels(ctx context.Context, guildID string) ([]domain.Channel, error) {
	var chans []domain.Channel
	if err := c.doJSON(ctx, http.MethodGet, "/guilds/"+guildID+"/channels", nil, &chans); err != nil {
		return nil, err
	}
	return chans, nil
}

func (c *Client) FindChannelsByNamePrefix(ctx context.Context, guildID, prefix string, channelType domain.ChannelType) ([]domain.Channel, error) {
	chans, err := c.ListGuildChannels(ctx, guildID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Channel, 0, 1)
	for _, ch := range chans {
		if ch.Type == channelType && strings.HasPrefix(ch.Name, prefix) {
			out = append(out, ch)
		}
	}
	return out, nil
}

// FindTextChannelByName returns the first text channel named name, or nil.
func (c *Client) FindTextChannelByName(ctx context.Context, guildID, name string) (*domain.Channel, error) {
	chans, err := c.ListGuildChannels(ctx, guildID)
	if err != nil {
		return nil, err
	}
	for i := range chans {
		if chans[i].Type == domain.ChannelTypeText && chans[i].Name == name {
			return &chans[i], nil
		}
	}
	return nil, nil
}

func (c *Client) ListGuildRoles(ctx context.Context, guildID string) ([]Role, error) {
	var roles []Role
	if err := c.doJSON(ctx, http.MethodGet, "/guilds/"+guildID+"/roles", nil, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// DeferInteraction acknowledges an interaction so it can be edited for 15 minutes.
func (c *Client) DeferInteraction(ctx context.Context, interactionID, token string) error {
	body := interactionResponse{Type: callbackDeferredChannelMessage}
	return c.doJSON(ctx, http.MethodPost, "/interactions/"+interactionID+"/"+token+"/callback", body, nil)
}

// RespondInteraction answers an interaction immediately with a message.
func (c *Client) RespondInteraction(ctx context.Context, interactionID, token string, msg domain.OutgoingMessage) error {
	payload := toPayload(msg)
	body := interactionResponse{Type: callbackChannelMessage, Data: &payload}
	return c.doJSON(ctx, http.MethodPost, "/interactions/"+interactionID+"/"+token+"/callback", body, nil)
}

func (c *Client) EditOriginalResponse(ctx context.Context, token string, msg domain.OutgoingMessage) error {
	path := "/webhooks/" + c.ApplicationID() + "/" + token + "/messages/@original"
	return c.doMessage(ctx, http.MethodPatch, path, msg, nil)
}

// RegisterCommands overwrites the slash commands, per guild when guildID is set.
func (c *Client) RegisterCommands(ctx context.Context, guildID string, cmds []ApplicationCommand) error {
	path := "/applications/" + c.ApplicationID() + "/commands"
	if guildID != "" {
		path = "/applications/" + c.ApplicationID() + "/guilds/" + guildID + "/commands"
	}
	if err := c.doJSON(ctx, http.MethodPut, path, cmds, nil); err != nil {
		return err
	}
	c.logger.Info("Slash commands registered",
		zap.Int("count", len(cmds)),
		zap.String("guild_id", guildID),
	)
	return nil
}

func toPayload(msg domain.OutgoingMessage) messagePayload {
	p := messagePayload{Content: msg.Content, Embeds: msg.Embeds}
	if p.Embeds == nil {
		p.Embeds = []domain.Embed{}
	}
	for i, a := range msg.Attachments {
		p.Attachments = append(p.Attachments, attachmentRef{ID: i, Filename: a.Name})
	}
	return p
}

func (c *Client) doJSON(ctx context.Context, method, path string, reqBody, respBody any) error {
	var body []byte
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return errors.NewAPIError("failed to marshal request", 400, map[string]any{
				"path": path,
			}).WithCause(err)
		}
		body = data
	}
	return c.send(ctx, method, path, body, "application/json", respBody)
}

// doMessage sends a message payload, switching to multipart when files are attached.
func (c *Client) doMessage(ctx context.Context, method, path string, msg domain.OutgoingMessage, respBody any) error {
	if len(msg.Attachments) == 0 {
		return c.doJSON(ctx, method, path, toPayload(msg), respBody)
	}

	body, contentType, err := encodeMultipart(toPayload(msg), msg.Attachments)
	if err != nil {
		return errors.NewAPIError("failed to encode attachments", 400, map[string]any{
			"path": path,
		}).WithCause(err)
	}
	return c.send(ctx, method, path, body, contentType, respBody)
}

func encodeMultipart(payload messagePayload, files []domain.Attachment) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	jsonPart, err := json.Marshal(payload)
	if err != nil {
		return nil, "", err
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="payload_json"`)
	h.Set("Content-Type", "application/json")
	pw, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := pw.Write(jsonPart); err != nil {
		return nil, "", err
	}

	for i, f := range files {
		fw, err := w.CreateFormFile(fmt.Sprintf("files[%d]", i), f.Name)
		if err != nil {
			return nil, "", err
		}
		if _, err := fw.Write(f.Data); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// send performs the request, retrying once after a 429 using the advertised retry_after.
func (c *Client) send(ctx context.Context, method, path string, body []byte, contentType string, respBody any) error {
	const maxAttempts = 2

	for attempt := 1; ; attempt++ {
		err := c.sendOnce(ctx, method, path, body, contentType, respBody)
		if err == nil {
			return nil
		}

		var apiErr *errors.APIError
		if attempt >= maxAttempts || !errors.IsRateLimited(err) || !stderrors.As(err, &apiErr) {
			return err
		}

		wait, _ := apiErr.Context["retry_after"].(time.Duration)
		if wait <= 0 {
			wait = time.Second
		}
		c.logger.Warn("Discord rate limited, retrying",
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("retry_after", wait),
		)
		if err := util.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (c *Client) sendOnce(ctx context.Context, method, path string, body []byte, contentType string, respBody any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	fullURL := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return errors.NewAPIError("failed to create request", 500, map[string]any{
			"path": path,
		}).WithCause(err)
	}

	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("User-Agent", "DiscordBot (https://github.com/kapu/reel-views-bot, 1.0)")
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.DiscordRequests.WithLabelValues(method, "error").Inc()
		return errors.NewAPIError("request failed", 500, map[string]any{
			"path": path,
		}).WithCause(err)
	}
	defer resp.Body.Close()

	observability.DiscordRequests.WithLabelValues(method, statusClass(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		var apiBody apiErrorBody
		_ = json.Unmarshal(bodyBytes, &apiBody)

		details := map[string]any{
			"path": path,
			"body": string(bodyBytes),
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			details["retry_after"] = retryAfter(apiBody.RetryAfter, resp.Header.Get("Retry-After"))
		}

		return errors.NewAPIError(
			fmt.Sprintf("Discord API error: %s", resp.Status),
			resp.StatusCode,
			details,
		).WithPlatformCode(apiBody.Code)
	}

	if respBody != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return errors.NewAPIError("failed to decode response", 500, map[string]any{
				"path": path,
			}).WithCause(err)
		}
	}

	return nil
}

func retryAfter(bodySeconds float64, header string) time.Duration {
	if bodySeconds > 0 {
		return time.Duration(bodySeconds * float64(time.Second))
	}
	if s, err := strconv.ParseFloat(header, 64); err == nil && s > 0 {
		return time.Duration(s * float64(time.Second))
	}
	return 0
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}
