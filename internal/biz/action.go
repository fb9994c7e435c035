package biz

import (
	"context"
	"fmt"
	"strings"

	"imagescan/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// ActionState is where a moderation action ended.
type ActionState int

const (
	ActionStateDone ActionState = iota
	ActionStateDeleting
	ActionStateReportedFailure
	ActionStateNotified
	ActionStateLogged
)

func (s ActionState) String() string {
	switch s {
	case ActionStateDone:
		return "done"
	case ActionStateDeleting:
		return "deleting"
	case ActionStateReportedFailure:
		return "reported_failure"
	case ActionStateNotified:
		return "notified"
	case ActionStateLogged:
		return "logged"
	default:
		return "unknown"
	}
}

const (
	DefaultNoticeTitle = "Yeet!"
	DefaultNoticeBody  = "Please configure a message!"

	colorBad  = 0xFF0000
	colorGood = 0x00FF00
)

// ActionExecutor deletes offending messages and reports what it did.
type ActionExecutor struct {
	platform Platform
	guilds   GuildRepo
	log      *log.Helper
}

// NewActionExecutor creates a new ActionExecutor.
func NewActionExecutor(platform Platform, guilds GuildRepo, logger log.Logger) *ActionExecutor {
	return &ActionExecutor{
		platform: platform,
		guilds:   guilds,
		log:      log.NewHelper(logger),
	}
}

// Execute deletes the message carrying img and, only if that worked, posts
// the community notice and the audit entry. matched is the rule text shown
// in the audit entry. Nothing is retried.
func (a *ActionExecutor) Execute(ctx context.Context, img *IncomingImage, matched string) ActionState {
	state := a.execute(ctx, img, matched)
	metrics.ActionsTotal.WithLabelValues(state.String()).Inc()
	return state
}

func (a *ActionExecutor) execute(ctx context.Context, img *IncomingImage, matched string) ActionState {
	if err := a.platform.DeleteMessage(ctx, img.ChannelID, img.MessageID); err != nil {
		a.log.Warnf("delete message %s in channel %s: %v", img.MessageID, img.ChannelID, err)
		a.post(ctx, img.ChannelID, &OutboundMessage{
			ReplyTo: img.MessageID,
			Embed: &Embed{
				Title:       "Error",
				Description: "Failed to delete the message: " + img.MessageID,
				Color:       colorBad,
			},
		})
		return ActionStateReportedFailure
	}

	cfg, err := a.guilds.GetConfig(ctx, img.GuildID)
	if err != nil {
		a.log.Errorf("load config for guild %s: %v", img.GuildID, err)
	}
	if cfg == nil {
		cfg = &GuildConfig{GuildID: img.GuildID}
	}

	a.post(ctx, img.ChannelID, &OutboundMessage{
		ReplyTo: img.MessageID,
		Embed:   a.notice(cfg, img.Author.ID),
	})
	if cfg.LogChannel == "" {
		return ActionStateNotified
	}

	a.post(ctx, cfg.LogChannel, &OutboundMessage{
		Embed: &Embed{
			Description: AuditEntry(img, matched),
			Color:       colorGood,
		},
	})
	return ActionStateLogged
}

func (a *ActionExecutor) notice(cfg *GuildConfig, authorID string) *Embed {
	title, body := cfg.EmbedTitle, cfg.EmbedBody
	if title == "" {
		title = DefaultNoticeTitle
	}
	if body == "" {
		body = DefaultNoticeBody
	}
	return &Embed{
		Title:       title,
		Description: strings.ReplaceAll(body, "@user", "<@"+authorID+">"),
		Color:       colorBad,
	}
}

// post is fire-and-forget: failures are logged and never affect other posts.
func (a *ActionExecutor) post(ctx context.Context, channelID string, msg *OutboundMessage) {
	if err := a.platform.PostMessage(ctx, channelID, msg); err != nil {
		a.log.Warnf("post message to channel %s: %v", channelID, err)
	}
}

// AuditEntry formats the log channel record for a removed image.
func AuditEntry(img *IncomingImage, matched string) string {
	return fmt.Sprintf("Attachment: `%s`\nSent by: `%s`\nMatched pattern: `%s`\n[Image link](%s)",
		img.Filename, img.Author.Username, matched, img.SourceURL)
}
