package biz

import (
	"context"
	"testing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func actionImage() *IncomingImage {
	return &IncomingImage{
		SourceURL: "https://cdn.example.com/meme.png",
		Filename:  "meme.png",
		GuildID:   "g1",
		ChannelID: "c1",
		MessageID: "m1",
		Author:    Author{ID: "42", Username: "alice"},
	}
}

func TestActionExecutor_Logged(t *testing.T) {
	platform := &fakePlatform{}
	guilds := &fakeGuilds{configs: map[string]*GuildConfig{
		"g1": {GuildID: "g1", LogChannel: "log1", EmbedTitle: "Removed", EmbedBody: "Sorry @user, not allowed"},
	}}
	a := NewActionExecutor(platform, guilds, log.DefaultLogger)

	state := a.Execute(context.Background(), actionImage(), "nsfw")
	assert.Equal(t, ActionStateLogged, state)
	assert.Equal(t, []string{"m1"}, platform.deletes)

	notices := platform.postsTo("c1")
	require.Len(t, notices, 1)
	assert.Equal(t, "Removed", notices[0].Embed.Title)
	assert.Equal(t, "Sorry <@42>, not allowed", notices[0].Embed.Description)

	audits := platform.postsTo("log1")
	require.Len(t, audits, 1)
	assert.Equal(t,
		"Attachment: `meme.png`\nSent by: `alice`\nMatched pattern: `nsfw`\n[Image link](https://cdn.example.com/meme.png)",
		audits[0].Embed.Description)
}

func TestActionExecutor_DefaultNotice(t *testing.T) {
	platform := &fakePlatform{}
	a := NewActionExecutor(platform, &fakeGuilds{}, log.DefaultLogger)

	state := a.Execute(context.Background(), actionImage(), "nsfw")
	assert.Equal(t, ActionStateNotified, state)

	notices := platform.postsTo("c1")
	require.Len(t, notices, 1)
	assert.Equal(t, DefaultNoticeTitle, notices[0].Embed.Title)
	assert.Equal(t, DefaultNoticeBody, notices[0].Embed.Description)
}

func TestActionExecutor_DeleteFailed(t *testing.T) {
	platform := &fakePlatform{deleteErr: errBoom}
	guilds := &fakeGuilds{configs: map[string]*GuildConfig{"g1": {LogChannel: "log1"}}}
	a := NewActionExecutor(platform, guilds, log.DefaultLogger)

	state := a.Execute(context.Background(), actionImage(), "nsfw")
	assert.Equal(t, ActionStateReportedFailure, state)

	notices := platform.postsTo("c1")
	require.Len(t, notices, 1)
	assert.Equal(t, "Failed to delete the message: m1", notices[0].Embed.Description)
	assert.Empty(t, platform.postsTo("log1"))
}

func TestActionExecutor_PostsAreIndependent(t *testing.T) {
	platform := &fakePlatform{postErr: errBoom}
	guilds := &fakeGuilds{configs: map[string]*GuildConfig{"g1": {LogChannel: "log1"}}}
	a := NewActionExecutor(platform, guilds, log.DefaultLogger)

	state := a.Execute(context.Background(), actionImage(), "nsfw")
	assert.Equal(t, ActionStateLogged, state)
	assert.Len(t, platform.postsTo("c1"), 1)
	assert.Len(t, platform.postsTo("log1"), 1)
}
