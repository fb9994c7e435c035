package biz

import (
	"context"
	"strings"
)

// Author is the sender of a chat message.
type Author struct {
	ID       string
	Username string
}

// Attachment is a file attached to a chat message as reported by the platform.
type Attachment struct {
	URL      string
	Filename string
	Width    int
	Height   int
	Size     int64
}

// Message is an inbound chat message.
type Message struct {
	GuildID     string
	ChannelID   string
	MessageID   string
	Content     string
	Author      Author
	Attachments []Attachment
}

// IncomingImage is one candidate image taken from a message. It is owned by
// the task scanning it.
type IncomingImage struct {
	SourceURL string
	Filename  string
	// Width and Height are zero when the platform did not declare them.
	Width     int
	Height    int
	Size      int64
	GuildID   string
	ChannelID string
	MessageID string
	Author    Author

	// Data is filled in after download.
	Data []byte
}

// ImagesFromMessage lists the attachments of msg followed by any http(s)
// links in its content. Links carry no dimensions.
func ImagesFromMessage(msg *Message) []*IncomingImage {
	images := make([]*IncomingImage, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		images = append(images, &IncomingImage{
			SourceURL: a.URL,
			Filename:  a.Filename,
			Width:     a.Width,
			Height:    a.Height,
			Size:      a.Size,
			GuildID:   msg.GuildID,
			ChannelID: msg.ChannelID,
			MessageID: msg.MessageID,
			Author:    msg.Author,
		})
	}
	for _, field := range strings.Fields(msg.Content) {
		field = strings.Trim(field, "<>()")
		if !strings.HasPrefix(field, "http://") && !strings.HasPrefix(field, "https://") {
			continue
		}
		images = append(images, &IncomingImage{
			SourceURL: field,
			Filename:  filenameFromURL(field),
			GuildID:   msg.GuildID,
			ChannelID: msg.ChannelID,
			MessageID: msg.MessageID,
			Author:    msg.Author,
		})
	}
	return images
}

func filenameFromURL(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		return raw[i+1:]
	}
	return raw
}

// Downloader fetches image bytes.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Embed is a rich message block.
type Embed struct {
	Title       string
	Description string
	Color       int
}

// OutboundMessage is a message posted to a channel.
type OutboundMessage struct {
	Content string
	// ReplyTo is the message ID being answered, if any.
	ReplyTo string
	Embed   *Embed
}

// Platform is the narrow slice of the chat platform the pipeline needs.
type Platform interface {
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	PostMessage(ctx context.Context, channelID string, msg *OutboundMessage) error
}
