package gateway

import "imagescan/internal/biz"

type author struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type attachment struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Size     int64  `json:"size"`
}

type messageCreate struct {
	GuildID     string       `json:"guild_id"`
	ChannelID   string       `json:"channel_id"`
	MessageID   string       `json:"message_id"`
	Content     string       `json:"content"`
	Author      author       `json:"author"`
	Attachments []attachment `json:"attachments"`
}

func (m *messageCreate) toBiz() *biz.Message {
	msg := &biz.Message{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		MessageID: m.MessageID,
		Content:   m.Content,
		Author:    biz.Author{ID: m.Author.ID, Username: m.Author.Username},
	}
	for _, a := range m.Attachments {
		msg.Attachments = append(msg.Attachments, biz.Attachment{
			URL:      a.URL,
			Filename: a.Filename,
			Width:    a.Width,
			Height:   a.Height,
			Size:     a.Size,
		})
	}
	return msg
}

type deleteRequest struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

type embed struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Color       int    `json:"color,omitempty"`
}

type postRequest struct {
	ChannelID string `json:"channel_id"`
	ReplyTo   string `json:"reply_to,omitempty"`
	Content   string `json:"content,omitempty"`
	Embed     *embed `json:"embed,omitempty"`
}

type reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
