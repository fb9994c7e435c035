package biz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImagesFromMessage(t *testing.T) {
	msg := &Message{
		GuildID:   "g1",
		ChannelID: "c1",
		MessageID: "m1",
		Content:   "http://x.example/pic.gif?x=1 plain (https://y.example/dir/)",
		Author:    Author{ID: "42", Username: "alice"},
		Attachments: []Attachment{
			{URL: "https://cdn.example.com/a.png", Filename: "a.png", Width: 640, Height: 480, Size: 1000},
		},
	}

	images := ImagesFromMessage(msg)
	require.Len(t, images, 3)

	assert.Equal(t, "a.png", images[0].Filename)
	assert.Equal(t, 640, images[0].Width)

	assert.Equal(t, "http://x.example/pic.gif?x=1", images[1].SourceURL)
	assert.Equal(t, "pic.gif", images[1].Filename)
	assert.Equal(t, 0, images[1].Width)
	assert.Equal(t, "42", images[1].Author.ID)

	assert.Equal(t, "https://y.example/dir/", images[2].SourceURL)
	assert.Equal(t, "", images[2].Filename)
	for _, img := range images {
		assert.Equal(t, "m1", img.MessageID)
	}
}
