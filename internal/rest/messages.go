package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/matheus3301/huddle/internal/model"
)

// Outgoing is a message to post. FilePath, when set, is uploaded as the
// attachment.
type Outgoing struct {
	ChannelID string
	Content   string
	FilePath  string
}

// MessageHistory returns the stored messages of channelID, oldest first.
func (c *Client) MessageHistory(ctx context.Context, channelID string) ([]model.Message, error) {
	var out []model.Message
	if err := c.call(ctx, request{method: http.MethodGet, path: "messages/" + channelID}, &out); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].ChannelID == "" {
			out[i].ChannelID = channelID
		}
	}
	return out, nil
}

// PostMessage posts a message and returns the stored record.
func (c *Client) PostMessage(ctx context.Context, msg Outgoing) (model.Message, error) {
	body, contentType, err := encodeOutgoing(msg)
	if err != nil {
		return model.Message{}, err
	}
	var out model.Message
	req := request{method: http.MethodPost, path: "messages", body: body, contentType: contentType}
	if err := c.call(ctx, req, &out); err != nil {
		return model.Message{}, err
	}
	if out.ChannelID == "" {
		out.ChannelID = msg.ChannelID
	}
	return out, nil
}

// DeleteMessage soft-deletes id and returns the authoritative tombstone.
func (c *Client) DeleteMessage(ctx context.Context, id string) (model.Deletion, error) {
	var out model.Deletion
	if err := c.call(ctx, request{method: http.MethodDelete, path: "messages/" + id}, &out); err != nil {
		return model.Deletion{}, err
	}
	if out.ID == "" {
		out.ID = id
	}
	return out, nil
}

func encodeOutgoing(msg Outgoing) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("channelId", msg.ChannelID); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("content", msg.Content); err != nil {
		return nil, "", err
	}
	if msg.FilePath != "" {
		f, err := os.Open(msg.FilePath)
		if err != nil {
			return nil, "", fmt.Errorf("open attachment: %w", err)
		}
		defer f.Close()
		part, err := w.CreateFormFile("file", filepath.Base(msg.FilePath))
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, f); err != nil {
			return nil, "", fmt.Errorf("read attachment: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
