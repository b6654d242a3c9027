// Package telegram sends report messages and video attachments through the
// Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

const (
	DefaultBaseURL = "https://api.telegram.org"

	ParseModeMarkdown = "Markdown"
)

var ErrAPI = errors.New("Telegram API error")

// Video is a binary attachment sent with sendVideo.
type Video struct {
	Filename string
	Data     []byte
	Caption  string
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	chatID     string
}

// NewClient returns a client for the bot identified by token that posts to
// chatID.
func NewClient(baseURL, token, chatID string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		chatID:     chatID,
	}
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type apiResponse struct {
	OK          *bool  `json:"ok"`
	Description string `json:"description"`
	ErrorCode   int    `json:"error_code"`
}

// SendMessage posts a Markdown formatted text message.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: c.chatID, Text: text, ParseMode: ParseModeMarkdown})
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}
	return c.post(ctx, "sendMessage", "application/json", bytes.NewReader(body))
}

// SendVideo uploads v as a multipart video attachment with its caption.
func (c *Client) SendVideo(ctx context.Context, v Video) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("chat_id", c.chatID); err != nil {
		return errors.Wrap(err, "failed to write chat_id")
	}
	if err := w.WriteField("caption", v.Caption); err != nil {
		return errors.Wrap(err, "failed to write caption")
	}
	part, err := w.CreateFormFile("video", v.Filename)
	if err != nil {
		return errors.Wrap(err, "failed to create video part")
	}
	if _, err := part.Write(v.Data); err != nil {
		return errors.Wrap(err, "failed to write video part")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "failed to close multipart body")
	}
	return c.post(ctx, "sendVideo", w.FormDataContentType(), &buf)
}

func (c *Client) post(ctx context.Context, method, contentType string, body io.Reader) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The URL carries the bot token, keep it out of the error text.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return errors.Wrapf(err, "%s request failed", method)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s response", method)
	}
	var ar apiResponse
	decodeErr := json.Unmarshal(raw, &ar)

	if resp.StatusCode < 200 || resp.StatusCode > 299 || (decodeErr == nil && ar.OK != nil && !*ar.OK) {
		if decodeErr == nil && ar.Description != "" {
			return errors.New(ar.Description)
		}
		return ErrAPI
	}
	return nil
}
