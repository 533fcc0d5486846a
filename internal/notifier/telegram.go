package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
)

// DefaultTelegramAPIURL is the public Bot API endpoint.
const DefaultTelegramAPIURL = "https://api.telegram.org"

// errTelegramRejected is returned when the Bot API answers with ok=false.
var errTelegramRejected = errors.New("telegram rejected the request")

// Telegram sends notifications through a Telegram bot.
type Telegram struct {
	token   string
	chatIDs []string
	apiURL  string
	client  *http.Client
}

// TelegramOption configures a Telegram dispatcher.
type TelegramOption func(*Telegram)

// WithAPIURL overrides the Bot API base URL.
func WithAPIURL(apiURL string) TelegramOption {
	return func(t *Telegram) {
		if apiURL != "" {
			t.apiURL = strings.TrimRight(apiURL, "/")
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) TelegramOption {
	return func(t *Telegram) {
		if client != nil {
			t.client = client
		}
	}
}

// NewTelegram creates a dispatcher for the bot identified by token.
func NewTelegram(token string, chatIDs []string, opts ...TelegramOption) *Telegram {
	t := &Telegram{
		token:   token,
		chatIDs: chatIDs,
		apiURL:  DefaultTelegramAPIURL,
		client:  http.DefaultClient,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// telegramResponse is the envelope of every Bot API answer.
type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NotifyAll sends the message to every chat. With an image the message
// becomes the photo caption.
func (t *Telegram) NotifyAll(ctx context.Context, message string, image []byte) error {
	if len(t.chatIDs) == 0 {
		return errNoReceivers
	}

	var errs []error

	for _, chatID := range t.chatIDs {
		var err error
		if len(image) > 0 {
			err = t.sendPhoto(ctx, chatID, message, image)
		} else {
			err = t.sendMessage(ctx, chatID, message)
		}

		if err != nil {
			errs = append(errs, fmt.Errorf("chat %s: %w", chatID, err))
		}
	}

	return errors.Join(errs...)
}

func (t *Telegram) sendMessage(ctx context.Context, chatID, message string) error {
	form := url.Values{
		"chat_id": {chatID},
		"text":    {message},
	}

	return t.call(ctx, "sendMessage", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}

func (t *Telegram) sendPhoto(ctx context.Context, chatID, caption string, image []byte) error {
	var (
		body   bytes.Buffer
		writer = multipart.NewWriter(&body)
	)

	if err := writer.WriteField("chat_id", chatID); err != nil {
		return fmt.Errorf("write chat_id field: %w", err)
	}

	if err := writer.WriteField("caption", caption); err != nil {
		return fmt.Errorf("write caption field: %w", err)
	}

	part, err := writer.CreateFormFile("photo", "frame.jpg")
	if err != nil {
		return fmt.Errorf("create photo part: %w", err)
	}

	if _, err = part.Write(image); err != nil {
		return fmt.Errorf("write photo part: %w", err)
	}

	if err = writer.Close(); err != nil {
		return fmt.Errorf("close multipart body: %w", err)
	}

	return t.call(ctx, "sendPhoto", writer.FormDataContentType(), &body)
}

func (t *Telegram) call(ctx context.Context, method, contentType string, body io.Reader) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", t.apiURL, t.token, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}

	req.Header.Set("Content-Type", contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL carries the bot token, keep it out of logs.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}

		return fmt.Errorf("%s: %w", method, err)
	}

	defer func() { _ = resp.Body.Close() }()

	var answer telegramResponse
	if err = json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return fmt.Errorf("%s: decode response (status %d): %w", method, resp.StatusCode, err)
	}

	if !answer.OK {
		return fmt.Errorf("%s: %w: %s", method, errTelegramRejected, answer.Description)
	}

	return nil
}
