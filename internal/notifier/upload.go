package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/oshokin/home-guard/internal/logger"
)

// errUploadFailed is returned when the host does not return a link.
var errUploadFailed = errors.New("upload failed")

// Upload publishes the image on a file hosting service and appends the
// download link to the message before passing it on.
type Upload struct {
	next   Dispatcher
	url    string
	key    string
	client *http.Client
}

// NewUpload decorates next. key is sent as the basic auth user name when set.
func NewUpload(next Dispatcher, uploadURL, key string, client *http.Client) *Upload {
	if client == nil {
		client = http.DefaultClient
	}

	return &Upload{
		next:   next,
		url:    uploadURL,
		key:    key,
		client: client,
	}
}

// uploadResponse matches file.io-style answers.
type uploadResponse struct {
	Success bool   `json:"success"`
	Link    string `json:"link"`
	Message string `json:"message"`
}

// NotifyAll uploads the image if any. A failed upload is logged and the
// notification still goes out without the link.
func (u *Upload) NotifyAll(ctx context.Context, message string, image []byte) error {
	if len(image) > 0 {
		link, err := u.upload(ctx, image)
		if err != nil {
			logger.WarnKV(ctx, "Image upload failed", "error", err)
		} else {
			message += "\n" + link
		}
	}

	return u.next.NotifyAll(ctx, message, image)
}

func (u *Upload) upload(ctx context.Context, image []byte) (string, error) {
	var (
		body   bytes.Buffer
		writer = multipart.NewWriter(&body)
	)

	part, err := writer.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return "", fmt.Errorf("create file part: %w", err)
	}

	if _, err = part.Write(image); err != nil {
		return "", fmt.Errorf("write file part: %w", err)
	}

	if err = writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, &body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())

	if u.key != "" {
		req.SetBasicAuth(u.key, "")
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send upload request: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	var answer uploadResponse
	if err = json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return "", fmt.Errorf("decode upload response (status %d): %w", resp.StatusCode, err)
	}

	if !answer.Success || answer.Link == "" {
		return "", fmt.Errorf("%w: %s", errUploadFailed, answer.Message)
	}

	return answer.Link, nil
}
