// Package chat is the WhatsApp Business Cloud API side of the relay:
// sending messages, downloading received media and verifying webhooks.
package chat

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/relaydesk/relaydesk/internal/media"
)

const defaultAPIBase = "https://graph.facebook.com/v21.0"

type Client struct {
	apiBase       string
	accessToken   string
	phoneNumberID string
	appSecret     string
	httpClient    *http.Client
	logger        *slog.Logger
}

func NewClient(log *slog.Logger, apiBase, accessToken, phoneNumberID, appSecret string) *Client {
	if log == nil {
		log = slog.Default()
	}
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	return &Client{
		apiBase:       strings.TrimRight(apiBase, "/"),
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		appSecret:     appSecret,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		logger:        log.With(slog.String("service", "chat")),
	}
}

// SendText delivers a plain text message to a phone number in E.164
// digits form.
func (c *Client) SendText(ctx context.Context, to, text string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                strings.TrimPrefix(to, "+"),
		"type":              "text",
		"text":              map[string]string{"body": text},
	}
	return c.postMessage(ctx, payload)
}

// SendDocumentLink delivers a file by public URL. WhatsApp fetches the
// link itself, so the URL must stay reachable until delivery.
func (c *Client) SendDocumentLink(ctx context.Context, to, url, filename string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                strings.TrimPrefix(to, "+"),
		"type":              "document",
		"document": map[string]string{
			"link":     url,
			"filename": filename,
		},
	}
	return c.postMessage(ctx, payload)
}

func (c *Client) postMessage(ctx context.Context, payload map[string]any) error {
	url := fmt.Sprintf("%s/%s/messages", c.apiBase, c.phoneNumberID)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrSendFailed, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}

type mediaInfo struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

// DownloadMedia resolves a webhook media id to its short-lived download
// URL and fetches the bytes, enforcing maxBytes on the body.
func (c *Client) DownloadMedia(ctx context.Context, mediaID string, maxBytes int64) ([]byte, string, error) {
	info, err := c.resolveMedia(ctx, mediaID)
	if err != nil {
		return nil, "", err
	}
	if info.FileSize > 0 && info.FileSize > maxBytes {
		return nil, "", fmt.Errorf("%w: media %s is %d bytes", media.ErrTooLarge, mediaID, info.FileSize)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", media.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: status %d", media.ErrFetchFailed, resp.StatusCode)
	}

	data, err := media.ReadAllWithLimit(resp.Body, maxBytes)
	if err != nil {
		return nil, "", err
	}
	c.logger.Debug("downloaded media",
		slog.String("media_id", mediaID),
		slog.Int("bytes", len(data)))
	return data, info.MimeType, nil
}

func (c *Client) resolveMedia(ctx context.Context, mediaID string) (*mediaInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/"+mediaID, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", media.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: media lookup status %d", media.ErrFetchFailed, resp.StatusCode)
	}

	var info mediaInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: decode media info: %v", media.ErrFetchFailed, err)
	}
	if info.URL == "" {
		return nil, fmt.Errorf("%w: media %s has no download url", media.ErrFetchFailed, mediaID)
	}
	return &info, nil
}

// VerifySignature checks the X-Hub-Signature-256 header against the raw
// request body. Verification is skipped when no app secret is configured.
func (c *Client) VerifySignature(body []byte, signature string) bool {
	if c.appSecret == "" {
		return true
	}
	if !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	expected := strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, []byte(c.appSecret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(computed))
}
