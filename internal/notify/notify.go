// Package notify sends operational notification email through the Postmark
// HTTP API. Sends are fire-and-forget from the caller's perspective: the
// scheduler logs failures and never propagates them.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dustin/go-humanize"
)

const defaultAPIURL = "https://api.postmarkapp.com/email"

type Client struct {
	serverToken string
	fromEmail   string
	apiURL      string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithAPIURL overrides the Postmark endpoint, for tests.
func WithAPIURL(url string) Option {
	return func(cl *Client) {
		cl.apiURL = url
	}
}

func NewClient(serverToken, fromEmail string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		apiURL:      defaultAPIURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	TextBody string `json:"TextBody"`
}

// Send delivers a plain-text email.
func (c *Client) Send(to, subject, textBody string) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	payload := postmarkEmail{
		From:     c.fromEmail,
		To:       to,
		Subject:  subject,
		TextBody: textBody,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequest("POST", c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}

// SendBackupSucceeded mails a success summary for a completed backup.
func (c *Client) SendBackupSucceeded(to, jobName string, sizeBytes int64) error {
	body := fmt.Sprintf("Backup %q completed successfully.\nArchive size: %s.",
		jobName, humanize.Bytes(uint64(sizeBytes)))
	return c.Send(to, "Backup completed: "+jobName, body)
}

// SendBackupFailed mails a failure notice for a backup attempt.
func (c *Client) SendBackupFailed(to, jobName, errMsg string) error {
	body := fmt.Sprintf("Backup %q failed.\nError: %s", jobName, errMsg)
	return c.Send(to, "Backup failed: "+jobName, body)
}
