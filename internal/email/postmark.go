package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     baseURL,
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
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// SendAuthCode sends a one-time sign-in code.
func (c *Client) SendAuthCode(toEmail, code, purpose string) error {
	var subject, action string
	switch purpose {
	case "register":
		subject = "Welcome to Aisle"
		action = "complete your registration"
	default:
		subject = "Sign in to Aisle"
		action = "sign in"
	}

	textBody := fmt.Sprintf("Your code to %s is:\n\n%s\n\nThis code expires in 15 minutes.", action, code)
	htmlBody := fmt.Sprintf(
		`<p>Your code to %s is:</p><p style="font-size:24px;letter-spacing:4px"><strong>%s</strong></p><p>This code expires in 15 minutes.</p>`,
		action, code,
	)

	return c.send(toEmail, subject, htmlBody, textBody)
}

// SendInvitation sends a team invitation link.
func (c *Client) SendInvitation(toEmail, token, teamName, inviterName string) error {
	subject := fmt.Sprintf("%s invited you to %s on Aisle", inviterName, teamName)
	link := fmt.Sprintf("%s/invitations/accept?token=%s", c.baseURL, token)

	textBody := fmt.Sprintf("%s has invited you to join %s.\n\nAccept the invitation:\n\n%s\n\nThis invitation expires in 7 days.", inviterName, teamName, link)
	htmlBody := fmt.Sprintf(
		`<p>%s has invited you to join <strong>%s</strong>.</p><p><a href="%s">Accept the invitation</a></p><p>This invitation expires in 7 days.</p>`,
		inviterName, teamName, link,
	)

	return c.send(toEmail, subject, htmlBody, textBody)
}

func (c *Client) send(toEmail, subject, htmlBody, textBody string) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	payload := postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequest("POST", "https://api.postmarkapp.com/email", bytes.NewReader(body))
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
