// Package email sends transactional mail through the Resend HTTP API.
package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

type ResendService struct {
	apiKey    string
	fromEmail string
	baseURL   string
	client    *http.Client
}

type EmailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type EmailResponse struct {
	ID string `json:"id"`
}

// NewResendService builds a mailer. With an empty API key the service is
// nil and every send becomes a logged no-op, which keeps local development
// working without credentials.
func NewResendService(apiKey, fromAddress string) *ResendService {
	if apiKey == "" {
		return nil
	}
	if fromAddress == "" {
		fromAddress = "Kasupel <noreply@kasupel.io>"
	}
	return &ResendService{
		apiKey:    apiKey,
		fromEmail: fromAddress,
		baseURL:   "https://api.resend.com",
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *ResendService) SendEmail(to, subject, html string) error {
	if s == nil {
		log.Printf("Email service not configured, skipping mail to %s (%s)", to, subject)
		return nil
	}

	reqBody := EmailRequest{
		From:    s.fromEmail,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal email request: %w", err)
	}

	req, err := http.NewRequest("POST", s.baseURL+"/emails", bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		log.Printf("Email API error: status %d, body: %s", resp.StatusCode, string(body))
		return fmt.Errorf("email API returned status %d", resp.StatusCode)
	}

	log.Printf("Email sent successfully to %s", to)
	return nil
}

// SendVerificationEmail mails the account verification code. The code is
// entered in the client rather than followed as a link.
func (s *ResendService) SendVerificationEmail(to, username, token string) error {
	html := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif; background-color: #1a1a2e; color: #ffffff; margin: 0; padding: 40px 20px;">
    <div style="max-width: 600px; margin: 0 auto; background: #16213e; border: 1px solid rgba(100, 150, 255, 0.3); border-radius: 16px; padding: 40px;">
        <div style="text-align: center; margin-bottom: 30px;">
            <h1 style="color: #ffffff; margin: 0; font-size: 28px;">&#9812; Kasupel &#9818;</h1>
        </div>

        <h2 style="color: #ffffff; margin-bottom: 20px;">Verify Your Email</h2>

        <p style="color: rgba(255, 255, 255, 0.8); line-height: 1.6;">
            Hi %s,
        </p>

        <p style="color: rgba(255, 255, 255, 0.8); line-height: 1.6;">
            Thanks for signing up for Kasupel! Enter this code in the app to verify your email address:
        </p>

        <div style="text-align: center; margin: 30px 0;">
            <span style="display: inline-block; background: #0f3460; color: white; padding: 14px 32px; border-radius: 8px; font-weight: 600; font-size: 24px; letter-spacing: 6px;">%s</span>
        </div>

        <p style="color: rgba(255, 255, 255, 0.6); font-size: 14px; line-height: 1.6;">
            If you didn't create an account on Kasupel, you can safely ignore this email.
        </p>
    </div>
</body>
</html>
`, username, token)

	return s.SendEmail(to, "Verify your Kasupel account", html)
}
