package email

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// DevSender writes each email to dir as an HTML body plus a JSON envelope.
type DevSender struct {
	dir string
	now func() time.Time
}

// NewDevSender creates a sender for local development. dir is created on
// first send.
func NewDevSender(dir string) *DevSender {
	return &DevSender{dir: dir, now: time.Now}
}

type devEnvelope struct {
	SentAt  time.Time `json:"sent_at"`
	SendTo  string    `json:"send_to"`
	Subject string    `json:"subject"`
	Tag     string    `json:"tag,omitempty"`
	Text    string    `json:"body_text,omitempty"`
}

// SendEmail implements EmailSender.
func (d *DevSender) SendEmail(_ context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("%w: failed to create directory: %v", ErrFailedToSendEmail, err)
	}

	now := d.now()
	name := params.Tag
	if name == "" {
		name = params.Subject
	}
	base := filepath.Join(d.dir, now.Format("20060102_150405.000000")+"_"+sanitizeFilename(name))

	if err := os.WriteFile(base+".html", []byte(params.BodyHTML), 0o644); err != nil {
		return fmt.Errorf("%w: failed to write body: %v", ErrFailedToSendEmail, err)
	}

	envelope, err := json.MarshalIndent(devEnvelope{
		SentAt:  now.UTC(),
		SendTo:  params.SendTo,
		Subject: params.Subject,
		Tag:     params.Tag,
		Text:    params.BodyText,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to encode envelope: %v", ErrFailedToSendEmail, err)
	}
	if err := os.WriteFile(base+".json", envelope, 0o644); err != nil {
		return fmt.Errorf("%w: failed to write envelope: %v", ErrFailedToSendEmail, err)
	}
	return nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-z0-9\-_.]`)

func sanitizeFilename(s string) string {
	s = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "_"))
	s = unsafeFilenameChars.ReplaceAllString(s, "")
	if len(s) > 80 {
		s = s[:80]
	}
	if s == "" {
		return "email"
	}
	return s
}
