package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
)

type postmarkClient struct {
	client *postmark.Client
	from   string
	reply  string
}

// NewPostmarkClient creates a sender backed by the Postmark API.
func NewPostmarkClient(cfg Config) (EmailSender, error) {
	checks := []struct {
		value string
		name  string
		email bool
	}{
		{cfg.PostmarkServerToken, "PostmarkServerToken", false},
		{cfg.PostmarkAccountToken, "PostmarkAccountToken", false},
		{cfg.SenderEmail, "SenderEmail", true},
		{cfg.SupportEmail, "SupportEmail", true},
	}
	for _, c := range checks {
		if c.value == "" {
			return nil, fmt.Errorf("%w: %s is required", ErrInvalidConfig, c.name)
		}
		if c.email && !emailRegex.MatchString(c.value) {
			return nil, fmt.Errorf("%w: %s must be a valid email address", ErrInvalidConfig, c.name)
		}
	}

	return &postmarkClient{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		from:   cfg.SenderEmail,
		reply:  cfg.SupportEmail,
	}, nil
}

// SendEmail sends the message with open and HTML link tracking.
// Replies go to the support address.
func (c *postmarkClient) SendEmail(ctx context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}

	resp, err := c.client.SendEmail(ctx, postmark.Email{
		From:       c.from,
		ReplyTo:    c.reply,
		To:         params.SendTo,
		Subject:    params.Subject,
		Tag:        params.Tag,
		HTMLBody:   params.BodyHTML,
		TextBody:   params.BodyText,
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	})
	if err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrFailedToSendEmail,
			fmt.Errorf("postmark error %d: %s", resp.ErrorCode, resp.Message))
	}
	return nil
}
