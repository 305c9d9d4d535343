package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrymomot/studyhub/pkg/email/templates"
	"github.com/dmitrymomot/studyhub/pkg/subscription"
)

// PaymentFailedTag labels dunning emails in Postmark.
const PaymentFailedTag = "payment-failed"

// PaymentFailedNotifier implements subscription.Notifier with an email.
type PaymentFailedNotifier struct {
	sender     EmailSender
	billingURL string
	support    string
}

// NewPaymentFailedNotifier creates the notifier. billingURL and support are
// optional and shown in the email when set.
func NewPaymentFailedNotifier(sender EmailSender, billingURL, support string) *PaymentFailedNotifier {
	if sender == nil {
		panic("email: sender is required")
	}
	return &PaymentFailedNotifier{sender: sender, billingURL: billingURL, support: support}
}

// PaymentFailed emails the profile owner. Profiles without an address are
// skipped.
func (n *PaymentFailedNotifier) PaymentFailed(ctx context.Context, p *subscription.Profile) error {
	if p == nil || strings.TrimSpace(p.Email) == "" {
		return nil
	}

	body, err := templates.Render(ctx, templates.PaymentFailed(templates.PaymentFailedData{
		Plan:       string(p.Tier),
		BillingURL: n.billingURL,
		Support:    n.support,
	}))
	if err != nil {
		return fmt.Errorf("render payment failed email: %w", err)
	}

	return n.sender.SendEmail(ctx, SendEmailParams{
		SendTo:   p.Email,
		Subject:  "Action needed: your StudyHub payment failed",
		BodyHTML: body,
		Tag:      PaymentFailedTag,
	})
}

var _ subscription.Notifier = (*PaymentFailedNotifier)(nil)
