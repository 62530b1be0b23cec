// Package notify sends review-queue emails when the optimizer parks
// proposals for a human decision. Delivery goes through SES; the bodies
// are Liquid templates so the ops team can read them without tooling.
package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/osteele/liquid"

	appconfig "github.com/ignite/campaign-optimizer/internal/config"
	"github.com/ignite/campaign-optimizer/internal/domain"
)

const pendingSubjectTemplate = `[optimizer] {{ count }} proposal(s) awaiting review for {{ campaign_name }}`

const pendingBodyTemplate = `The optimizer queued {{ count }} proposal(s) for campaign "{{ campaign_name }}" that need a human decision.

{% for p in proposals -%}
- {{ p.action_type }} (confidence {{ p.confidence | percent }}): {{ p.reasoning }}
{% endfor %}
Review them at {{ review_url }}.
`

// Notifier sends review notifications through SES v2.
type Notifier struct {
	client *sesv2.Client
	engine *liquid.Engine
	cfg    appconfig.NotificationsConfig
}

// New creates a Notifier. Returns nil with no error when notifications
// are disabled, so callers can treat the nil receiver as a no-op.
func New(ctx context.Context, cfg appconfig.NotificationsConfig) (*Notifier, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &Notifier{
		client: sesv2.NewFromConfig(awsCfg),
		engine: newEngine(),
		cfg:    cfg,
	}, nil
}

func newEngine() *liquid.Engine {
	engine := liquid.NewEngine()

	// {{ 1234.5 | currency }} -> $1234.50
	engine.RegisterFilter("currency", func(value interface{}) string {
		f, ok := toFloat(value)
		if !ok {
			return fmt.Sprintf("%v", value)
		}
		return fmt.Sprintf("$%.2f", f)
	})

	// {{ 0.87 | percent }} -> 87.0%
	engine.RegisterFilter("percent", func(value interface{}) string {
		f, ok := toFloat(value)
		if !ok {
			return fmt.Sprintf("%v", value)
		}
		return fmt.Sprintf("%.1f%%", f*100)
	})

	return engine
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// NotifyPendingProposals emails the review queue for one campaign. A nil
// receiver (notifications disabled) is a no-op.
func (n *Notifier) NotifyPendingProposals(ctx context.Context, c *domain.Campaign, proposals []domain.OptimizationProposal) error {
	if n == nil || len(proposals) == 0 {
		return nil
	}
	if len(n.cfg.ToEmails) == 0 {
		return nil
	}

	rows := make([]map[string]interface{}, 0, len(proposals))
	for _, p := range proposals {
		rows = append(rows, map[string]interface{}{
			"action_type": p.ActionType,
			"confidence":  p.Confidence,
			"reasoning":   p.Reasoning,
		})
	}
	bindings := map[string]interface{}{
		"count":         len(proposals),
		"campaign_name": c.Name,
		"proposals":     rows,
		"review_url":    fmt.Sprintf("/api/optimization/campaigns/%s/proposals?status=pending", c.ID),
	}

	subject, err := n.engine.ParseAndRenderString(pendingSubjectTemplate, bindings)
	if err != nil {
		return fmt.Errorf("render subject: %w", err)
	}
	body, err := n.engine.ParseAndRenderString(pendingBodyTemplate, bindings)
	if err != nil {
		return fmt.Errorf("render body: %w", err)
	}

	_, sendErr := n.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.cfg.FromEmail),
		Destination: &types.Destination{
			ToAddresses: n.cfg.ToEmails,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body)},
				},
			},
		},
	})
	if sendErr != nil {
		return fmt.Errorf("send email: %w", sendErr)
	}

	log.Printf("[notify.Notifier] campaign %s: notified %d recipient(s) about %d pending proposal(s)",
		c.ID, len(n.cfg.ToEmails), len(proposals))
	return nil
}
