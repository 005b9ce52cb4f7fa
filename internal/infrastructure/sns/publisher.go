package sns

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/federicoroldos/sofull-site/internal/config"
)

// OutcomePublisher pushes dispatch outcomes to an SNS topic for downstream
// analytics. Publishing is strictly best-effort.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, outcome Outcome) error
}

// Outcome is the published payload.
type Outcome struct {
	UserID      string `json:"user_id"`
	SentWelcome bool   `json:"sent_welcome"`
	SentLogin   bool   `json:"sent_login"`
	Skipped     bool   `json:"skipped"`
	Country     string `json:"country,omitempty"`
	OccurredAt  int64  `json:"occurred_at_ms"`
}

type publisher struct {
	client   *sns.Client
	topicARN string
}

func NewPublisher(cfg *config.Config) (OutcomePublisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		return nil, err
	}
	return &publisher{client: sns.NewFromConfig(awsCfg), topicARN: cfg.OutcomeTopicARN}, nil
}

func (p *publisher) PublishOutcome(ctx context.Context, outcome Outcome) error {
	body, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	msg := string(body)
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  &msg,
	})
	return err
}
