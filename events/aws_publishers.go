package events

import (
	"context"
	"fmt"

	awspkg "storefront-service/pkg/aws"
)

// SNSPublisher fans events out through an SNS topic.
type SNSPublisher struct {
	client   awspkg.SNSPublisher
	topicArn string
}

func NewSNSPublisher(client awspkg.SNSPublisher, topicArn string) *SNSPublisher {
	return &SNSPublisher{client: client, topicArn: topicArn}
}

func (p *SNSPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := evt.payload()
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", evt.Type, err)
	}
	return p.client.Publish(ctx, p.topicArn, body, evt.attributes())
}

func (p *SNSPublisher) Close() error { return nil }

// MessageSender is satisfied by awspkg.SQSProducer.
type MessageSender interface {
	SendMessage(ctx context.Context, body string, attributes map[string]string) error
}

// SQSPublisher queues events on an SQS queue.
type SQSPublisher struct {
	sender MessageSender
}

func NewSQSPublisher(sender MessageSender) *SQSPublisher {
	return &SQSPublisher{sender: sender}
}

func (p *SQSPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := evt.payload()
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", evt.Type, err)
	}
	return p.sender.SendMessage(ctx, string(body), evt.attributes())
}

func (p *SQSPublisher) Close() error { return nil }
