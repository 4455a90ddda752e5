package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the part of the SQS client used here.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
}

// SQSProducer sends messages to a single queue.
type SQSProducer struct {
	client   SQSAPI
	queueURL string
}

// NewSQSProducer creates a producer for queueURL.
func NewSQSProducer(cfg aws.Config, queueURL string) *SQSProducer {
	return NewSQSProducerWithAPI(sqs.NewFromConfig(cfg), queueURL)
}

// NewSQSProducerWithAPI wraps an existing SQS transport.
func NewSQSProducerWithAPI(client SQSAPI, queueURL string) *SQSProducer {
	return &SQSProducer{client: client, queueURL: queueURL}
}

// ResolveQueueURL looks up the URL of a queue by name.
func ResolveQueueURL(ctx context.Context, client SQSAPI, queueName string) (string, error) {
	result, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: &queueName,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get queue URL: %w", err)
	}
	return aws.ToString(result.QueueUrl), nil
}

// SendMessage sends a single message with optional String attributes.
func (p *SQSProducer) SendMessage(ctx context.Context, body string, attributes map[string]string) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    &p.queueURL,
		MessageBody: &body,
	}
	if len(attributes) > 0 {
		input.MessageAttributes = make(map[string]types.MessageAttributeValue, len(attributes))
		for k, v := range attributes {
			input.MessageAttributes[k] = types.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(v),
			}
		}
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}
