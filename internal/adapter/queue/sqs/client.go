// Package sqs implements the Queue Client port over Amazon SQS, wrapping
// every call through the Retry Engine.
package sqs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/NethermindEth/zksync-contract-worker/internal/domain"
	"github.com/NethermindEth/zksync-contract-worker/internal/retry"
)

// waitTimeSeconds is the long-poll duration; 20s is SQS's maximum and
// minimizes empty-receive round trips.
const waitTimeSeconds = 20

// Client is the reliable Queue Client.
type Client struct {
	sdk      *sqs.Client
	queueURL string
	engine   *retry.Engine
}

// New wraps sdk for queueURL, starting its own Retry Engine.
func New(sdk *sqs.Client, queueURL string, log *slog.Logger) *Client {
	return &Client{sdk: sdk, queueURL: queueURL, engine: retry.New("queue", log)}
}

// Close stops the underlying Retry Engine.
func (c *Client) Close() { c.engine.Close() }

// State reports whether the underlying Retry Engine is connected or
// currently reconnecting.
func (c *Client) State() retry.State { return c.engine.State() }

var _ domain.QueueClient = (*Client)(nil)

// Receive long-polls for up to maxMessages queued jobs, parsing each body
// into a domain.QueueMessage. A poison message — missing body, or a body
// that fails to deserialize — is acked and dropped right here rather than
// handed to a caller that has no better way to recover from it: the queue
// guarantees at-least-once delivery, and a message this client can never
// parse will never become parseable on redelivery either.
func (c *Client) Receive(ctx context.Context, maxMessages int32) ([]domain.QueueMessageEnvelope, error) {
	tracer := otel.Tracer("queue")
	ctx, span := tracer.Start(ctx, "queue.Receive")
	defer span.End()
	span.SetAttributes(attribute.Int64("queue.max_messages", int64(maxMessages)))

	envelopes, err := retry.Do(ctx, c.engine, retry.Classify, func(ctx context.Context) ([]domain.QueueMessageEnvelope, error) {
		out, err := c.sdk.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            &c.queueURL,
			MaxNumberOfMessages: maxMessages,
			WaitTimeSeconds:     waitTimeSeconds,
		})
		if err != nil {
			return nil, fmt.Errorf("op=queue.receive: %w", err)
		}

		envelopes := make([]domain.QueueMessageEnvelope, 0, len(out.Messages))
		for _, m := range out.Messages {
			if m.ReceiptHandle == nil {
				continue
			}
			env, err := decodeMessage(m)
			if err != nil {
				if _, delErr := c.sdk.DeleteMessage(ctx, &sqs.DeleteMessageInput{
					QueueUrl:      &c.queueURL,
					ReceiptHandle: m.ReceiptHandle,
				}); delErr != nil {
					return nil, fmt.Errorf("op=queue.ack_poison_message: %w", delErr)
				}
				continue
			}
			envelopes = append(envelopes, env)
		}
		return envelopes, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("queue.received", len(envelopes)))
	return envelopes, nil
}

// Delete acknowledges a message so it is not redelivered. Best-effort from
// the caller's perspective per §4.2: a failed delete merely causes a benign
// redelivery filtered out by the Pending -> InProgress check.
func (c *Client) Delete(ctx context.Context, receiptHandle string) error {
	tracer := otel.Tracer("queue")
	ctx, span := tracer.Start(ctx, "queue.Delete")
	defer span.End()

	_, err := retry.Do(ctx, c.engine, retry.Classify, func(ctx context.Context) (struct{}, error) {
		_, err := c.sdk.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      &c.queueURL,
			ReceiptHandle: &receiptHandle,
		})
		if err != nil {
			return struct{}{}, fmt.Errorf("op=queue.delete: %w", err)
		}
		return struct{}{}, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func decodeMessage(m types.Message) (domain.QueueMessageEnvelope, error) {
	if m.Body == nil || m.ReceiptHandle == nil {
		return domain.QueueMessageEnvelope{}, fmt.Errorf("message missing body or receipt handle")
	}
	var msg domain.QueueMessage
	if err := json.Unmarshal([]byte(*m.Body), &msg); err != nil {
		return domain.QueueMessageEnvelope{}, fmt.Errorf("decode message body: %w", err)
	}
	return domain.QueueMessageEnvelope{Message: msg, ReceiptHandle: *m.ReceiptHandle}, nil
}
