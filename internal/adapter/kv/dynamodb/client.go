// Package dynamodb implements the KV Client port over Amazon DynamoDB,
// wrapping every call through the Retry Engine.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/NethermindEth/zksync-contract-worker/internal/domain"
	"github.com/NethermindEth/zksync-contract-worker/internal/retry"
)

const (
	primaryKeyName   = "ID"
	statusAttribute  = "Status"
	createdAttribute = "CreatedAt"
	dataAttribute    = "Data"
	scanPageSize     = 100
)

// Client is the reliable KV Client.
type Client struct {
	sdk       *dynamodb.Client
	tableName string
	engine    *retry.Engine
}

// New wraps sdk for tableName, starting its own Retry Engine.
func New(sdk *dynamodb.Client, tableName string, log *slog.Logger) *Client {
	return &Client{sdk: sdk, tableName: tableName, engine: retry.New("kv", log)}
}

// Close stops the underlying Retry Engine.
func (c *Client) Close() { c.engine.Close() }

// State reports whether the underlying Retry Engine is connected or
// currently reconnecting.
func (c *Client) State() retry.State { return c.engine.State() }

var _ domain.KVClient = (*Client)(nil)

// Get fetches a job record, returning domain.ErrNotFound if absent.
func (c *Client) Get(ctx context.Context, id domain.JobID) (domain.Record, error) {
	tracer := otel.Tracer("kv")
	ctx, span := tracer.Start(ctx, "kv.Get")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id.String()))

	rec, err := retry.Do(ctx, c.engine, classify, func(ctx context.Context) (domain.Record, error) {
		out, err := c.sdk.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: &c.tableName,
			Key: map[string]types.AttributeValue{
				primaryKeyName: &types.AttributeValueMemberS{Value: id.String()},
			},
		})
		if err != nil {
			return domain.Record{}, fmt.Errorf("op=kv.get: %w", err)
		}
		if out.Item == nil {
			return domain.Record{}, domain.ErrNotFound
		}
		rec, err := decodeRecord(out.Item)
		if err != nil {
			return domain.Record{}, fmt.Errorf("op=kv.get.decode: %w", err)
		}
		return rec, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return rec, err
}

// UpdateStatusConditional performs the sole cross-worker coordination
// point, an atomic compare-and-set on the Status attribute.
func (c *Client) UpdateStatusConditional(ctx context.Context, id domain.JobID, from, to domain.Status) error {
	tracer := otel.Tracer("kv")
	ctx, span := tracer.Start(ctx, "kv.UpdateStatusConditional")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", id.String()),
		attribute.String("kv.from_status", from.String()),
		attribute.String("kv.to_status", to.String()),
	)

	_, err := retry.Do(ctx, c.engine, classify, func(ctx context.Context) (struct{}, error) {
		_, err := c.sdk.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: &c.tableName,
			Key: map[string]types.AttributeValue{
				primaryKeyName: &types.AttributeValueMemberS{Value: id.String()},
			},
			UpdateExpression:    strPtr("SET #status = :toStatus"),
			ConditionExpression: strPtr("#status = :fromStatus"),
			ExpressionAttributeNames: map[string]string{
				"#status": statusAttribute,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":toStatus":   &types.AttributeValueMemberN{Value: itoa(int(to))},
				":fromStatus": &types.AttributeValueMemberN{Value: itoa(int(from))},
			},
		})
		if err != nil {
			var condErr *types.ConditionalCheckFailedException
			if errors.As(err, &condErr) {
				return struct{}{}, domain.ErrConditionalCheckFailed
			}
			return struct{}{}, fmt.Errorf("op=kv.update_status_conditional: %w", err)
		}
		return struct{}{}, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// Complete writes the terminal Done status together with its TaskResult
// payload, unconditionally (matching on_compilation_success/failed, which
// do not re-check the current status before writing the terminal record).
func (c *Client) Complete(ctx context.Context, id domain.JobID, result domain.TaskResult) error {
	tracer := otel.Tracer("kv")
	ctx, span := tracer.Start(ctx, "kv.Complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", id.String()),
		attribute.Bool("kv.success", result.IsSuccess()),
	)

	dataAV, err := encodeTaskResult(result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("op=kv.complete.encode: %w", err)
	}

	_, err = retry.Do(ctx, c.engine, classify, func(ctx context.Context) (struct{}, error) {
		_, err := c.sdk.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: &c.tableName,
			Key: map[string]types.AttributeValue{
				primaryKeyName: &types.AttributeValueMemberS{Value: id.String()},
			},
			UpdateExpression: strPtr("SET #status = :newStatus, #data = :data"),
			ExpressionAttributeNames: map[string]string{
				"#status": statusAttribute,
				"#data":   dataAttribute,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":newStatus": &types.AttributeValueMemberN{Value: itoa(int(domain.StatusDone))},
				":data":      dataAV,
			},
		})
		if err != nil {
			return struct{}{}, fmt.Errorf("op=kv.complete: %w", err)
		}
		return struct{}{}, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// Delete removes a job record unconditionally.
func (c *Client) Delete(ctx context.Context, id domain.JobID) error {
	tracer := otel.Tracer("kv")
	ctx, span := tracer.Start(ctx, "kv.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id.String()))

	_, err := retry.Do(ctx, c.engine, classify, func(ctx context.Context) (struct{}, error) {
		_, err := c.sdk.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: &c.tableName,
			Key: map[string]types.AttributeValue{
				primaryKeyName: &types.AttributeValueMemberS{Value: id.String()},
			},
		})
		if err != nil {
			return struct{}{}, fmt.Errorf("op=kv.delete: %w", err)
		}
		return struct{}{}, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// ScanPriorTo pages through records created at or before cutoff, fixed page
// size 100, for Purgatory's bootstrap scan.
func (c *Client) ScanPriorTo(ctx context.Context, cutoff time.Time, cursor string) ([]domain.Record, string, error) {
	tracer := otel.Tracer("kv")
	ctx, span := tracer.Start(ctx, "kv.ScanPriorTo")
	defer span.End()

	type page struct {
		items      []domain.Record
		nextCursor string
	}

	var startKey map[string]types.AttributeValue
	if cursor != "" {
		var err error
		startKey, err = decodeCursor(cursor)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, "", fmt.Errorf("op=kv.scan_prior_to.cursor: %w", err)
		}
	}

	result, err := retry.Do(ctx, c.engine, classify, func(ctx context.Context) (page, error) {
		limit := int32(scanPageSize)
		out, err := c.sdk.Scan(ctx, &dynamodb.ScanInput{
			TableName:          &c.tableName,
			FilterExpression:   strPtr("CreatedAt <= :created_at"),
			Limit:              &limit,
			ExclusiveStartKey:  startKey,
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":created_at": &types.AttributeValueMemberS{Value: cutoff.Format(time.RFC3339)},
			},
		})
		if err != nil {
			return page{}, fmt.Errorf("op=kv.scan_prior_to: %w", err)
		}

		items := make([]domain.Record, 0, len(out.Items))
		for _, raw := range out.Items {
			rec, err := decodeRecord(raw)
			if err != nil {
				return page{}, fmt.Errorf("op=kv.scan_prior_to.decode: %w", err)
			}
			items = append(items, rec)
		}

		next := ""
		if len(out.LastEvaluatedKey) > 0 {
			next, err = encodeCursor(out.LastEvaluatedKey)
			if err != nil {
				return page{}, fmt.Errorf("op=kv.scan_prior_to.cursor_encode: %w", err)
			}
		}
		return page{items: items, nextCursor: next}, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, "", err
	}
	span.SetAttributes(attribute.Int("kv.scanned", len(result.items)))
	return result.items, result.nextCursor, nil
}

func classify(err error) retry.Disposition {
	if errors.Is(err, domain.ErrConditionalCheckFailed) || errors.Is(err, domain.ErrNotFound) {
		return retry.Permanent
	}
	return retry.Classify(err)
}

func strPtr(s string) *string { return &s }
func itoa(n int) string       { return fmt.Sprintf("%d", n) }

// decodeCursor/encodeCursor round-trip DynamoDB's LastEvaluatedKey through
// attributevalue into an opaque string cursor callers can pass back in.
func encodeCursor(key map[string]types.AttributeValue) (string, error) {
	var plain map[string]interface{}
	if err := attributevalue.UnmarshalMap(key, &plain); err != nil {
		return "", err
	}
	return fmt.Sprintf("%v", plain[primaryKeyName]), nil
}

func decodeCursor(cursor string) (map[string]types.AttributeValue, error) {
	return map[string]types.AttributeValue{
		primaryKeyName: &types.AttributeValueMemberS{Value: cursor},
	}, nil
}
