package db

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/spacesedan/sentiment-aura/internal/models"
)

const (
	ANALYSIS_RESULTS_TABLE_NAME = "AnalysisResults"

	maxBatchSize   = 25
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
	recordTTL      = 24 * time.Hour
)

// BatchWriter is the subset of *dynamodb.Client the analysis store needs.
type BatchWriter interface {
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

type AnalysisStore struct {
	client  BatchWriter
	table   string
	backoff time.Duration
	now     func() time.Time
}

func NewAnalysisStore(client BatchWriter, table string) *AnalysisStore {
	if table == "" {
		table = ANALYSIS_RESULTS_TABLE_NAME
	}
	return &AnalysisStore{
		client:  client,
		table:   table,
		backoff: initialBackoff,
		now:     time.Now,
	}
}

func (s *AnalysisStore) Name() string { return "dynamodb" }

// Write stores records in chunks of 25, retrying unprocessed items with a doubling backoff.
func (s *AnalysisStore) Write(ctx context.Context, records []models.AnalysisRecord) error {
	expiresAt := s.now().Add(recordTTL).Unix()

	for i := 0; i < len(records); i += maxBatchSize {
		select {
		case <-ctx.Done():
			slog.Warn("[DynamoDB] context canceled")
			return ctx.Err()
		default:
		}

		end := min(i+maxBatchSize, len(records))

		writeRequests := make([]types.WriteRequest, 0, end-i)
		for _, rec := range records[i:end] {
			item, err := RecordToDynamoDBItem(rec, expiresAt)
			if err != nil {
				return err
			}
			writeRequests = append(writeRequests, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: item},
			})
		}

		if err := s.writeChunk(ctx, writeRequests); err != nil {
			return err
		}
	}

	slog.Debug("[DynamoDB] Successfully stored analysis records",
		slog.Int("count", len(records)))
	return nil
}

func (s *AnalysisStore) writeChunk(ctx context.Context, writeRequests []types.WriteRequest) error {
	out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{
			s.table: writeRequests,
		},
	})
	if err != nil {
		return fmt.Errorf("[DynamoDB] Failed to batch write analysis records: %w", err)
	}

	retryCount := 0
	backoff := s.backoff
	for len(out.UnprocessedItems) > 0 && retryCount < maxRetries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2

		slog.Warn("[DynamoDB] Retrying unprocessed items...",
			slog.Int("attempt", retryCount+1),
			slog.Int("remaining", len(out.UnprocessedItems[s.table])))

		out, err = s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: out.UnprocessedItems,
		})
		if err != nil {
			return fmt.Errorf("[DynamoDB] Retry error: %w", err)
		}
		retryCount++
	}

	if remaining := len(out.UnprocessedItems[s.table]); remaining > 0 {
		return fmt.Errorf("[DynamoDB] %d items were not written after %d retries", remaining, maxRetries)
	}
	return nil
}

func RecordToDynamoDBItem(rec models.AnalysisRecord, expiresAt int64) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("[DynamoDB] Failed to marshal record %s: %w", rec.ID, err)
	}

	item["created_at"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.CreatedAt.Unix(), 10)}
	item["ttl"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt, 10)}
	return item, nil
}
