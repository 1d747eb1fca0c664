package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/example/agrimarket/internal/event"
)

// DynamoJournal keeps an append-only copy of every published event in
// DynamoDB. With Kinesis integration enabled on the table, appended
// events are streamed to the Lambda notifier without Kafka.
type DynamoJournal struct {
	client    *dynamodb.Client
	tableName string
}

// journalItem is the DynamoDB item structure
type journalItem struct {
	OrderID   string `dynamodbav:"order_id"`
	SortKey   string `dynamodbav:"sort_key"` // timestamp#event-id, orders events per order
	ID        string `dynamodbav:"id"`
	EventType string `dynamodbav:"event_type"`
	Data      string `dynamodbav:"data"`
	CreatedAt string `dynamodbav:"created_at"`
}

func NewDynamoJournal(client *dynamodb.Client, tableName string) *DynamoJournal {
	return &DynamoJournal{client: client, tableName: tableName}
}

// NewDynamoJournalFromEnv builds a journal with the default AWS config chain
func NewDynamoJournalFromEnv(ctx context.Context, tableName string) (*DynamoJournal, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewDynamoJournal(dynamodb.NewFromConfig(cfg), tableName), nil
}

// Publish implements event.Publisher
func (j *DynamoJournal) Publish(ctx context.Context, e event.Event) error {
	item := journalItem{
		OrderID:   e.OrderID,
		SortKey:   e.Timestamp.Format(time.RFC3339Nano) + "#" + e.ID,
		ID:        e.ID,
		EventType: e.Type,
		Data:      string(e.Data),
		CreatedAt: e.Timestamp.Format(time.RFC3339Nano),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = j.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(j.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(order_id) AND attribute_not_exists(sort_key)"),
	})
	if err != nil {
		return fmt.Errorf("failed to put event: %w", err)
	}
	return nil
}

// ListByOrder returns the journaled events for one order, oldest first
func (j *DynamoJournal) ListByOrder(ctx context.Context, orderID string) ([]event.Event, error) {
	result, err := j.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(j.tableName),
		KeyConditionExpression: aws.String("order_id = :oid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":oid": &types.AttributeValueMemberS{Value: orderID},
		},
		ScanIndexForward: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}

	events := make([]event.Event, 0, len(result.Items))
	for _, raw := range result.Items {
		var item journalItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
		if err != nil {
			return nil, err
		}
		events = append(events, event.Event{
			ID:        item.ID,
			Type:      item.EventType,
			OrderID:   item.OrderID,
			Data:      []byte(item.Data),
			Timestamp: ts,
		})
	}
	return events, nil
}
