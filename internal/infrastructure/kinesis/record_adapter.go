package kinesis

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/example/agrimarket/internal/event"
)

// ConvertFromKinesisRecord converts a Kinesis record (DynamoDB Streams
// format) back into an event envelope. The DynamoDB Kinesis integration
// on the journal table sends records in DynamoDB Streams format.
func ConvertFromKinesisRecord(record events.KinesisEventRecord) (*event.Event, error) {
	var streamRecord events.DynamoDBEventRecord
	if err := json.Unmarshal(record.Kinesis.Data, &streamRecord); err != nil {
		return nil, fmt.Errorf("failed to unmarshal DynamoDB record: %w", err)
	}

	// Only new journal entries matter; updates/deletes never happen
	if streamRecord.EventName != "INSERT" {
		return nil, nil
	}

	return convertDynamoDBImage(streamRecord.Change.NewImage)
}

// ConvertFromDynamoDBStreamRecord converts a DynamoDB Stream record
// directly, for consumers wired to the stream without Kinesis.
func ConvertFromDynamoDBStreamRecord(record events.DynamoDBEventRecord) (*event.Event, error) {
	if record.EventName != "INSERT" {
		return nil, nil
	}

	return convertDynamoDBImage(record.Change.NewImage)
}

// convertDynamoDBImage extracts the envelope from DynamoDB attribute values
func convertDynamoDBImage(image map[string]events.DynamoDBAttributeValue) (*event.Event, error) {
	if image == nil {
		return nil, fmt.Errorf("DynamoDB image is nil")
	}

	e := &event.Event{}

	if v, ok := image["id"]; ok {
		e.ID = v.String()
	}
	if v, ok := image["order_id"]; ok {
		e.OrderID = v.String()
	}
	if v, ok := image["event_type"]; ok {
		e.Type = v.String()
	}
	if v, ok := image["data"]; ok {
		e.Data = json.RawMessage(v.String())
	}
	if v, ok := image["created_at"]; ok {
		t, err := time.Parse(time.RFC3339Nano, v.String())
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		e.Timestamp = t
	}

	if e.ID == "" || e.OrderID == "" || e.Type == "" {
		return nil, fmt.Errorf("missing required fields: id=%s, order_id=%s, event_type=%s",
			e.ID, e.OrderID, e.Type)
	}

	return e, nil
}

// BatchConvertFromKinesisEvent converts every record of a Kinesis event.
// Returns successfully converted envelopes and any errors encountered.
func BatchConvertFromKinesisEvent(kinesisEvent events.KinesisEvent) ([]*event.Event, []error) {
	var eventList []*event.Event
	var errs []error

	for _, record := range kinesisEvent.Records {
		e, err := ConvertFromKinesisRecord(record)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if e != nil {
			eventList = append(eventList, e)
		}
	}

	return eventList, errs
}
