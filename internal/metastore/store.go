package metastore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/trunov/mediaforge/internal/s3store"
	"github.com/trunov/mediaforge/internal/transcoder"
)

// ErrMissingOwner is returned when a call arrives without a partition key.
var ErrMissingOwner = errors.New("owner is required")

// Processing status markers. PENDING_* is written best-effort at submission
// time; the worker overwrites with DONE. Last writer wins, there is no
// conditional update on this table.
const (
	StatusDone           = "DONE"
	StatusPendingInspect = "PENDING_INSPECT"
	StatusPendingThumb   = "PENDING_THUMB"
	StatusPendingPreview = "PENDING_PREVIEW"
)

// Record is the per-item document. Partition key owner, sort key item_id.
type Record struct {
	Owner      string                  `dynamodbav:"owner" json:"owner"`
	ItemID     string                  `dynamodbav:"item_id" json:"item_id"`
	SourceKey  string                  `dynamodbav:"source_key,omitempty" json:"source_key,omitempty"`
	ThumbKey   string                  `dynamodbav:"thumb_key,omitempty" json:"thumb_key,omitempty"`
	PreviewKey string                  `dynamodbav:"preview_key,omitempty" json:"preview_key,omitempty"`
	Status     string                  `dynamodbav:"status,omitempty" json:"status,omitempty"`
	Meta       *transcoder.ProbeResult `dynamodbav:"meta,omitempty" json:"meta,omitempty"`
	Basic      *s3store.ObjectInfo     `dynamodbav:"basic,omitempty" json:"basic,omitempty"`
	UpdatedAt  string                  `dynamodbav:"updated_at,omitempty" json:"updated_at,omitempty"`
}

type Store struct {
	client *dynamodb.Client
	table  string
}

func New(client *dynamodb.Client, table string) *Store {
	return &Store{client: client, table: table}
}

// Put upserts a record, stamping updated_at.
func (s *Store) Put(ctx context.Context, rec Record) error {
	if rec.Owner == "" {
		return ErrMissingOwner
	}
	if rec.ItemID == "" {
		return errors.New("item_id is required")
	}
	rec.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put item %s/%s: %w", rec.Owner, rec.ItemID, err)
	}
	return nil
}

type cursor struct {
	Owner  string `json:"owner"`
	ItemID string `json:"item_id"`
}

// Query lists records for one owner. The returned cursor, when non-empty,
// resumes the scan from where this page stopped.
func (s *Store) Query(ctx context.Context, owner string, limit int32, cursorStr string) ([]Record, string, error) {
	if owner == "" {
		return nil, "", ErrMissingOwner
	}
	if limit <= 0 {
		limit = 20
	}

	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": "owner",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: owner},
		},
		Limit: aws.Int32(limit),
	}

	if cursorStr != "" {
		start, err := decodeCursor(cursorStr)
		if err != nil {
			return nil, "", fmt.Errorf("bad cursor: %w", err)
		}
		input.ExclusiveStartKey = start
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("query %s: %w", owner, err)
	}

	records := make([]Record, 0, len(out.Items))
	for _, item := range out.Items {
		var rec Record
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			return nil, "", fmt.Errorf("unmarshal record: %w", err)
		}
		records = append(records, rec)
	}

	next, err := encodeCursor(out.LastEvaluatedKey)
	if err != nil {
		return nil, "", err
	}
	return records, next, nil
}

// Delete removes a record and returns what was stored, so callers can
// clean up the derived objects it referenced. A missing item returns a
// zero Record without error.
func (s *Store) Delete(ctx context.Context, owner, itemID string) (Record, error) {
	if owner == "" {
		return Record{}, ErrMissingOwner
	}
	if itemID == "" {
		return Record{}, errors.New("item_id is required")
	}
	out, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"owner":   &types.AttributeValueMemberS{Value: owner},
			"item_id": &types.AttributeValueMemberS{Value: itemID},
		},
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return Record{}, fmt.Errorf("delete item %s/%s: %w", owner, itemID, err)
	}

	var rec Record
	if len(out.Attributes) > 0 {
		if err := attributevalue.UnmarshalMap(out.Attributes, &rec); err != nil {
			return Record{}, fmt.Errorf("unmarshal deleted item %s/%s: %w", owner, itemID, err)
		}
	}
	return rec, nil
}

func encodeCursor(lastKey map[string]types.AttributeValue) (string, error) {
	if len(lastKey) == 0 {
		return "", nil
	}
	var c cursor
	if err := attributevalue.UnmarshalMap(lastKey, &c); err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decodeCursor(s string) (map[string]types.AttributeValue, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	var c cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return map[string]types.AttributeValue{
		"owner":   &types.AttributeValueMemberS{Value: c.Owner},
		"item_id": &types.AttributeValueMemberS{Value: c.ItemID},
	}, nil
}
