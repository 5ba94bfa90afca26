package sessions

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-funnel-bot/internal/aws"
)

// DynamoRepository stores sessions in a DynamoDB table keyed by user_id (N).
type DynamoRepository struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewDynamoRepository creates a DynamoDB-backed repository.
func NewDynamoRepository(client aws.DynamoDBAPI, tableName string) *DynamoRepository {
	return &DynamoRepository{
		client:    client,
		tableName: tableName,
	}
}

func userKey(userID int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"user_id": &types.AttributeValueMemberN{Value: strconv.FormatInt(userID, 10)},
	}
}

// Get fetches a session by user_id. Returns (nil, nil) if not found.
func (r *DynamoRepository) Get(ctx context.Context, userID int64) (*Session, error) {
	out, err := r.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &r.tableName,
		Key:            userKey(userID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var s Session
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}

// Put writes the whole session item, replacing any previous version.
func (r *DynamoRepository) Put(ctx context.Context, s Session) error {
	item, err := attributevalue.MarshalMap(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &r.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

func awsBool(b bool) *bool { return &b }
