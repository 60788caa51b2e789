package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-api-connect/internal/domain"
)

// CodeLedgerRepo records every issued connection code.
// PK: code. GSI owner_id-code_id-index orders an owner's codes by issue time.
// expires_at is a Unix timestamp used as DynamoDB TTL; permanent codes omit it.
type CodeLedgerRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewCodeLedgerRepo(client *dynamodb.Client, tableName string) *CodeLedgerRepo {
	return &CodeLedgerRepo{client: client, tableName: tableName}
}

func (r *CodeLedgerRepo) Put(ctx context.Context, c *domain.ConnectionCode) error {
	item, err := codeItem(c)
	if err != nil {
		return err
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// LatestByOwner returns the most recently issued code of ownerID.
func (r *CodeLedgerRepo) LatestByOwner(ctx context.Context, ownerID string) (*domain.ConnectionCode, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("owner_id-code_id-index"),
		KeyConditionExpression: aws.String("owner_id = :o"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":o": &types.AttributeValueMemberS{Value: ownerID},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, domain.Newf(domain.ErrNotFound, "connection code not found")
	}
	return codeFromItem(out.Items[0])
}

func (r *CodeLedgerRepo) Delete(ctx context.Context, code string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("code", code),
	})
	return err
}

// codeItem marshals c with the TTL attribute derived from ExpiresAt.
func codeItem(c *domain.ConnectionCode) (map[string]types.AttributeValue, error) {
	row := *c
	row.ExpiresAtUnix = 0
	if c.ExpiresAt != nil {
		row.ExpiresAtUnix = c.ExpiresAt.Unix()
	}
	item, err := attributevalue.MarshalMap(&row)
	if err != nil {
		return nil, fmt.Errorf("marshal connection code: %w", err)
	}
	return item, nil
}

// codeFromItem unmarshals a ledger row. Rows without expires_at_iso fall back
// to the whole-second TTL attribute.
func codeFromItem(item map[string]types.AttributeValue) (*domain.ConnectionCode, error) {
	var c domain.ConnectionCode
	if err := attributevalue.UnmarshalMap(item, &c); err != nil {
		return nil, fmt.Errorf("unmarshal connection code: %w", err)
	}
	if c.ExpiresAt == nil && c.ExpiresAtUnix > 0 {
		exp := time.Unix(c.ExpiresAtUnix, 0).UTC()
		c.ExpiresAt = &exp
	}
	return &c, nil
}
