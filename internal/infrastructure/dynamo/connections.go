package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-api-connect/internal/domain"
)

// ConnectionRepo stores established connections.
type ConnectionRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewConnectionRepo(client *dynamodb.Client, tableName string) *ConnectionRepo {
	return &ConnectionRepo{client: client, tableName: tableName}
}

func (r *ConnectionRepo) Put(ctx context.Context, c *domain.Connection) error {
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal connection: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}
