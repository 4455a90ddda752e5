package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"storefront-service/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

// DynamoAPI is the subset of the DynamoDB client the product store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// The id sequence lives in the same table under a reserved key.
const dynamoCounterID = 0

// DynamoProductRepository implements ProductRepository on a DynamoDB table
// keyed by numeric "id". Updates are conditional writes on "version".
type DynamoProductRepository struct {
	client DynamoAPI
	table  string
}

// NewDynamoProductRepository creates a new DynamoDB backed product repository
func NewDynamoProductRepository(client DynamoAPI, table string) *DynamoProductRepository {
	return &DynamoProductRepository{client: client, table: table}
}

type ddbProduct struct {
	ID                uint    `dynamodbav:"id"`
	Name              string  `dynamodbav:"name"`
	Description       string  `dynamodbav:"description"`
	Price             string  `dynamodbav:"price"`
	TotalQuantity     int     `dynamodbav:"total_quantity"`
	AvailableQuantity int     `dynamodbav:"available_quantity"`
	NeedRestock       bool    `dynamodbav:"need_restock"`
	ImageURL          *string `dynamodbav:"image_url,omitempty"`
	Version           int64   `dynamodbav:"version"`
	CreatedAt         string  `dynamodbav:"created_at"`
	UpdatedAt         string  `dynamodbav:"updated_at"`
}

func toDDB(p *models.Product) ddbProduct {
	return ddbProduct{
		ID:                p.ID,
		Name:              p.Name,
		Description:       p.Description,
		Price:             p.Price.StringFixed(2),
		TotalQuantity:     p.TotalQuantity,
		AvailableQuantity: p.AvailableQuantity,
		NeedRestock:       p.NeedRestock,
		ImageURL:          p.ImageURL,
		Version:           p.Version,
		CreatedAt:         p.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:         p.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func (d ddbProduct) toModel() (*models.Product, error) {
	price, err := decimal.NewFromString(d.Price)
	if err != nil {
		return nil, fmt.Errorf("parse price of product %d: %w", d.ID, err)
	}
	p := &models.Product{
		ID:                d.ID,
		Name:              d.Name,
		Description:       d.Description,
		Price:             price,
		TotalQuantity:     d.TotalQuantity,
		AvailableQuantity: d.AvailableQuantity,
		NeedRestock:       d.NeedRestock,
		ImageURL:          d.ImageURL,
		Version:           d.Version,
	}
	if t, err := time.Parse(time.RFC3339Nano, d.CreatedAt); err == nil {
		p.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, d.UpdatedAt); err == nil {
		p.UpdatedAt = t
	}
	return p, nil
}

func idKey(id uint) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberN{Value: strconv.FormatUint(uint64(id), 10)},
	}
}

// Insert allocates an id from the counter item and writes the product.
// Name uniqueness is checked with a scan and is best effort under concurrent inserts.
func (r *DynamoProductRepository) Insert(ctx context.Context, p *models.Product) (*models.Product, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	taken, err := r.nameExists(ctx, p.Name, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, duplicateName(p.Name)
	}

	id, err := r.nextID(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	stored := cloneProduct(p)
	stored.ID = id
	stored.Version = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now

	item, err := attributevalue.MarshalMap(toDDB(stored))
	if err != nil {
		return nil, fmt.Errorf("marshal product: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &r.table,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb PutItem failed: %w", err)
	}
	return stored, nil
}

func (r *DynamoProductRepository) Get(ctx context.Context, id uint) (*models.Product, error) {
	if id == dynamoCounterID {
		return nil, notFound(id)
	}

	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &r.table,
		Key:            idKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb GetItem failed: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, notFound(id)
	}

	var dp ddbProduct
	if err := attributevalue.UnmarshalMap(out.Item, &dp); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return dp.toModel()
}

// Update is optimistic: it re-reads and retries when another writer bumped the version.
func (r *DynamoProductRepository) Update(ctx context.Context, id uint, mutate MutateFunc) (*models.Product, error) {
	for attempt := 0; ; attempt++ {
		current, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		next := cloneProduct(current)
		if err := mutate(next); err != nil {
			return nil, err
		}
		next.ID = id
		if err := next.Validate(); err != nil {
			return nil, err
		}
		if next.Name != current.Name {
			taken, err := r.nameExists(ctx, next.Name, id)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, duplicateName(next.Name)
			}
		}
		next.Version = current.Version + 1
		next.CreatedAt = current.CreatedAt
		next.UpdatedAt = time.Now().UTC()

		item, err := attributevalue.MarshalMap(toDDB(next))
		if err != nil {
			return nil, fmt.Errorf("marshal product: %w", err)
		}

		_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           &r.table,
			Item:                item,
			ConditionExpression: aws.String("version = :v"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(current.Version, 10)},
			},
		})
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if err := backoff(ctx, attempt); err != nil {
				return nil, fmt.Errorf("update product %d: %w", id, err)
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("dynamodb PutItem failed: %w", err)
		}
		return next, nil
	}
}

func (r *DynamoProductRepository) Delete(ctx context.Context, id uint) error {
	if id == dynamoCounterID {
		return notFound(id)
	}

	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           &r.table,
		Key:                 idKey(id),
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return notFound(id)
	}
	if err != nil {
		return fmt.Errorf("dynamodb DeleteItem failed: %w", err)
	}
	return nil
}

func (r *DynamoProductRepository) List(ctx context.Context) ([]models.Product, error) {
	return r.scan(ctx, "attribute_exists(#n)", nil)
}

func (r *DynamoProductRepository) ListNeedingRestock(ctx context.Context) ([]models.Product, error) {
	return r.scan(ctx, "attribute_exists(#n) AND need_restock = :t", map[string]types.AttributeValue{
		":t": &types.AttributeValueMemberBOOL{Value: true},
	})
}

func (r *DynamoProductRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                &r.table,
			Select:                   types.SelectCount,
			FilterExpression:         aws.String("attribute_exists(#n)"),
			ExpressionAttributeNames: map[string]string{"#n": "name"},
			ExclusiveStartKey:        startKey,
		})
		if err != nil {
			return 0, fmt.Errorf("dynamodb Scan failed: %w", err)
		}
		total += int64(out.Count)
		if len(out.LastEvaluatedKey) == 0 {
			return total, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func (r *DynamoProductRepository) scan(ctx context.Context, filter string, values map[string]types.AttributeValue) ([]models.Product, error) {
	products := []models.Product{}
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 &r.table,
			FilterExpression:          aws.String(filter),
			ExpressionAttributeNames:  map[string]string{"#n": "name"},
			ExpressionAttributeValues: values,
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("dynamodb Scan failed: %w", err)
		}

		var page []ddbProduct
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal items: %w", err)
		}
		for _, dp := range page {
			p, err := dp.toModel()
			if err != nil {
				return nil, err
			}
			products = append(products, *p)
		}

		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (r *DynamoProductRepository) nameExists(ctx context.Context, name string, except uint) (bool, error) {
	matches, err := r.scan(ctx, "#n = :name", map[string]types.AttributeValue{
		":name": &types.AttributeValueMemberS{Value: name},
	})
	if err != nil {
		return false, err
	}
	for _, p := range matches {
		if p.ID != except {
			return true, nil
		}
	}
	return false, nil
}

func (r *DynamoProductRepository) nextID(ctx context.Context) (uint, error) {
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &r.table,
		Key:              idKey(dynamoCounterID),
		UpdateExpression: aws.String("ADD seq :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("dynamodb UpdateItem (id sequence) failed: %w", err)
	}

	var seq struct {
		Seq uint `dynamodbav:"seq"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &seq); err != nil {
		return 0, fmt.Errorf("unmarshal id sequence: %w", err)
	}
	if seq.Seq == 0 {
		return 0, errors.New("id sequence returned zero")
	}
	return seq.Seq, nil
}
