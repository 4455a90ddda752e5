package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-service/models"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const productSequence = "products"

// MongoProductRepository implements ProductRepository on MongoDB. Integer ids
// come from a counters collection; updates replace the document only if its
// version is unchanged.
type MongoProductRepository struct {
	products *mongo.Collection
	counters *mongo.Collection
}

// NewMongoProductRepository creates the repository and its indexes.
func NewMongoProductRepository(ctx context.Context, db *mongo.Database) (*MongoProductRepository, error) {
	r := &MongoProductRepository{
		products: db.Collection("products"),
		counters: db.Collection("counters"),
	}
	if err := r.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *MongoProductRepository) ensureIndexes(ctx context.Context) error {
	_, err := r.products.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "need_restock", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create product indexes: %w", err)
	}
	return nil
}

type mongoProduct struct {
	ID                int64                `bson:"_id"`
	Name              string               `bson:"name"`
	Description       string               `bson:"description"`
	Price             primitive.Decimal128 `bson:"price"`
	TotalQuantity     int                  `bson:"total_quantity"`
	AvailableQuantity int                  `bson:"available_quantity"`
	NeedRestock       bool                 `bson:"need_restock"`
	ImageURL          *string              `bson:"image_url,omitempty"`
	Version           int64                `bson:"version"`
	CreatedAt         time.Time            `bson:"created_at"`
	UpdatedAt         time.Time            `bson:"updated_at"`
}

func toMongo(p *models.Product) (mongoProduct, error) {
	price, err := primitive.ParseDecimal128(p.Price.StringFixed(2))
	if err != nil {
		return mongoProduct{}, fmt.Errorf("encode price: %w", err)
	}
	return mongoProduct{
		ID:                int64(p.ID),
		Name:              p.Name,
		Description:       p.Description,
		Price:             price,
		TotalQuantity:     p.TotalQuantity,
		AvailableQuantity: p.AvailableQuantity,
		NeedRestock:       p.NeedRestock,
		ImageURL:          p.ImageURL,
		Version:           p.Version,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}, nil
}

func (m mongoProduct) toModel() (*models.Product, error) {
	price, err := decimal.NewFromString(m.Price.String())
	if err != nil {
		return nil, fmt.Errorf("decode price of product %d: %w", m.ID, err)
	}
	return &models.Product{
		ID:                uint(m.ID),
		Name:              m.Name,
		Description:       m.Description,
		Price:             price,
		TotalQuantity:     m.TotalQuantity,
		AvailableQuantity: m.AvailableQuantity,
		NeedRestock:       m.NeedRestock,
		ImageURL:          m.ImageURL,
		Version:           m.Version,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}, nil
}

func (r *MongoProductRepository) Insert(ctx context.Context, p *models.Product) (*models.Product, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	id, err := r.nextID(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	stored := cloneProduct(p)
	stored.ID = id
	stored.Version = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now

	doc, err := toMongo(stored)
	if err != nil {
		return nil, err
	}
	if _, err := r.products.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, duplicateName(p.Name)
		}
		return nil, fmt.Errorf("insert product: %w", err)
	}
	return stored, nil
}

func (r *MongoProductRepository) Get(ctx context.Context, id uint) (*models.Product, error) {
	var doc mongoProduct
	err := r.products.FindOne(ctx, bson.M{"_id": int64(id)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("find product %d: %w", id, err)
	}
	return doc.toModel()
}

// Update retries when the stored version moved between read and replace.
func (r *MongoProductRepository) Update(ctx context.Context, id uint, mutate MutateFunc) (*models.Product, error) {
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
		next.Version = current.Version + 1
		next.CreatedAt = current.CreatedAt
		next.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

		doc, err := toMongo(next)
		if err != nil {
			return nil, err
		}

		res, err := r.products.ReplaceOne(ctx, bson.M{"_id": int64(id), "version": current.Version}, doc)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, duplicateName(next.Name)
			}
			return nil, fmt.Errorf("replace product %d: %w", id, err)
		}
		if res.MatchedCount == 0 {
			if err := backoff(ctx, attempt); err != nil {
				return nil, fmt.Errorf("update product %d: %w", id, err)
			}
			continue
		}
		return next, nil
	}
}

func (r *MongoProductRepository) Delete(ctx context.Context, id uint) error {
	res, err := r.products.DeleteOne(ctx, bson.M{"_id": int64(id)})
	if err != nil {
		return fmt.Errorf("delete product %d: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return notFound(id)
	}
	return nil
}

func (r *MongoProductRepository) List(ctx context.Context) ([]models.Product, error) {
	return r.find(ctx, bson.M{})
}

func (r *MongoProductRepository) ListNeedingRestock(ctx context.Context) ([]models.Product, error) {
	return r.find(ctx, bson.M{"need_restock": true})
}

func (r *MongoProductRepository) Count(ctx context.Context) (int64, error) {
	return r.products.CountDocuments(ctx, bson.M{})
}

func (r *MongoProductRepository) find(ctx context.Context, filter bson.M) ([]models.Product, error) {
	cursor, err := r.products.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoProduct
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}

	products := make([]models.Product, 0, len(docs))
	for _, d := range docs {
		p, err := d.toModel()
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, nil
}

func (r *MongoProductRepository) nextID(ctx context.Context) (uint, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": productSequence},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("allocate product id: %w", err)
	}
	return uint(counter.Seq), nil
}
