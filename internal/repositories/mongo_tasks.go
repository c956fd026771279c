package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Antonioedwardsd/devlab/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type taskDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Title       string             `bson:"title"`
	Description string             `bson:"description"`
	Completed   bool               `bson:"completed"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

func (d taskDocument) toModel() models.Task {
	return models.Task{
		ID:          d.ID.Hex(),
		Title:       d.Title,
		Description: d.Description,
		Completed:   d.Completed,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

// BSON dates carry millisecond precision.
func mongoNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// patchUpdate builds the $set document for patch.
func patchUpdate(patch models.TaskPatch, now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Completed != nil {
		set["completed"] = *patch.Completed
	}
	return bson.M{"$set": set}
}

func listFilter(filter models.TaskFilter) bson.M {
	query := bson.M{}
	if filter.Completed != nil {
		query["completed"] = *filter.Completed
	}
	return query
}

// MongoTaskRepository stores tasks as documents. Ids are ObjectID hex strings.
type MongoTaskRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoTaskRepository connects to uri and makes sure the listing indexes
// exist on the collection.
func NewMongoTaskRepository(ctx context.Context, uri, database, collection string) (*MongoTaskRepository, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	repo := &MongoTaskRepository{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}
	if err := repo.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return repo, nil
}

func (r *MongoTaskRepository) ensureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "completed", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create task indexes: %w", err)
	}
	return nil
}

func (r *MongoTaskRepository) Create(ctx context.Context, draft models.TaskDraft) (*models.Task, error) {
	now := mongoNow()
	doc := taskDocument{
		ID:          primitive.NewObjectID(),
		Title:       draft.Title,
		Description: draft.Description,
		Completed:   draft.Completed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return nil, storeError("create", err)
	}
	task := doc.toModel()
	return &task, nil
}

func (r *MongoTaskRepository) FindAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, listFilter(filter), opts)
	if err != nil {
		return nil, storeError("find all", err)
	}
	defer cursor.Close(ctx)

	var docs []taskDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storeError("find all", err)
	}

	tasks := make([]models.Task, 0, len(docs))
	for _, doc := range docs {
		tasks = append(tasks, doc.toModel())
	}
	return tasks, nil
}

func (r *MongoTaskRepository) FindByID(ctx context.Context, id string) (*models.Task, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrTaskNotFound
	}

	var doc taskDocument
	if err := r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrTaskNotFound
		}
		return nil, storeError("find by id", err)
	}
	task := doc.toModel()
	return &task, nil
}

// UpdateByID uses a single findOneAndUpdate returning the post-update document.
func (r *MongoTaskRepository) UpdateByID(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	if patch.IsEmpty() {
		return r.FindByID(ctx, id)
	}

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrTaskNotFound
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc taskDocument
	err = r.collection.FindOneAndUpdate(ctx, bson.M{"_id": oid}, patchUpdate(patch, mongoNow()), opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrTaskNotFound
		}
		return nil, storeError("update", err)
	}
	task := doc.toModel()
	return &task, nil
}

func (r *MongoTaskRepository) DeleteByID(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrTaskNotFound
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return storeError("delete", err)
	}
	if result.DeletedCount == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *MongoTaskRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx, readpref.Primary()); err != nil {
		return storeError("ping", err)
	}
	return nil
}

func (r *MongoTaskRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}
