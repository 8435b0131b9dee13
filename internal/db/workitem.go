package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ukydev/vehicle-recon/internal/models"
)

// MongoWorkItemCollection implements WorkItemCollection for MongoDB.
type MongoWorkItemCollection struct {
	Collection *mongo.Collection
}

// InsertWorkItem inserts a work item and returns its id.
func (c *MongoWorkItemCollection) InsertWorkItem(ctx context.Context, item models.WorkItem) (string, error) {
	if c.Collection == nil {
		return "", fmt.Errorf("mongo collection is nil")
	}
	item.CreatedAt = time.Now()
	item.UpdatedAt = time.Now()
	res, err := c.Collection.InsertOne(ctx, item)
	if err != nil {
		return "", err
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	return oid.Hex(), nil
}

// FindWorkItemByID finds a work item by its ID.
func (c *MongoWorkItemCollection) FindWorkItemByID(ctx context.Context, id string) (*models.WorkItem, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid work item ID: %w", err)
	}
	var item models.WorkItem
	err = c.Collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&item)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// FindWorkItemsByVehicle returns all work items attached to a vehicle.
func (c *MongoWorkItemCollection) FindWorkItemsByVehicle(ctx context.Context, vehicleID string) ([]models.WorkItem, error) {
	cursor, err := c.Collection.Find(ctx, bson.M{"vehicle_id": vehicleID}, options.Find().SetSort(bson.M{"created_at": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var items []models.WorkItem
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ReplaceWorkItem replaces a work item only while its stored status still
// matches expected. A lost race surfaces as ErrStaleStatus so the caller can
// re-validate instead of clobbering a concurrent transition.
func (c *MongoWorkItemCollection) ReplaceWorkItem(ctx context.Context, id string, expected models.WorkItemStatus, item models.WorkItem) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid work item ID: %w", err)
	}
	item.ID = objectID
	item.UpdatedAt = time.Now()
	result, err := c.Collection.ReplaceOne(ctx, bson.M{"_id": objectID, "status": expected}, item)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		// Distinguish a vanished item from a status race.
		count, err := c.Collection.CountDocuments(ctx, bson.M{"_id": objectID})
		if err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrStaleStatus
	}
	return nil
}

// UpdateWorkItem replaces a work item unconditionally (field edits, not
// lifecycle transitions).
func (c *MongoWorkItemCollection) UpdateWorkItem(ctx context.Context, id string, item models.WorkItem) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid work item ID: %w", err)
	}
	item.ID = objectID
	item.UpdatedAt = time.Now()
	result, err := c.Collection.ReplaceOne(ctx, bson.M{"_id": objectID}, item)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWorkItem deletes a work item by its ID.
func (c *MongoWorkItemCollection) DeleteWorkItem(ctx context.Context, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid work item ID: %w", err)
	}
	result, err := c.Collection.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MongoTransitionCollection implements TransitionCollection for MongoDB.
type MongoTransitionCollection struct {
	Collection *mongo.Collection
}

// InsertTransition appends a transition audit entry.
func (c *MongoTransitionCollection) InsertTransition(ctx context.Context, tr models.WorkItemTransition) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	_, err := c.Collection.InsertOne(ctx, tr)
	return err
}

// FindTransitionsByWorkItem returns an item's transition history, oldest first.
func (c *MongoTransitionCollection) FindTransitionsByWorkItem(ctx context.Context, workItemID string) ([]models.WorkItemTransition, error) {
	cursor, err := c.Collection.Find(ctx, bson.M{"work_item_id": workItemID}, options.Find().SetSort(bson.M{"occurred_at": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var transitions []models.WorkItemTransition
	if err := cursor.All(ctx, &transitions); err != nil {
		return nil, err
	}
	return transitions, nil
}

// MongoTemplateCollection implements TemplateCollection for MongoDB.
type MongoTemplateCollection struct {
	Collection *mongo.Collection
}

// InsertTemplate inserts a work item template and returns its id.
func (c *MongoTemplateCollection) InsertTemplate(ctx context.Context, tpl models.WorkItemTemplate) (string, error) {
	if c.Collection == nil {
		return "", fmt.Errorf("mongo collection is nil")
	}
	tpl.CreatedAt = time.Now()
	res, err := c.Collection.InsertOne(ctx, tpl)
	if err != nil {
		return "", err
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	return oid.Hex(), nil
}

// FindTemplates returns all work item templates.
func (c *MongoTemplateCollection) FindTemplates(ctx context.Context) ([]models.WorkItemTemplate, error) {
	cursor, err := c.Collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"name": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var templates []models.WorkItemTemplate
	if err := cursor.All(ctx, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

// FindTemplateByID finds a template by its ID.
func (c *MongoTemplateCollection) FindTemplateByID(ctx context.Context, id string) (*models.WorkItemTemplate, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid template ID: %w", err)
	}
	var tpl models.WorkItemTemplate
	err = c.Collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&tpl)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tpl, nil
}
