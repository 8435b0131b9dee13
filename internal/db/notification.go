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

// MongoNotificationCollection implements NotificationCollection for MongoDB.
type MongoNotificationCollection struct {
	Collection *mongo.Collection
}

// InsertNotification records an in-app notification.
func (c *MongoNotificationCollection) InsertNotification(ctx context.Context, n models.Notification) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	_, err := c.Collection.InsertOne(ctx, n)
	return err
}

// FindNotificationsByUser returns a user's notifications, newest first.
func (c *MongoNotificationCollection) FindNotificationsByUser(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	filter := bson.M{"user_id": userID}
	if unreadOnly {
		filter["read"] = false
	}
	cursor, err := c.Collection.Find(ctx, filter, options.Find().SetSort(bson.M{"created_at": -1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var notifications []models.Notification
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// MarkNotificationRead flags a notification as read.
func (c *MongoNotificationCollection) MarkNotificationRead(ctx context.Context, id string, at time.Time) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid notification ID: %w", err)
	}
	result, err := c.Collection.UpdateOne(
		ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": bson.M{"read": true, "read_at": at}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// CountUnread counts a user's unread notifications (the badge count).
func (c *MongoNotificationCollection) CountUnread(ctx context.Context, userID string) (int64, error) {
	return c.Collection.CountDocuments(ctx, bson.M{"user_id": userID, "read": false})
}

// DeleteReadBefore removes read notifications created before the cutoff.
func (c *MongoNotificationCollection) DeleteReadBefore(ctx context.Context, userID string, cutoff time.Time) (int64, error) {
	res, err := c.Collection.DeleteMany(ctx, bson.M{"user_id": userID, "read": true, "created_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// DeleteUnreadBefore removes unread notifications created before the cutoff.
func (c *MongoNotificationCollection) DeleteUnreadBefore(ctx context.Context, userID string, cutoff time.Time) (int64, error) {
	res, err := c.Collection.DeleteMany(ctx, bson.M{"user_id": userID, "read": false, "created_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// MongoPreferenceCollection implements PreferenceCollection for MongoDB.
type MongoPreferenceCollection struct {
	Collection *mongo.Collection
}

// FindPreferenceByUser returns a user's saved preference, ErrNotFound when
// the user never saved one.
func (c *MongoPreferenceCollection) FindPreferenceByUser(ctx context.Context, userID string) (*models.NotificationPreference, error) {
	var pref models.NotificationPreference
	err := c.Collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&pref)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &pref, nil
}

// UpsertPreference saves a user's preference, replacing any prior record.
func (c *MongoPreferenceCollection) UpsertPreference(ctx context.Context, pref models.NotificationPreference) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	pref.UpdatedAt = time.Now()
	_, err := c.Collection.ReplaceOne(
		ctx,
		bson.M{"user_id": pref.UserID},
		pref,
		options.Replace().SetUpsert(true),
	)
	return err
}
