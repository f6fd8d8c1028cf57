package store

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/orstracker/apiserver/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserListFilter narrows and pages a user listing.
type UserListFilter struct {
	Search string
	Role   string
	Skip   int64
	Limit  int64
}

// UserRepository handles persistence for users.
type UserRepository struct {
	coll *mongo.Collection
}

func NewUserRepository(database *mongo.Database, collection string) *UserRepository {
	return &UserRepository{coll: database.Collection(collection)}
}

func (r *UserRepository) GetByID(ctx context.Context, id primitive.ObjectID) (types.User, error) {
	var user types.User
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	var user types.User
	err := r.coll.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	result, err := r.coll.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.User{}, ErrDuplicate
		}
		return types.User{}, err
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		user.ID = oid
	}
	return user, nil
}

// SetResetState records a pending password-reset OTP hash and expiry.
func (r *UserRepository) SetResetState(ctx context.Context, id primitive.ObjectID, otpHash string, expire time.Time) error {
	update := bson.M{"$set": bson.M{
		"resetOtpHash":       otpHash,
		"resetOtpExpire":     expire,
		"isResetOtpVerified": false,
		"updatedAt":          time.Now(),
	}}
	return r.applyUpdate(ctx, id, update)
}

// MarkResetVerified flags the pending OTP as verified.
func (r *UserRepository) MarkResetVerified(ctx context.Context, id primitive.ObjectID) error {
	update := bson.M{"$set": bson.M{
		"isResetOtpVerified": true,
		"updatedAt":          time.Now(),
	}}
	return r.applyUpdate(ctx, id, update)
}

// ReplacePassword swaps the password hash and clears any reset state.
func (r *UserRepository) ReplacePassword(ctx context.Context, id primitive.ObjectID, passwordHash string) error {
	update := bson.M{
		"$set": bson.M{
			"password":           passwordHash,
			"isResetOtpVerified": false,
			"updatedAt":          time.Now(),
		},
		"$unset": bson.M{
			"resetOtpHash":   "",
			"resetOtpExpire": "",
		},
	}
	return r.applyUpdate(ctx, id, update)
}

func (r *UserRepository) applyUpdate(ctx context.Context, id primitive.ObjectID, update bson.M) error {
	result, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a user and returns the deleted record.
func (r *UserRepository) Delete(ctx context.Context, id primitive.ObjectID) (types.User, error) {
	var user types.User
	err := r.coll.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

// List fetches users matching the filter, newest first, plus the total count.
func (r *UserRepository) List(ctx context.Context, filter UserListFilter) ([]types.User, int64, error) {
	query := BuildUserQuery(filter.Search, filter.Role)

	total, err := r.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSkip(filter.Skip).
		SetLimit(filter.Limit).
		SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	users := make([]types.User, 0, filter.Limit)
	if err := cursor.All(ctx, &users); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// BuildUserQuery translates search and role filters into a Mongo query.
// Search matches username or email as a case-insensitive substring.
func BuildUserQuery(search, role string) bson.M {
	query := bson.M{}
	if search != "" {
		pattern := regexp.QuoteMeta(search)
		query["$or"] = bson.A{
			bson.M{"username": bson.M{"$regex": pattern, "$options": "i"}},
			bson.M{"email": bson.M{"$regex": pattern, "$options": "i"}},
		}
	}
	if role != "" {
		query["role"] = role
	}
	return query
}
