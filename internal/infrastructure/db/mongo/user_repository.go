package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tenantauth/auth-backend/internal/core/domain"
	"github.com/tenantauth/auth-backend/internal/core/ports"
)

const usersCollection = "users"

// UserRepository is the Mongo IdentityStore. The same type backs the global
// database and every tenant database.
type UserRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

var _ ports.IdentityStore = (*UserRepository)(nil)

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{coll: db.Collection(usersCollection), now: time.Now}
}

type mongoUser struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty"`
	Name               string             `bson:"name"`
	Email              string             `bson:"email,omitempty"`
	PasswordHash       string             `bson:"password_hash,omitempty"`
	AuthMethod         string             `bson:"auth_method"`
	AuthID             string             `bson:"auth_id,omitempty"`
	ProfilePictureLink string             `bson:"profile_picture_link,omitempty"`
	IsOnline           bool               `bson:"is_online"`
	LastSeen           time.Time          `bson:"last_seen"`
	ConnectionID       string             `bson:"connection_id,omitempty"`
	CreatedAt          time.Time          `bson:"created_at"`
	UpdatedAt          time.Time          `bson:"updated_at"`
}

func toDocument(u *domain.User) mongoUser {
	return mongoUser{
		Name:               u.Name,
		Email:              domain.NormalizeEmail(u.Email),
		PasswordHash:       u.PasswordHash,
		AuthMethod:         u.AuthMethod,
		AuthID:             u.AuthID,
		ProfilePictureLink: u.ProfilePictureLink,
		IsOnline:           u.IsOnline,
		LastSeen:           u.LastSeen.UTC(),
		ConnectionID:       u.ConnectionID,
		CreatedAt:          u.CreatedAt.UTC(),
		UpdatedAt:          u.UpdatedAt.UTC(),
	}
}

func (m mongoUser) toDomain() *domain.User {
	return &domain.User{
		ID:                 m.ID.Hex(),
		Name:               m.Name,
		Email:              m.Email,
		PasswordHash:       m.PasswordHash,
		AuthMethod:         m.AuthMethod,
		AuthID:             m.AuthID,
		ProfilePictureLink: m.ProfilePictureLink,
		IsOnline:           m.IsOnline,
		LastSeen:           m.LastSeen.UTC(),
		ConnectionID:       m.ConnectionID,
		CreatedAt:          m.CreatedAt.UTC(),
		UpdatedAt:          m.UpdatedAt.UTC(),
	}
}

// EnsureIndexes creates the uniqueness constraints: email among documents
// that have one, and (auth_method, auth_id) among federated accounts.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "email", Value: 1}},
			Options: options.Index().
				SetName("uniq_email").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"email": bson.M{"$type": "string"}}),
		},
		{
			Keys: bson.D{{Key: "auth_method", Value: 1}, {Key: "auth_id", Value: 1}},
			Options: options.Index().
				SetName("uniq_federated_identity").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"auth_id": bson.M{"$type": "string"}}),
		},
		{
			Keys:    bson.D{{Key: "connection_id", Value: 1}},
			Options: options.Index().SetName("connection_id").SetSparse(true),
		},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	if !user.HasCredential() {
		return nil, domain.ErrNoCredential
	}
	doc := toDocument(user)
	doc.ID = primitive.NewObjectID()

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, domain.ErrUserNotFound
	}
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepository) FindByFederatedID(ctx context.Context, authMethod, authID string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"auth_method": authMethod, "auth_id": authID})
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var mu mongoUser
	if err := r.coll.FindOne(ctx, filter).Decode(&mu); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return mu.toDomain(), nil
}

func (r *UserRepository) UpdatePresence(ctx context.Context, id string, p domain.Presence) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrUserNotFound
	}
	return r.updateOne(ctx, bson.M{"_id": oid}, p)
}

func (r *UserRepository) UpdateByConnectionID(ctx context.Context, connectionID string, p domain.Presence) error {
	if connectionID == "" {
		return domain.ErrUserNotFound
	}
	return r.updateOne(ctx, bson.M{"connection_id": connectionID}, p)
}

func (r *UserRepository) updateOne(ctx context.Context, filter bson.M, p domain.Presence) error {
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": presenceSet(p, r.now())})
	if err != nil {
		return fmt.Errorf("update presence: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func presenceSet(p domain.Presence, now time.Time) bson.M {
	set := bson.M{"is_online": p.IsOnline, "updated_at": now.UTC()}
	if p.ConnectionID != nil {
		set["connection_id"] = *p.ConnectionID
	}
	if p.LastSeen != nil {
		set["last_seen"] = p.LastSeen.UTC()
	}
	return set
}
