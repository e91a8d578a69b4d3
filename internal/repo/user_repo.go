package repo

import (
	"context"
	"errors"
	"time"

	"github.com/tazhibayda/learnpath-auth/internal/apperrors"
	"github.com/tazhibayda/learnpath-auth/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var returnAfter = options.FindOneAndUpdate().SetReturnDocument(options.After)

func (s *Store) CreateUser(ctx context.Context, u *domain.User) (err error) {
	sp, ctx := startSpan(ctx, "mongo.users.insert")
	defer func() { finishSpan(sp, err) }()

	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	if _, err = s.users.InsertOne(ctx, u); err != nil {
		if IsDup(err) {
			return apperrors.ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (u *domain.User, err error) {
	sp, ctx := startSpan(ctx, "mongo.users.find_by_email")
	defer func() { finishSpan(sp, err) }()

	return s.findOne(ctx, bson.M{"email": email})
}

func (s *Store) FindUserByID(ctx context.Context, id string) (u *domain.User, err error) {
	sp, ctx := startSpan(ctx, "mongo.users.find_by_id")
	defer func() { finishSpan(sp, err) }()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperrors.ErrNotFound
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

// ConfirmEmail marks the account verified iff code equals the stored code,
// clearing the code and verification token in the same write.
func (s *Store) ConfirmEmail(ctx context.Context, email, code string) (u *domain.User, err error) {
	sp, ctx := startSpan(ctx, "mongo.users.confirm_email")
	defer func() { finishSpan(sp, err) }()

	if code == "" {
		return nil, apperrors.ErrNotFound
	}
	return s.findOneAndUpdate(ctx,
		bson.M{"email": email, "status": domain.StatusUnverified, "verification.code": code},
		bson.M{
			"$set":   bson.M{"status": domain.StatusVerified, "updated_at": time.Now().UTC()},
			"$unset": bson.M{"verification": ""},
		},
	)
}

func (s *Store) SetResetToken(ctx context.Context, id, token string) (err error) {
	sp, ctx := startSpan(ctx, "mongo.users.set_reset_token")
	defer func() { finishSpan(sp, err) }()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return apperrors.ErrNotFound
	}
	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"reset_token": token, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (s *Store) FindUserByResetToken(ctx context.Context, id, token string) (u *domain.User, err error) {
	sp, ctx := startSpan(ctx, "mongo.users.find_by_reset_token")
	defer func() { finishSpan(sp, err) }()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil || token == "" {
		return nil, apperrors.ErrNotFound
	}
	return s.findOne(ctx, bson.M{"_id": oid, "reset_token": token})
}

// ConsumeResetToken swaps in the new password hash and clears the reset token,
// but only while the stored token still equals token. A second consumer gets ErrNotFound.
func (s *Store) ConsumeResetToken(ctx context.Context, id, token, passwordHash string) (u *domain.User, err error) {
	sp, ctx := startSpan(ctx, "mongo.users.consume_reset_token")
	defer func() { finishSpan(sp, err) }()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil || token == "" {
		return nil, apperrors.ErrNotFound
	}
	return s.findOneAndUpdate(ctx,
		bson.M{"_id": oid, "reset_token": token},
		bson.M{
			"$set":   bson.M{"password_hash": passwordHash, "updated_at": time.Now().UTC()},
			"$unset": bson.M{"reset_token": ""},
		},
	)
}

func (s *Store) UpdateProfile(ctx context.Context, id string, p domain.ProfileUpdate) (u *domain.User, err error) {
	sp, ctx := startSpan(ctx, "mongo.users.update_profile")
	defer func() { finishSpan(sp, err) }()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperrors.ErrNotFound
	}
	set := bson.M{"updated_at": time.Now().UTC()}
	if p.FullName != nil {
		set["full_name"] = *p.FullName
	}
	if p.Bio != nil {
		set["bio"] = *p.Bio
	}
	if p.ProfileImageURL != nil {
		set["profile_image_url"] = *p.ProfileImageURL
	}
	return s.findOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
}

// FindOrCreateGoogleUser returns the account for u.Email, inserting u when none exists.
// Existing accounts are returned untouched. created reports whether u was inserted.
func (s *Store) FindOrCreateGoogleUser(ctx context.Context, u *domain.User) (out *domain.User, created bool, err error) {
	sp, ctx := startSpan(ctx, "mongo.users.find_or_create_google")
	defer func() { finishSpan(sp, err) }()

	now := time.Now().UTC()
	newID := primitive.NewObjectID()
	insert := bson.M{
		"_id":        newID,
		"full_name":  u.FullName,
		"google_id":  u.GoogleID,
		"status":     domain.StatusVerified,
		"created_at": now,
		"updated_at": now,
	}
	if u.ProfileImageURL != "" {
		insert["profile_image_url"] = u.ProfileImageURL
	}

	res := s.users.FindOneAndUpdate(ctx,
		bson.M{"email": u.Email},
		bson.M{"$setOnInsert": insert},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)
	var got domain.User
	if err = res.Decode(&got); err != nil {
		if IsDup(err) {
			// lost an upsert race on the unique email index; the winner's document is there now
			out, err = s.findOne(ctx, bson.M{"email": u.Email})
			return out, false, err
		}
		return nil, false, err
	}
	return &got, got.ID == newID, nil
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var u domain.User
	if err := s.users.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*domain.User, error) {
	var u domain.User
	if err := s.users.FindOneAndUpdate(ctx, filter, update, returnAfter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}
