package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type VerificationStatus string

const (
	StatusUnverified VerificationStatus = "unverified"
	StatusVerified   VerificationStatus = "verified"
)

// Verification holds the pending email-confirmation secrets. Cleared once consumed.
type Verification struct {
	Code  string `bson:"code"`  // 6 digits, typed by the user
	Token string `bson:"token"` // opaque, pairs the client with the pending account
}

type User struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"               json:"id"`
	Email           string             `bson:"email"                       json:"email"`
	PasswordHash    string             `bson:"password_hash,omitempty"     json:"-"`
	FullName        string             `bson:"full_name"                   json:"fullName"`
	ProfileImageURL string             `bson:"profile_image_url,omitempty" json:"profileImageUrl,omitempty"`
	Bio             string             `bson:"bio,omitempty"               json:"bio,omitempty"`
	GoogleID        string             `bson:"google_id,omitempty"         json:"googleId,omitempty"`
	Status          VerificationStatus `bson:"status"                      json:"status"`
	Verification    *Verification      `bson:"verification,omitempty"      json:"-"`
	ResetToken      string             `bson:"reset_token,omitempty"       json:"-"`
	CreatedAt       time.Time          `bson:"created_at"                  json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updated_at"                  json:"updatedAt"`
}

func (u *User) IsVerified() bool { return u.Status == StatusVerified }

// HasPassword reports whether the account can authenticate by password.
// OAuth-only accounts have no hash.
func (u *User) HasPassword() bool { return u.PasswordHash != "" }

// ProfileUpdate carries optional profile fields; nil means "leave unchanged".
type ProfileUpdate struct {
	FullName        *string
	Bio             *string
	ProfileImageURL *string
}

func (p ProfileUpdate) Empty() bool {
	return p.FullName == nil && p.Bio == nil && p.ProfileImageURL == nil
}

// GoogleProfile is the verified identity returned by the OAuth provider.
type GoogleProfile struct {
	Subject string
	Email   string
	Name    string
	Picture string
}
