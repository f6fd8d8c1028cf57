package types

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Roles assignable to a user account.
const (
	RoleAdmin     = "admin"
	RoleInspector = "inspector"
	RoleViewer    = "viewer"
)

// ValidRole reports whether role is one of the assignable roles.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleInspector, RoleViewer:
		return true
	}
	return false
}

// User represents an account in the system.
// It contains identity, role, and password-reset state.
type User struct {
	// ID is the unique identifier of the user.
	ID primitive.ObjectID `json:"id" bson:"_id,omitempty"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" bson:"username"`

	// Email is the user's email address, stored lowercase and unique.
	Email string `json:"email" bson:"email"`

	// Role indicates the user's authorization level
	// within the system ("admin", "inspector" or "viewer").
	Role string `json:"role" bson:"role"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" bson:"password"`

	// ResetOtpHash is the bcrypt hash of the pending password-reset OTP,
	// empty when no reset is in progress.
	ResetOtpHash string `json:"-" bson:"resetOtpHash,omitempty"`

	// ResetOtpExpire is the time after which the pending OTP is rejected.
	ResetOtpExpire *time.Time `json:"-" bson:"resetOtpExpire,omitempty"`

	// IsResetOtpVerified is set once the pending OTP has been checked,
	// gating issuance of the signed reset token.
	IsResetOtpVerified bool `json:"-" bson:"isResetOtpVerified"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}
