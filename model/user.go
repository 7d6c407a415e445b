package model

import "time"

// User is an owner's login credential. The key is stored as a bcrypt hash.
type User struct {
	Username  string    `json:"username" bson:"username"`
	KeyHash   string    `json:"keyHash" bson:"keyHash"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	LastLogin time.Time `json:"lastLogin,omitempty" bson:"lastLogin,omitempty"`
}

type SignupRequest struct {
	Username string `json:"username" validate:"required,alphanum,min=3,max=32"`
	Key      string `json:"key" validate:"required"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Key      string `json:"key" validate:"required"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Profile   Profile   `json:"profile"`
}
