package dto

import (
	"time"
)

// LoginRequest for authentication.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse contains tokens and user info.
type LoginResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresAt    time.Time    `json:"expiresAt"`
	TokenType    string       `json:"tokenType"`
	User         UserResponse `json:"user"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	Username string   `json:"username"`
	FullName string   `json:"fullName,omitempty"`
	IsAdmin  bool     `json:"isAdmin"`
	Roles    []string `json:"roles,omitempty"`
}

// RefreshRequest exchanges a refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// RefreshResponse contains the new token pair.
type RefreshResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	TokenType    string    `json:"tokenType"`
}

// RegisterUserRequest creates a user account (admin only).
type RegisterUserRequest struct {
	Username string   `json:"username" binding:"required"`
	Password string   `json:"password" binding:"required,min=8"`
	FullName string   `json:"fullName"`
	IsAdmin  bool     `json:"isAdmin"`
	Roles    []string `json:"roles"`
}
