// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

// # Credential Constraints

const (
	// PasswordMinLength is the shortest accepted password.
	PasswordMinLength = 8

	// PasswordMaxLength matches the bcrypt input limit in bytes for ASCII passwords.
	PasswordMaxLength = 72

	// EmailMaxLength follows the RFC 5321 path limit.
	EmailMaxLength = 254

	// NicknameMaxLength bounds the display name.
	NicknameMaxLength = 50

	// TokenTypeBearer is the OAuth-style token_type returned with every pair.
	TokenTypeBearer = "Bearer"
)
