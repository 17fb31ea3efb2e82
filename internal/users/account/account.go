// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package account handles the signed-in user's view of their own account.

It provides the profile endpoints and session transparency: listing every
device that holds a refresh session and revoking any of them.

# Architecture

  - Domain: This package depends on the auth package for the User entity and
    on the session package for the device registry.
  - Security: Every endpoint requires an authenticated caller and only ever
    touches the caller's own rows.
*/
package account

import (
	"context"

	"github.com/taibuivan/gatekeeper/internal/users/auth"
)

// # Repository Contracts

// ProfileRepository is the subset of the account store this package needs.
//
// It is satisfied by [auth.UserRepository] implementations.
type ProfileRepository interface {
	FindByID(context context.Context, id string) (*auth.User, error)
	UpdateNickname(context context.Context, userID, nickname string) error
}

// # Field Names

const (
	FieldNickname = "nickname"
)
