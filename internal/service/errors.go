package service

import (
	"errors"

	"github.com/baiweichihu/26b-website-sub001/internal/sentinel"
)

// Re-exported so handlers only depend on the service package.
var (
	ErrInvalidInput     = sentinel.ErrInvalidInput
	ErrPermissionDenied = sentinel.ErrPermissionDenied
	ErrNotFound         = sentinel.ErrNotFound
	ErrConflict         = sentinel.ErrConflict
	ErrStorage          = sentinel.ErrStorage
	ErrAuth             = sentinel.ErrAuth
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
)

type ValidationError = sentinel.ValidationError
