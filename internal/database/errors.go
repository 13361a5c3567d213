package database

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrNotConnected  = errors.New("database not initialized")
	ErrInvalidRecord = errors.New("invalid build record")
)
