package repository

import "errors"

// Package repository contains data access layer abstractions.
// Implementations live in subpackages (e.g., postgres). Lookups that find nothing return sql.ErrNoRows.

// ErrDuplicate is returned when a unique constraint rejects a write.
var ErrDuplicate = errors.New("duplicate key")

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
