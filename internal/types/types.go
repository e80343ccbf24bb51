// Package types holds all shared data structures (models) used across
// the application. Keeping them in one place prevents import cycles —
// handlers, storage, codec and the service can all import types without
// depending on each other.
package types

// Student represents a student record in our system.
//
// Struct tags serve three purposes:
//
//  1. json:"..."     — controls how the field appears when encoded to JSON.
//
//  2. redis:"..."    — the field name inside the Redis hash (and the form
//     field name accepted by POST/PUT). The codec package decodes with it.
//
//  3. validate:"..." — rules checked by the go-playground/validator
//     package. The score range is a struct-level rule because it only
//     applies when a birthday is present (see service/record).
type Student struct {
	ID          string `json:"id"          redis:"id"          validate:"required"`
	Name        string `json:"name"        redis:"name"`
	Birthday    string `json:"birthday"    redis:"birthday"    validate:"omitempty,datetime=2006-01-02"`
	Description string `json:"description" redis:"description"`
	Score       int    `json:"score"       redis:"score"`
}

// Score bounds. Records outside this range are rejected on save when a
// birthday is given, and are left out of the listing count.
const (
	MinScore = 0
	MaxScore = 150
)
