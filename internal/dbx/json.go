package dbx

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// NullJSON renders an optional value as a nullable JSON column value.
func NullJSON[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode json column: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// FromNullJSON is the inverse of NullJSON.
func FromNullJSON[T any](v sql.NullString) (*T, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	var out T
	if err := json.Unmarshal([]byte(v.String), &out); err != nil {
		return nil, fmt.Errorf("decode json column: %w", err)
	}
	return &out, nil
}
