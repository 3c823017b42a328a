// Package storage holds the raw uploaded documents. Metadata lives in
// the database; the store is a plain key-addressed blob holder.
package storage

import (
	"context"

	"github.com/google/uuid"
)

// Store persists document bytes under an opaque storage key.
type Store interface {
	// Put writes the document and returns the key to fetch it later.
	Put(ctx context.Context, userID uuid.UUID, filename string, data []byte) (string, error)

	// GetBytes loads a stored document in full. Parsers need whole
	// documents, so there is no streaming variant.
	GetBytes(ctx context.Context, key string) ([]byte, error)

	// GetBase64 loads a stored document encoded for inline transport
	// to a vision model.
	GetBase64(ctx context.Context, key string) (string, error)

	// Delete removes a stored document. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
}
