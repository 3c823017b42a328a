package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/finparse-io/docinbox/constants"
)

// UploadedFile represents an uploaded file record for data transfer
// between layers. Mutated only by the lifecycle manager.
type UploadedFile struct {
	ID            uuid.UUID            `json:"id"`
	UserID        uuid.UUID            `json:"user_id"`
	Filename      string               `json:"filename"`
	MimeType      string               `json:"mime_type"`
	SizeBytes     int64                `json:"size_bytes"`
	StorageKey    string               `json:"storage_key"`
	Status        constants.FileStatus `json:"status"`
	FailureReason *string              `json:"failure_reason,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}
