package models

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DocumentStatus is the ingestion state of a Document.
type DocumentStatus string

const (
	DocumentUploaded   DocumentStatus = "UPLOADED"
	DocumentProcessing DocumentStatus = "PROCESSING"
	DocumentCompleted  DocumentStatus = "COMPLETED"
	DocumentFailed     DocumentStatus = "FAILED"
)

var documentTransitions = map[DocumentStatus][]DocumentStatus{
	DocumentUploaded:   {DocumentProcessing},
	DocumentProcessing: {DocumentCompleted, DocumentFailed},
}

// CanTransition reports whether the ingestion graph allows s -> to.
func (s DocumentStatus) CanTransition(to DocumentStatus) bool {
	for _, next := range documentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s DocumentStatus) Terminal() bool {
	return len(documentTransitions[s]) == 0
}

// Document is an uploaded file and its ingestion state.
type Document struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	File              string         `gorm:"type:text;not null" json:"file"`
	Filename          string         `gorm:"type:varchar(255);not null" json:"filename"`
	Size              int64          `gorm:"not null;default:0" json:"size"`
	ContentType       string         `gorm:"type:varchar(255);not null;default:''" json:"content_type"`
	Checksum          string         `gorm:"type:varchar(64);not null;default:''" json:"checksum"`
	UploadedAt        time.Time      `gorm:"not null;index" json:"uploaded_at"`
	Status            DocumentStatus `gorm:"type:varchar(20);not null;default:'UPLOADED';index" json:"status"`
	ProcessingMessage *string        `gorm:"type:text" json:"processing_message"`
	ChunkCount        int            `gorm:"not null;default:0" json:"chunk_count"`

	QuestionAnswers []QuestionAnswer `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Document) TableName() string { return "documents" }

// Extension returns the lowercased file extension including the dot.
func (d *Document) Extension() string {
	return strings.ToLower(filepath.Ext(d.Filename))
}

// Collection names the vector-index collection owned by the document.
func (d *Document) Collection() string {
	return CollectionName(d.ID)
}

// CollectionName names the vector-index collection for a document id.
func CollectionName(documentID uuid.UUID) string {
	return documentID.String()
}
