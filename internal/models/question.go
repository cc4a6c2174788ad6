package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// QuestionStatus is the answering state of a QuestionAnswer.
type QuestionStatus string

const (
	QuestionPending   QuestionStatus = "PENDING"
	QuestionAnswering QuestionStatus = "ANSWERING"
	QuestionCompleted QuestionStatus = "COMPLETED"
	QuestionFailed    QuestionStatus = "FAILED"
)

var questionTransitions = map[QuestionStatus][]QuestionStatus{
	QuestionPending:   {QuestionAnswering},
	QuestionAnswering: {QuestionCompleted, QuestionFailed},
}

// CanTransition reports whether the answering graph allows s -> to.
func (s QuestionStatus) CanTransition(to QuestionStatus) bool {
	for _, next := range questionTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s QuestionStatus) Terminal() bool {
	return len(questionTransitions[s]) == 0
}

// Citation is a retrieved chunk excerpt returned alongside an answer.
type Citation struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

// QuestionAnswer is a question asked against a completed Document.
type QuestionAnswer struct {
	ID              uuid.UUID                     `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID      uuid.UUID                     `gorm:"type:uuid;not null;index" json:"document"`
	Question        string                        `gorm:"type:text;not null" json:"question"`
	Answer          *string                       `gorm:"type:text" json:"answer"`
	SourceDocuments datatypes.JSONSlice[Citation] `json:"source_documents"`
	CreatedAt       time.Time                     `gorm:"not null;index" json:"created_at"`
	Status          QuestionStatus                `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	ErrorMessage    *string                       `gorm:"type:text" json:"error_message"`

	Document *Document `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"-"`
}

func (QuestionAnswer) TableName() string { return "question_answers" }

// DocumentFilename returns the owning document's filename when it was loaded.
func (q *QuestionAnswer) DocumentFilename() string {
	if q.Document == nil {
		return ""
	}
	return q.Document.Filename
}
