package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type DocumentIngestPayload struct {
	DocumentID uuid.UUID `json:"document_id"`
}

type DocumentDeletePayload struct {
	DocumentID uuid.UUID `json:"document_id"`
	File       string    `json:"file"`
}

type QuestionAnswerPayload struct {
	QuestionID uuid.UUID `json:"question_id"`
	DocumentID uuid.UUID `json:"document_id"`
	Question   string    `json:"question"`
}

type QuestionDeletePayload struct {
	QuestionID uuid.UUID `json:"question_id"`
}

func NewDocumentIngestTask(documentID uuid.UUID) (*Task, error) {
	return newTask(TaskTypeDocumentIngest, QueueDefault, DocumentIngestPayload{DocumentID: documentID})
}

func NewDocumentDeleteTask(documentID uuid.UUID, file string) (*Task, error) {
	return newTask(TaskTypeDocumentDelete, QueueLow, DocumentDeletePayload{DocumentID: documentID, File: file})
}

func NewQuestionAnswerTask(questionID, documentID uuid.UUID, question string) (*Task, error) {
	return newTask(TaskTypeQuestionAnswer, QueueCritical, QuestionAnswerPayload{
		QuestionID: questionID,
		DocumentID: documentID,
		Question:   question,
	})
}

func NewQuestionDeleteTask(questionID uuid.UUID) (*Task, error) {
	return newTask(TaskTypeQuestionDelete, QueueLow, QuestionDeletePayload{QuestionID: questionID})
}

func newTask(taskType, queueName string, payload interface{}) (*Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", taskType, err)
	}
	return &Task{
		ID:        uuid.NewString(),
		Type:      taskType,
		Queue:     queueName,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}, nil
}
