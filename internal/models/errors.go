package models

import "errors"

var (
	// ErrNotFound means a referenced record or collection does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnsupportedFormat means the file extension is not in the allowed set.
	ErrUnsupportedFormat = errors.New("unsupported file type")
	// ErrEmptyContent means a document produced no chunks.
	ErrEmptyContent = errors.New("document produced no content chunks")
	// ErrUpstream wraps vector store, embedding and language model failures.
	ErrUpstream = errors.New("upstream failure")
	// ErrValidation means a request is missing fields or targets a record in the wrong state.
	ErrValidation = errors.New("validation error")
	// ErrInvalidTransition means a status update was not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrDispatch means a background task could not be enqueued.
	ErrDispatch = errors.New("task dispatch failed")
)
