package app

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrEmptyChunks       = errors.New("no chunks generated from text")
	ErrEmptyText         = errors.New("no text could be extracted from document")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrOrgNotFound       = errors.New("organization not found")
	ErrUnsupportedFile   = errors.New("unsupported file type")
	ErrFileTooLarge      = errors.New("file too large")
	ErrStorageLimit      = errors.New("storage limit exceeded")
	ErrQuestionTooLong   = errors.New("question too long")
	ErrRetrieval         = errors.New("retrieval unavailable")
	ErrEmailExists       = errors.New("email already registered")
	ErrOrgNameExists     = errors.New("organization name already taken")
	ErrInvalidCredential = errors.New("invalid credentials")
	ErrUnauthenticated   = errors.New("authentication required")
)
