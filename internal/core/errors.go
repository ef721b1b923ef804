package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"pnj.com/jewelry-designer/internal/artifact"
	"pnj.com/jewelry-designer/internal/store"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUpstream     = errors.New("model service unavailable")
)

// ValidationError is ErrValidation with per-field messages.
type ValidationError struct {
	Fields map[string]string
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// fromArtifactError lifts an artifact validation problem into the service taxonomy.
func fromArtifactError(err error) error {
	var aerr *artifact.ValidationError
	if errors.As(err, &aerr) {
		return &ValidationError{Fields: aerr.Fields}
	}
	return err
}

// mapStoreError converts store sentinels into service sentinels.
func mapStoreError(err error, what string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%s %w", what, ErrNotFound)
	case errors.Is(err, store.ErrDuplicate):
		return fmt.Errorf("%s already exists: %w", what, ErrConflict)
	}
	return err
}

// UpstreamError is returned by Chat when the model could not answer. The user message and a
// synthetic assistant message have already been persisted and are carried here.
type UpstreamError struct {
	Cause            error
	ConversationID   string
	UserMessage      *store.Message
	AssistantMessage *store.Message
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("chat turn failed: %v", e.Cause)
}

func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstream, e.Cause}
}

func upstream(err error) error {
	if errors.Is(err, ErrUpstream) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUpstream, err)
}
