// Package storage provides the data persistence layer for the application.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// Validation errors.
var (
	ErrNilContext       = errors.New("context cannot be nil")
	ErrEmptyString      = errors.New("string parameter cannot be empty")
	ErrNilParameter     = errors.New("parameter cannot be nil")
	ErrInvalidLocation  = errors.New("invalid location")
	ErrInvalidFieldName = errors.New("invalid field name")
	ErrInvalidGroup     = errors.New("invalid group")
)

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateLocation(loc model.Location) error {
	if !loc.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidLocation, loc)
	}
	return nil
}

// validateFieldName guards the JSON path built from a document field name.
func validateFieldName(name string) error {
	if !fieldNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidFieldName, name)
	}
	return nil
}

func validateFields(fields map[string]any) error {
	if fields == nil {
		return fmt.Errorf("%w: fields", ErrNilParameter)
	}
	return nil
}

func validateGroup(group *model.Group) error {
	if group == nil {
		return fmt.Errorf("%w: group", ErrNilParameter)
	}
	if strings.TrimSpace(group.OwnerID) == "" {
		return fmt.Errorf("%w: missing owner", ErrInvalidGroup)
	}
	if strings.TrimSpace(group.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidGroup)
	}
	return nil
}
