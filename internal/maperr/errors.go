// Package maperr defines the typed failures a map request can end in and
// their translation to HTTP status codes at the API boundary.
package maperr

import (
	"errors"
	"fmt"
	"net/http"
)

// NotFoundDatasetError reports that no grid dataset exists for an owner and
// kind in any year.
type NotFoundDatasetError struct {
	OwnerID string
	Kind    string
	Year    int
}

func (e *NotFoundDatasetError) Error() string {
	return fmt.Sprintf("no %s data available for %s (requested year %d)", e.Kind, e.OwnerID, e.Year)
}

// NewNotFoundDataset builds a NotFoundDatasetError.
func NewNotFoundDataset(ownerID, kind string, year int) *NotFoundDatasetError {
	return &NotFoundDatasetError{OwnerID: ownerID, Kind: kind, Year: year}
}

// DependencyMissingError reports a formula prerequisite that could not be
// resolved. Exactly one of Material or Indicator is set.
type DependencyMissingError struct {
	Material  string
	Indicator string
	Err       error
}

func (e *DependencyMissingError) Error() string {
	if e.Material != "" {
		return fmt.Sprintf("missing required material dataset: %s", e.Material)
	}
	return fmt.Sprintf("missing required indicator dependency: %s", e.Indicator)
}

func (e *DependencyMissingError) Unwrap() error {
	return e.Err
}

// NewMissingMaterial reports a missing material dataset kind.
func NewMissingMaterial(kind string, cause error) *DependencyMissingError {
	return &DependencyMissingError{Material: kind, Err: cause}
}

// NewMissingIndicator reports a missing indicator dependency.
func NewMissingIndicator(code string, cause error) *DependencyMissingError {
	return &DependencyMissingError{Indicator: code, Err: cause}
}

// UnsupportedIndicatorError reports an indicator code with no registered
// formula. It is a configuration error and is never retried.
type UnsupportedIndicatorError struct {
	Code string
}

func (e *UnsupportedIndicatorError) Error() string {
	return fmt.Sprintf("unsupported indicator: %q", e.Code)
}

// StorageExecutionError wraps a failure of the delegated join/aggregation.
type StorageExecutionError struct {
	Op  string
	Err error
}

func (e *StorageExecutionError) Error() string {
	return fmt.Sprintf("map could not be generated: %s: %v", e.Op, e.Err)
}

func (e *StorageExecutionError) Unwrap() error {
	return e.Err
}

// NewStorageExecution wraps err as a StorageExecutionError for op.
func NewStorageExecution(op string, err error) *StorageExecutionError {
	return &StorageExecutionError{Op: op, Err: err}
}

// InvalidRequestError reports request parameters rejected before any
// dataset is touched.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewInvalidRequest builds an InvalidRequestError.
func NewInvalidRequest(field, reason string) *InvalidRequestError {
	return &InvalidRequestError{Field: field, Reason: reason}
}

// IsNotFound returns true if err (or any error in its chain) belongs to the
// not-found class: a missing dataset or a missing dependency.
func IsNotFound(err error) bool {
	var nf *NotFoundDatasetError
	if errors.As(err, &nf) {
		return true
	}
	var dm *DependencyMissingError
	return errors.As(err, &dm)
}

// HTTPStatus maps err to the status code the API boundary responds with.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var invalid *InvalidRequestError
	if errors.As(err, &invalid) {
		return http.StatusBadRequest
	}

	// A dependency error may wrap a NotFoundDatasetError; both are 404.
	if IsNotFound(err) {
		return http.StatusNotFound
	}

	var storage *StorageExecutionError
	if errors.As(err, &storage) {
		return http.StatusServiceUnavailable
	}

	return http.StatusInternalServerError
}

// PublicMessage returns the message safe to show to API callers. Storage
// failures collapse to a generic message; the full cause is only logged.
func PublicMessage(err error) string {
	var storage *StorageExecutionError
	if errors.As(err, &storage) {
		return "map could not be generated"
	}
	if HTTPStatus(err) == http.StatusInternalServerError {
		var unsupported *UnsupportedIndicatorError
		if errors.As(err, &unsupported) {
			return unsupported.Error()
		}
		return "internal error"
	}
	return rootMessage(err)
}

// rootMessage returns the message of the first typed error in the chain so
// eris wrap prefixes stay out of responses.
func rootMessage(err error) string {
	var nf *NotFoundDatasetError
	var dm *DependencyMissingError
	var invalid *InvalidRequestError
	switch {
	case errors.As(err, &dm):
		return dm.Error()
	case errors.As(err, &nf):
		return nf.Error()
	case errors.As(err, &invalid):
		return invalid.Error()
	}
	return err.Error()
}
