package phrase

import "errors"

// Domain errors for phrase resolution.
var (
	// ErrNotFound is returned when no catalog item matches the phrase.
	ErrNotFound = errors.New("phrase: no matching items")

	// ErrAmbiguousDevice is returned when the device name does not match
	// exactly one registered receiver.
	ErrAmbiguousDevice = errors.New("phrase: device name is ambiguous")

	// ErrUnknownSource is returned when no catalog is registered for the source.
	ErrUnknownSource = errors.New("phrase: unknown source")

	// ErrInvalidPhrase is returned when a phrase fails validation.
	ErrInvalidPhrase = errors.New("phrase: invalid phrase")
)
