package receiver

import "errors"

// Domain errors for receiver operations.
var (
	// ErrDeviceNotFound is returned when a receiver does not exist.
	ErrDeviceNotFound = errors.New("receiver: device not found")

	// ErrDeviceExists is returned when creating a receiver whose ID is taken.
	ErrDeviceExists = errors.New("receiver: device already exists")

	// ErrAddressInUse is returned when a receiver's address is already
	// assigned to another receiver.
	ErrAddressInUse = errors.New("receiver: address already in use")

	// ErrInvalidDevice is returned when a receiver record fails validation.
	ErrInvalidDevice = errors.New("receiver: invalid device")

	// ErrRegistryRunning is returned by Start when supervisors are already running.
	ErrRegistryRunning = errors.New("receiver: registry already running")
)
