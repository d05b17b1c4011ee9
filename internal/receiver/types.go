package receiver

import (
	"fmt"
	"strings"
	"time"
)

// Type classifies a receiver.
type Type string

const (
	TypeSpeaker Type = "speaker"
	TypeDisplay Type = "display"
	TypeGroup   Type = "group"
)

// validTypes lists the receiver types accepted by Validate.
var validTypes = map[Type]bool{
	TypeSpeaker: true,
	TypeDisplay: true,
	TypeGroup:   true,
}

// Device is a playback receiver known to the hub.
type Device struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Type      Type      `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the fields required to supervise the receiver.
func (d Device) Validate() error {
	switch {
	case strings.TrimSpace(d.ID) == "":
		return fmt.Errorf("%w: id is required", ErrInvalidDevice)
	case strings.TrimSpace(d.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidDevice)
	case strings.TrimSpace(d.Address) == "":
		return fmt.Errorf("%w: address is required", ErrInvalidDevice)
	case !validTypes[d.Type]:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidDevice, d.Type)
	}
	return nil
}
