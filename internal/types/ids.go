package types

import (
	"time"

	"github.com/google/uuid"
)

// NewFormID generates a UUIDv7 form identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewFormID() FormID {
	return FormID(uuid.Must(uuid.NewV7()).String())
}

// NewEntryID generates a UUIDv7 entry identifier.
// Time-ordered IDs keep entries of one import clustered in the entries index.
func NewEntryID() EntryID {
	return EntryID(uuid.Must(uuid.NewV7()).String())
}

// ParseFormID validates and converts a string to FormID.
func ParseFormID(s string) (FormID, error) {
	_, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return FormID(s), nil
}

// ParseEntryID validates and converts a string to EntryID.
func ParseEntryID(s string) (EntryID, error) {
	_, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return EntryID(s), nil
}

// FormIDTime extracts the timestamp embedded in a UUIDv7 form ID.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func FormIDTime(id FormID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
