// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	MaxParticipantIDLen = 64
	MaxDisplayNameLen   = 36

	// DefaultDisplayName labels a remote participant whose name never arrived.
	DefaultDisplayName = "Participant"
)

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
	ErrParticipantIDEmpty = errors.New("participant id empty")
	ErrParticipantIDLong  = errors.New("participant id too long")
)

// ParticipantID is assigned by the signaling server and is stable for one
// meeting membership.
type ParticipantID string

func (id ParticipantID) Validate() error {
	if id == "" {
		return ErrParticipantIDEmpty
	}
	if len(id) > MaxParticipantIDLen {
		return ErrParticipantIDLong
	}
	return nil
}

// NormalizeDisplayName trims the name and falls back to DefaultDisplayName.
// Over-long names are cut at MaxDisplayNameLen runes.
func NormalizeDisplayName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultDisplayName
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLen {
		return string([]rune(name)[:MaxDisplayNameLen])
	}
	return name
}

func ValidateDisplayName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrDisplayNameEmpty
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	return nil
}
