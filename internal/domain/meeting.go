package domain

import "errors"

var ErrMeetingIDEmpty = errors.New("meeting id empty")

type MeetingID string

// Identity is who we are inside one meeting. It never changes after startup.
type Identity struct {
	MeetingID     MeetingID
	LocalUserID   ParticipantID
	LocalUserName string
}

// NewIdentity avoids raw literals in adapters and keeps validation in one place.
// userID must be the id the signaling server knows us by; it is what the
// server echoes back in group broadcasts.
func NewIdentity(meeting, userID, userName string) (Identity, error) {
	if meeting == "" {
		return Identity{}, ErrMeetingIDEmpty
	}
	id := ParticipantID(userID)
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	if err := ValidateDisplayName(userName); err != nil {
		return Identity{}, err
	}
	return Identity{
		MeetingID:     MeetingID(meeting),
		LocalUserID:   id,
		LocalUserName: userName,
	}, nil
}
