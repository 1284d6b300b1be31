package app

import (
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

// SessionCloser is the only way the roster ends a participant's session.
type SessionCloser interface {
	Close(id domain.ParticipantID) error
}

type ParticipantRecord struct {
	ID          domain.ParticipantID
	DisplayName string
	IsLocal     bool
	Session     *PeerSession
	// Rendered is set once the participant's stream reached the render surface.
	Rendered bool
}

type ParticipantView struct {
	ID          domain.ParticipantID `json:"id"`
	DisplayName string               `json:"displayName"`
	IsLocal     bool                 `json:"isLocal"`
}

// RosterStore is the set of participants believed present in the meeting.
// It is owned by the loop goroutine and takes no locks.
type RosterStore struct {
	closer  SessionCloser
	localID domain.ParticipantID
	records map[domain.ParticipantID]*ParticipantRecord
	// remote ids in join order
	order []domain.ParticipantID
}

func NewRosterStore(local domain.Identity, closer SessionCloser) *RosterStore {
	r := &RosterStore{
		closer:  closer,
		localID: local.LocalUserID,
		records: make(map[domain.ParticipantID]*ParticipantRecord),
	}
	r.records[local.LocalUserID] = &ParticipantRecord{
		ID:          local.LocalUserID,
		DisplayName: domain.NormalizeDisplayName(local.LocalUserName),
		IsLocal:     true,
	}
	return r
}

func (r *RosterStore) LocalID() domain.ParticipantID { return r.localID }

// AddOrUpdate inserts a record without a session, or renames an existing one.
// It reports whether the record is new.
func (r *RosterStore) AddOrUpdate(id domain.ParticipantID, displayName string) bool {
	name := domain.NormalizeDisplayName(displayName)
	if rec, ok := r.records[id]; ok {
		if displayName != "" && rec.DisplayName != name {
			rec.DisplayName = name
			log.Info().Str("module", "app.roster").Str("participant", string(id)).Str("name", name).Msg("updated display name")
		}
		return false
	}
	r.records[id] = &ParticipantRecord{ID: id, DisplayName: name}
	r.order = append(r.order, id)
	log.Info().Str("module", "app.roster").Str("participant", string(id)).Str("name", name).Msg("participant added")
	return true
}

func (r *RosterStore) AttachSession(id domain.ParticipantID, s *PeerSession) error {
	rec, ok := r.records[id]
	if !ok || rec.IsLocal {
		return sessionErr("attach-session", id, ErrUnknownParticipant)
	}
	rec.Session = s
	return nil
}

// DetachSession clears the session reference if it still points at s.
func (r *RosterStore) DetachSession(id domain.ParticipantID, s *PeerSession) bool {
	rec, ok := r.records[id]
	if !ok || rec.Session != s {
		return false
	}
	rec.Session = nil
	return true
}

// Remove closes the participant's session, then forgets the participant.
// Absent ids and the local participant are left alone.
func (r *RosterStore) Remove(id domain.ParticipantID) bool {
	rec, ok := r.records[id]
	if !ok || rec.IsLocal {
		return false
	}
	if rec.Session != nil {
		if err := r.closer.Close(id); err != nil {
			log.Warn().Err(err).Str("module", "app.roster").Str("participant", string(id)).Msg("session close failed")
		}
		rec.Session = nil
	}
	delete(r.records, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	log.Info().Str("module", "app.roster").Str("participant", string(id)).Msg("participant removed")
	return true
}

// Get returns a copy of the record for id.
func (r *RosterStore) Get(id domain.ParticipantID) (ParticipantRecord, bool) {
	rec, ok := r.records[id]
	if !ok {
		return ParticipantRecord{}, false
	}
	return *rec, true
}

// MarkRendered reports whether this is the first render for id.
func (r *RosterStore) MarkRendered(id domain.ParticipantID) bool {
	rec, ok := r.records[id]
	if !ok || rec.Rendered {
		return false
	}
	rec.Rendered = true
	return true
}

// ClearRendered reports whether id had been rendered.
func (r *RosterStore) ClearRendered(id domain.ParticipantID) bool {
	rec, ok := r.records[id]
	if !ok || !rec.Rendered {
		return false
	}
	rec.Rendered = false
	return true
}

// Snapshot lists the local participant first, then remote ones in join order.
func (r *RosterStore) Snapshot() []ParticipantView {
	out := make([]ParticipantView, 0, len(r.records))
	if local, ok := r.records[r.localID]; ok {
		out = append(out, ParticipantView{ID: local.ID, DisplayName: local.DisplayName, IsLocal: true})
	}
	for _, id := range r.order {
		rec := r.records[id]
		out = append(out, ParticipantView{ID: rec.ID, DisplayName: rec.DisplayName})
	}
	return out
}

func (r *RosterStore) Remotes() []domain.ParticipantID {
	return append([]domain.ParticipantID(nil), r.order...)
}

func (r *RosterStore) Len() int { return len(r.records) }
