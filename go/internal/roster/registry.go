// Package roster tracks connected attendees, enforces display-name uniqueness
// and holds the permanent kick list. State lives for the process lifetime only.
package roster

import (
	"sort"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livepoll/go/internal/models"
	"github.com/rs/zerolog/log"
)

type Registry struct {
	mu           sync.RWMutex
	clock        clockwork.Clock
	participants map[string]*models.Participant // by student id
	byConnection map[string]string              // connection id -> student id
	kicked       map[string]struct{}
}

func NewRegistry(clock clockwork.Clock) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		clock:        clock,
		participants: make(map[string]*models.Participant),
		byConnection: make(map[string]string),
		kicked:       make(map[string]struct{}),
	}
}

// Admit registers studentID on connID. It returns nil if the student was
// kicked. A student already present on another connection is moved to connID.
func (r *Registry) Admit(studentID, name, connID string) *models.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, kicked := r.kicked[studentID]; kicked {
		return nil
	}

	if existing, ok := r.participants[studentID]; ok && existing.ConnectionID != connID {
		delete(r.byConnection, existing.ConnectionID)
	}
	if prevStudent, ok := r.byConnection[connID]; ok && prevStudent != studentID {
		delete(r.participants, prevStudent)
	}

	p := &models.Participant{
		StudentID:    studentID,
		Name:         name,
		ConnectionID: connID,
		JoinedAt:     r.clock.Now(),
	}
	r.participants[studentID] = p
	r.byConnection[connID] = studentID

	log.Debug().
		Str("student_id", studentID).
		Str("connection_id", connID).
		Int("participants", len(r.participants)).
		Msg("participant admitted")

	cp := *p
	return &cp
}

// IsNameTaken compares trimmed, case-folded names against every participant
// except excludingStudentID.
func (r *Registry) IsNameTaken(name, excludingStudentID string) bool {
	normalized := normalizeName(name)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, p := range r.participants {
		if id == excludingStudentID {
			continue
		}
		if normalizeName(p.Name) == normalized {
			return true
		}
	}
	return false
}

// RemoveByConnection detaches whoever is attached to connID. A participant who
// already rejoined on a newer connection is left alone.
func (r *Registry) RemoveByConnection(connID string) *models.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	studentID, ok := r.byConnection[connID]
	if !ok {
		return nil
	}
	delete(r.byConnection, connID)

	p, ok := r.participants[studentID]
	if !ok || p.ConnectionID != connID {
		return nil
	}
	delete(r.participants, studentID)

	cp := *p
	return &cp
}

// Kick permanently bans studentID and evicts the current participant, if any,
// so the caller can close its connection.
func (r *Registry) Kick(studentID string) *models.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.kicked[studentID] = struct{}{}

	p, ok := r.participants[studentID]
	if !ok {
		return nil
	}
	delete(r.participants, studentID)
	delete(r.byConnection, p.ConnectionID)

	log.Info().
		Str("student_id", studentID).
		Str("connection_id", p.ConnectionID).
		Msg("participant kicked")

	cp := *p
	return &cp
}

func (r *Registry) IsKicked(studentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, kicked := r.kicked[studentID]
	return kicked
}

func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// Get returns the participant for studentID, or nil.
func (r *Registry) Get(studentID string) *models.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[studentID]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// List returns participants ordered by join time.
func (r *Registry) List() []models.Participant {
	r.mu.RLock()
	list := make([]models.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		list = append(list, *p)
	}
	r.mu.RUnlock()

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].StudentID < list[j].StudentID
		}
		return list[i].JoinedAt.Before(list[j].JoinedAt)
	})
	return list
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
