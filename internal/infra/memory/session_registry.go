package memory

import (
	"math/rand"
	"strconv"
	"sync"
	"time"

	"pool-quiz-service/internal/app"
	"pool-quiz-service/internal/domain"
)

// SessionFactory builds the session object for a freshly allocated PIN.
// Injecting it keeps clock and game settings wiring out of the registry.
type SessionFactory func(pin, quizID string) *app.Session

// SessionRegistry is the in-memory implementation of app.SessionRegistry.
// The registry lock only guards the PIN table; per-session mutation serializes
// inside each app.Session, so different PINs never contend.
type SessionRegistry struct {
	factory SessionFactory

	mu       sync.RWMutex
	rnd      *rand.Rand
	sessions map[string]*app.Session
}

// maxPinAttempts bounds collision retries. At 9*10^5 possible PINs and a sane
// number of concurrent games this is practically unreachable.
const maxPinAttempts = 1000

func NewSessionRegistry(factory SessionFactory) *SessionRegistry {
	return &SessionRegistry{
		factory:  factory,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		sessions: make(map[string]*app.Session),
	}
}

func (r *SessionRegistry) Create(quizID string) (*app.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for attempt := 0; attempt < maxPinAttempts; attempt++ {
		pin := strconv.Itoa(100000 + r.rnd.Intn(900000))
		if _, taken := r.sessions[pin]; taken {
			continue
		}
		session := r.factory(pin, quizID)
		r.sessions[pin] = session
		return session, nil
	}
	return nil, domain.ErrPinSpaceExhausted
}

func (r *SessionRegistry) Get(pin string) (*app.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[pin]
	return session, ok
}

func (r *SessionRegistry) ActiveForQuiz(quizID string) []*app.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var active []*app.Session
	for _, session := range r.sessions {
		if session.QuizID() == quizID && session.Status() != domain.StatusFinished {
			active = append(active, session)
		}
	}
	return active
}

func (r *SessionRegistry) Pins() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pins := make([]string, 0, len(r.sessions))
	for pin := range r.sessions {
		pins = append(pins, pin)
	}
	return pins
}

// Delete removes the session for the PIN. Players and answer records live
// inside the session, so the cascade is the removal itself.
func (r *SessionRegistry) Delete(pin string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, pin)
}
