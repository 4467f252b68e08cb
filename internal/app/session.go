package app

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"pool-quiz-service/internal/domain"
)

// Settings holds the per-session game tuning knobs.
type Settings struct {
	QuestionDuration int           // seconds allotted per question
	LobbyTTL         time.Duration // how long a PIN stays joinable
	RevealDelay      time.Duration // pause between answer reveal and scoreboard
}

const (
	defaultQuestionDuration = 15
	defaultLobbyTTL         = 30 * time.Minute
	defaultRevealDelay      = 3 * time.Second
)

func (s Settings) withDefaults() Settings {
	if s.QuestionDuration <= 0 {
		s.QuestionDuration = defaultQuestionDuration
	}
	if s.LobbyTTL <= 0 {
		s.LobbyTTL = defaultLobbyTTL
	}
	if s.RevealDelay <= 0 {
		s.RevealDelay = defaultRevealDelay
	}
	return s
}

// Session is the authoritative state of one live game. Every mutation for a
// PIN goes through this one mutex, so racing writers (concurrent submissions,
// the timer's timeout transition) serialize here and never contend with other
// PINs.
type Session struct {
	pin       string
	quizID    string
	hostToken string
	clock     clockwork.Clock

	mu                sync.Mutex
	status            domain.SessionStatus
	index             int // cursor into the quiz's ordered question list
	questionDuration  int
	questionStartedAt *time.Time
	createdAt         time.Time
	expiresAt         time.Time
	order             []string // nicknames in join order
	players           map[string]*domain.Player
	answers           []domain.AnswerRecord
}

// NewSession builds a WAITING session for a freshly generated PIN.
func NewSession(pin, quizID string, cfg Settings, clock clockwork.Clock) *Session {
	cfg = cfg.withDefaults()
	now := clock.Now()
	return &Session{
		pin:              pin,
		quizID:           quizID,
		hostToken:        uuid.NewString(),
		clock:            clock,
		status:           domain.StatusWaiting,
		questionDuration: cfg.QuestionDuration,
		createdAt:        now,
		expiresAt:        now.Add(cfg.LobbyTTL),
		players:          make(map[string]*domain.Player),
	}
}

func (s *Session) Pin() string       { return s.pin }
func (s *Session) QuizID() string    { return s.quizID }
func (s *Session) HostToken() string { return s.hostToken }

// Snapshot returns a copy of the session's current state.
func (s *Session) Snapshot() domain.GameSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := domain.GameSession{
		Pin:                  s.pin,
		QuizID:               s.quizID,
		Status:               s.status,
		CurrentQuestionIndex: s.index,
		QuestionDuration:     s.questionDuration,
		CreatedAt:            s.createdAt,
		ExpiresAt:            s.expiresAt,
	}
	if s.questionStartedAt != nil {
		started := *s.questionStartedAt
		snap.QuestionStartedAt = &started
	}
	return snap
}

func (s *Session) Status() domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Expired reports whether the lobby lifetime has passed.
func (s *Session) Expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt.Before(now)
}

// Join registers a new player while the lobby is open. Nickname equality is
// case-sensitive.
func (s *Session) Join(nickname string) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusWaiting {
		return domain.Player{}, domain.ErrGameAlreadyStarted
	}
	if _, taken := s.players[nickname]; taken {
		return domain.Player{}, domain.ErrDuplicateNickname
	}

	player := &domain.Player{
		Pin:      s.pin,
		Nickname: nickname,
		JoinedAt: s.clock.Now(),
	}
	s.players[nickname] = player
	s.order = append(s.order, nickname)
	return *player, nil
}

// Players returns the roster in join order.
func (s *Session) Players() []domain.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Player, 0, len(s.order))
	for _, nickname := range s.order {
		out = append(out, *s.players[nickname])
	}
	return out
}

// Scoreboard returns players ordered by score, earlier joiners first on ties.
func (s *Session) Scoreboard() []domain.ScoreboardEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]domain.ScoreboardEntry, 0, len(s.order))
	for _, nickname := range s.order {
		entries = append(entries, domain.ScoreboardEntry{
			Nickname: nickname,
			Score:    s.players[nickname].Score,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	return entries
}

// Answers returns a copy of the answer records collected so far.
func (s *Session) Answers() []domain.AnswerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AnswerRecord, len(s.answers))
	copy(out, s.answers)
	return out
}

// SubmitAnswer applies one player's submission for the current round.
//
// Mid-round races are not faults: a submission after the game finished, after
// the deadline, by an unregistered nickname, or by a player who already
// answered is dropped silently and reported as allAnswered=false. An accepted
// correct answer earns 100 points plus a speed bonus of up to 100, truncated.
// When the last outstanding player answers, the session transitions to RESULT
// and exactly that call observes allAnswered=true.
func (s *Session) SubmitAnswer(question domain.Question, nickname, selectedOption string) (allAnswered bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.StatusFinished {
		return false
	}
	if s.questionStartedAt == nil {
		return false
	}

	now := s.clock.Now()
	elapsed := int64(now.Sub(*s.questionStartedAt) / time.Second)
	remaining := int64(s.questionDuration) - elapsed
	if remaining <= 0 {
		return false
	}

	player, ok := s.players[nickname]
	if !ok || player.Answered {
		return false
	}

	correct := strings.EqualFold(selectedOption, question.CorrectOption)
	awarded := 0
	if correct {
		awarded = 100 + int(remaining*100/int64(s.questionDuration))
		player.Score += awarded
	}

	s.answers = append(s.answers, domain.AnswerRecord{
		Pin:                 s.pin,
		Nickname:            nickname,
		QuestionID:          question.ID,
		SelectedOption:      selectedOption,
		Correct:             correct,
		SubmittedAt:         now,
		ResponseTimeSeconds: elapsed,
		AwardedPoints:       awarded,
	})
	player.Answered = true

	if len(s.players) == 0 {
		return false
	}
	for _, p := range s.players {
		if !p.Answered {
			return false
		}
	}
	s.status = domain.StatusResult
	return true
}

// BeginRound opens the next round: status goes LIVE and every answered flag
// resets. The question index is left alone; AdvanceIndex moves it after the
// round has been dispatched.
func (s *Session) BeginRound() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = domain.StatusLive
	for _, p := range s.players {
		p.Answered = false
	}
}

// StampRoundStart records the dispatch instant the deadline is measured from.
func (s *Session) StampRoundStart(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questionStartedAt = &now
}

// AdvanceIndex moves the question cursor. Callers invoke it strictly after the
// round payload has been published so a concurrently firing timeout resolves
// against the question players are actually answering.
func (s *Session) AdvanceIndex() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index++
}

// Finish moves the session to its terminal state and clears answered flags.
// Answer records are kept until the session is destroyed.
func (s *Session) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = domain.StatusFinished
	for _, p := range s.players {
		p.Answered = false
	}
}
