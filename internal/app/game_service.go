package app

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"pool-quiz-service/internal/domain"
)

// SessionRegistry abstracts how live sessions are stored (in-memory, Redis-backed).
// It owns PIN uniqueness; everything under one PIN serializes on that PIN's
// Session.
type SessionRegistry interface {
	// Create generates a fresh unique 6-digit PIN and stores a new session for it.
	Create(quizID string) (*Session, error)
	Get(pin string) (*Session, bool)
	// ActiveForQuiz returns the non-FINISHED sessions for a quiz.
	ActiveForQuiz(quizID string) []*Session
	Pins() []string
	// Delete removes the session and, with it, its players and answer records.
	Delete(pin string)
}

// QuizRepository loads read-only quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Broadcaster pushes a payload to every current subscriber of a PIN topic.
// Fire-and-forget: no delivery guarantee to late subscribers.
type Broadcaster interface {
	Publish(pin, topic string, payload any)
}

// Per-PIN broadcast topics.
const (
	TopicQuestion   = "question"
	TopicTimer      = "timer"
	TopicResult     = "result"
	TopicScoreboard = "scoreboard"
	TopicEnd        = "end"
)

// EndSignal is the sentinel published on the end topic when a game terminates.
const EndSignal = "END"

// GameService is the live game engine: the state machine behind start, join,
// submit-answer, round advancement, and teardown.
type GameService struct {
	registry    SessionRegistry
	quizzes     QuizRepository
	broadcaster Broadcaster
	clock       clockwork.Clock
	settings    Settings
	timer       *RoundTimer
	log         zerolog.Logger
}

func NewGameService(registry SessionRegistry, quizzes QuizRepository, broadcaster Broadcaster, clock clockwork.Clock, settings Settings, log zerolog.Logger) *GameService {
	g := &GameService{
		registry:    registry,
		quizzes:     quizzes,
		broadcaster: broadcaster,
		clock:       clock,
		settings:    settings.withDefaults(),
		log:         log,
	}
	g.timer = newRoundTimer(registry, broadcaster, clock, log, g.handleRoundTimeout, g.forceEnd)
	return g
}

// Timer exposes the engine's round timer for transports that stop it directly.
func (g *GameService) Timer() *RoundTimer {
	return g.timer
}

// StartGame force-finishes any other active session for the quiz and opens a
// fresh WAITING lobby. The returned host token authorizes host-only actions.
func (g *GameService) StartGame(ctx context.Context, quizID string) (domain.GameSession, string, error) {
	if _, err := g.quizzes.GetQuiz(ctx, quizID); err != nil {
		return domain.GameSession{}, "", err
	}

	for _, prior := range g.registry.ActiveForQuiz(quizID) {
		g.timer.Stop(prior.Pin())
		prior.Finish()
		g.log.Info().Str("pin", prior.Pin()).Str("quiz_id", quizID).Msg("force-finished prior session")
	}

	session, err := g.registry.Create(quizID)
	if err != nil {
		return domain.GameSession{}, "", err
	}
	g.log.Info().Str("pin", session.Pin()).Str("quiz_id", quizID).Msg("game started")
	return session.Snapshot(), session.HostToken(), nil
}

// Join registers a nickname for the PIN's lobby. An expired PIN is destroyed
// as a side effect and reported as invalid.
func (g *GameService) Join(ctx context.Context, pin, nickname string) (domain.Player, error) {
	session, ok := g.registry.Get(pin)
	if !ok {
		return domain.Player{}, domain.ErrInvalidPin
	}
	if session.Expired(g.clock.Now()) {
		g.DestroySession(pin)
		return domain.Player{}, domain.ErrInvalidPin
	}

	quiz, err := g.quizzes.GetQuiz(ctx, session.QuizID())
	if err != nil {
		return domain.Player{}, err
	}
	if !quiz.Valid() {
		return domain.Player{}, domain.ErrQuizMisconfigured
	}

	player, err := session.Join(nickname)
	if err != nil {
		return domain.Player{}, err
	}
	g.log.Info().Str("pin", pin).Str("nickname", nickname).Msg("player joined")
	return player, nil
}

// SubmitAnswer records one player's answer for the current round and reports
// whether that submission closed the round. Late, duplicate, or post-deadline
// submissions are silent no-ops, not errors.
func (g *GameService) SubmitAnswer(ctx context.Context, pin, nickname, questionID, selectedOption string) (bool, error) {
	session, ok := g.registry.Get(pin)
	if !ok {
		return false, domain.ErrInvalidPin
	}

	quiz, err := g.quizzes.GetQuiz(ctx, session.QuizID())
	if err != nil {
		return false, err
	}
	question, ok := findQuestion(quiz, questionID)
	if !ok {
		return false, domain.ErrQuestionNotFound
	}

	return session.SubmitAnswer(question, nickname, selectedOption), nil
}

// Session returns a snapshot of the PIN's current state.
func (g *GameService) Session(pin string) (domain.GameSession, error) {
	session, ok := g.registry.Get(pin)
	if !ok {
		return domain.GameSession{}, domain.ErrInvalidPin
	}
	return session.Snapshot(), nil
}

// Players returns the PIN's roster in join order.
func (g *GameService) Players(pin string) ([]domain.Player, error) {
	session, ok := g.registry.Get(pin)
	if !ok {
		return nil, domain.ErrInvalidPin
	}
	return session.Players(), nil
}

// Scoreboard returns the PIN's score-ordered standings.
func (g *GameService) Scoreboard(pin string) ([]domain.ScoreboardEntry, error) {
	session, ok := g.registry.Get(pin)
	if !ok {
		return nil, domain.ErrInvalidPin
	}
	return session.Scoreboard(), nil
}

// Answers returns the answer records collected for the PIN so far.
func (g *GameService) Answers(pin string) ([]domain.AnswerRecord, error) {
	session, ok := g.registry.Get(pin)
	if !ok {
		return nil, domain.ErrInvalidPin
	}
	return session.Answers(), nil
}

// HostToken returns the opaque token issued to the PIN's host at start.
func (g *GameService) HostToken(pin string) (string, error) {
	session, ok := g.registry.Get(pin)
	if !ok {
		return "", domain.ErrInvalidPin
	}
	return session.HostToken(), nil
}

// PrepareNextQuestion flips the session LIVE and resets answered flags. The
// question cursor is untouched.
func (g *GameService) PrepareNextQuestion(pin string) error {
	session, ok := g.registry.Get(pin)
	if !ok {
		return domain.ErrInvalidPin
	}
	session.BeginRound()
	return nil
}

// GetNextQuestion reads the round payload at the current cursor without moving
// it. Past the end of the quiz it marks the session FINISHED and returns nil.
func (g *GameService) GetNextQuestion(ctx context.Context, pin string) (*domain.QuestionRound, error) {
	session, ok := g.registry.Get(pin)
	if !ok {
		return nil, domain.ErrInvalidPin
	}
	quiz, err := g.quizzes.GetQuiz(ctx, session.QuizID())
	if err != nil {
		return nil, err
	}

	index := session.Index()
	if index >= len(quiz.Questions) {
		session.Finish()
		return nil, nil
	}
	question := quiz.Questions[index]
	return &domain.QuestionRound{
		QuestionID:     question.ID,
		Content:        question.Content,
		Options:        question.Options,
		QuestionNumber: index + 1,
		TotalQuestions: len(quiz.Questions),
	}, nil
}

// AdvanceIndex moves the question cursor; invoked strictly after the round has
// been dispatched.
func (g *GameService) AdvanceIndex(pin string) error {
	session, ok := g.registry.Get(pin)
	if !ok {
		return domain.ErrInvalidPin
	}
	session.AdvanceIndex()
	return nil
}

// EndGame marks the session FINISHED, keeping answer records for reporting
// until the session is destroyed.
func (g *GameService) EndGame(pin string) error {
	session, ok := g.registry.Get(pin)
	if !ok {
		return domain.ErrInvalidPin
	}
	session.Finish()
	g.log.Info().Str("pin", pin).Msg("game ended")
	return nil
}

// DestroySession irreversibly deletes the session, its players, and its answer
// records as one unit.
func (g *GameService) DestroySession(pin string) {
	g.timer.Stop(pin)
	g.registry.Delete(pin)
	g.log.Info().Str("pin", pin).Msg("session destroyed")
}

// NextRound is the host's advance action: open the round, dispatch the
// question, start the countdown, and only then move the cursor. A nil round
// means the quiz ran out of questions and the game is over.
func (g *GameService) NextRound(ctx context.Context, pin string) error {
	if err := g.PrepareNextQuestion(pin); err != nil {
		return err
	}
	round, err := g.GetNextQuestion(ctx, pin)
	if err != nil {
		return err
	}
	if round == nil {
		g.timer.Stop(pin)
		g.broadcaster.Publish(pin, TopicEnd, EndSignal)
		g.log.Info().Str("pin", pin).Msg("quiz exhausted, game over")
		return nil
	}

	g.broadcaster.Publish(pin, TopicQuestion, round)
	g.timer.Start(pin)
	return g.AdvanceIndex(pin)
}

// CompleteRound is the all-answered fast finish: the countdown stops and the
// reveal runs immediately instead of waiting for the deadline.
func (g *GameService) CompleteRound(pin string) {
	g.timer.Stop(pin)
	g.revealRound(pin)
}

// FinishGame is the host's end action: stop the clock, finish the session,
// publish the final standings, and tear everything down.
func (g *GameService) FinishGame(pin string) error {
	session, ok := g.registry.Get(pin)
	if !ok {
		return domain.ErrInvalidPin
	}
	g.timer.Stop(pin)
	session.Finish()

	final := session.Scoreboard()
	g.DestroySession(pin)

	g.broadcaster.Publish(pin, TopicScoreboard, final)
	g.broadcaster.Publish(pin, TopicEnd, EndSignal)
	return nil
}

// SweepExpired destroys WAITING sessions whose lobby lifetime has passed and
// returns how many were reclaimed.
func (g *GameService) SweepExpired() int {
	now := g.clock.Now()
	reclaimed := 0
	for _, pin := range g.registry.Pins() {
		session, ok := g.registry.Get(pin)
		if !ok {
			continue
		}
		if session.Status() == domain.StatusWaiting && session.Expired(now) {
			g.DestroySession(pin)
			reclaimed++
		}
	}
	return reclaimed
}

// handleRoundTimeout runs when a round's deadline passes with players still
// outstanding.
func (g *GameService) handleRoundTimeout(pin string) {
	g.revealRound(pin)
}

// revealRound publishes the correct option for the round last dispatched, then
// the updated scoreboard after a short grace so clients can render the reveal.
// If the round can no longer be resolved the game is force-ended instead.
func (g *GameService) revealRound(pin string) {
	question, ok := g.currentQuestion(pin)
	if !ok {
		g.forceEnd(pin)
		return
	}

	g.broadcaster.Publish(pin, TopicResult, question.CorrectOption)

	go func() {
		<-g.clock.After(g.settings.RevealDelay)
		session, ok := g.registry.Get(pin)
		if !ok {
			return
		}
		g.broadcaster.Publish(pin, TopicScoreboard, session.Scoreboard())
	}()
}

// currentQuestion resolves the round last dispatched: the cursor has already
// advanced past it, so it sits at index-1.
func (g *GameService) currentQuestion(pin string) (domain.Question, bool) {
	session, ok := g.registry.Get(pin)
	if !ok {
		return domain.Question{}, false
	}
	quiz, err := g.quizzes.GetQuiz(context.Background(), session.QuizID())
	if err != nil {
		return domain.Question{}, false
	}
	index := session.Index() - 1
	if index < 0 || index >= len(quiz.Questions) {
		return domain.Question{}, false
	}
	return quiz.Questions[index], true
}

// forceEnd terminates one game after an unrecoverable mid-round failure.
func (g *GameService) forceEnd(pin string) {
	if session, ok := g.registry.Get(pin); ok {
		session.Finish()
	}
	g.broadcaster.Publish(pin, TopicEnd, EndSignal)
	g.log.Warn().Str("pin", pin).Msg("game force-ended")
}

func findQuestion(quiz domain.Quiz, questionID string) (domain.Question, bool) {
	for _, q := range quiz.Questions {
		if q.ID == questionID {
			return q, true
		}
	}
	return domain.Question{}, false
}
