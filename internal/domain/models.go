package domain

import "time"

// SessionStatus tracks where a live game is in its lifecycle. Transitions only
// ever move WAITING -> LIVE -> RESULT -> LIVE -> ... -> FINISHED.
type SessionStatus string

const (
	StatusWaiting  SessionStatus = "WAITING"
	StatusLive     SessionStatus = "LIVE"
	StatusResult   SessionStatus = "RESULT"
	StatusFinished SessionStatus = "FINISHED"
)

// GameSession is a point-in-time snapshot of one live game, keyed by its
// 6-digit PIN.
type GameSession struct {
	Pin                  string        `json:"pin"`
	QuizID               string        `json:"quizId"`
	Status               SessionStatus `json:"status"`
	CurrentQuestionIndex int           `json:"currentQuestionIndex"`
	QuestionDuration     int           `json:"questionDuration"` // seconds per question
	QuestionStartedAt    *time.Time    `json:"questionStartedAt,omitempty"`
	CreatedAt            time.Time     `json:"createdAt"`
	ExpiresAt            time.Time     `json:"expiresAt"`
}

// Player is one anonymous participant in a game, unique per (pin, nickname).
type Player struct {
	Pin      string    `json:"pin"`
	Nickname string    `json:"nickname"`
	Score    int       `json:"score"`
	Answered bool      `json:"answered"`
	JoinedAt time.Time `json:"joinedAt"`
}

// AnswerRecord is written once per accepted submission and never updated.
// Records live only as long as their session; destroy purges them.
type AnswerRecord struct {
	Pin                 string    `json:"pin"`
	Nickname            string    `json:"nickname"`
	QuestionID          string    `json:"questionId"`
	SelectedOption      string    `json:"selectedOption"`
	Correct             bool      `json:"correct"`
	SubmittedAt         time.Time `json:"submittedAt"`
	ResponseTimeSeconds int64     `json:"responseTimeSeconds"`
	AwardedPoints       int       `json:"awardedPoints"`
}

// Question is one entry of a quiz's ordered question list.
type Question struct {
	ID            string   `json:"id"`
	Content       string   `json:"content"`
	Options       []string `json:"options"`
	CorrectOption string   `json:"correctOption"`
}

// AccessMode describes who a quiz is published for.
type AccessMode string

const (
	AccessGeneral   AccessMode = "GENERAL"
	AccessInstitute AccessMode = "INSTITUTE"
)

// Quiz is read-only catalog content; the engine never mutates it.
type Quiz struct {
	ID            string     `json:"id"`
	AccessMode    AccessMode `json:"accessMode"`
	InstitutionID string     `json:"institutionId,omitempty"`
	Questions     []Question `json:"questions"`
}

// Valid reports whether the quiz's declared access mode is internally
// consistent: a GENERAL quiz must not be tied to an institution, and an
// INSTITUTE quiz must name one.
func (q Quiz) Valid() bool {
	switch q.AccessMode {
	case AccessGeneral:
		return q.InstitutionID == ""
	case AccessInstitute:
		return q.InstitutionID != ""
	}
	return true
}

// QuestionRound is the payload pushed on a PIN's question topic. The correct
// option is deliberately absent until the reveal.
type QuestionRound struct {
	QuestionID     string   `json:"questionId"`
	Content        string   `json:"content"`
	Options        []string `json:"options"`
	QuestionNumber int      `json:"questionNumber"` // 1-based
	TotalQuestions int      `json:"totalQuestions"`
}

// ScoreboardEntry is one row of the per-PIN scoreboard broadcast.
type ScoreboardEntry struct {
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
}
