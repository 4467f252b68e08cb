package domain

import "errors"

var (
	// ErrInvalidPin is returned for unknown or expired game PINs.
	ErrInvalidPin = errors.New("invalid game pin")
	// ErrGameAlreadyStarted is returned when a join arrives after the lobby closed.
	ErrGameAlreadyStarted = errors.New("game already started")
	// ErrDuplicateNickname is returned when a nickname is already taken for this PIN.
	ErrDuplicateNickname = errors.New("nickname already taken")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is not part of the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrQuizMisconfigured indicates the quiz's access mode and institution
	// linkage are inconsistent with each other.
	ErrQuizMisconfigured = errors.New("invalid quiz configuration")
	// ErrUnauthorized is returned when a host-only action carries a bad host token.
	ErrUnauthorized = errors.New("not authorized to control this game")
	// ErrPinSpaceExhausted is returned when no free PIN could be found.
	ErrPinSpaceExhausted = errors.New("no free game pin available")
)
