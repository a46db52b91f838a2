package server

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"tetrisduel/internal/game"
	"tetrisduel/internal/identity"
	"tetrisduel/internal/session"
	"tetrisduel/internal/tetris"
)

// Wire error codes.
const (
	CodeSessionNotFound    = "SESSION_NOT_FOUND"
	CodeSessionFull        = "SESSION_FULL"
	CodeSessionFinished    = "SESSION_FINISHED"
	CodeNotInSession       = "NOT_IN_SESSION"
	CodeNotAuthorized      = "NOT_AUTHORIZED"
	CodePlayersNotReady    = "PLAYERS_NOT_READY"
	CodeMatchInProgress    = "MATCH_IN_PROGRESS"
	CodeMatchFinished      = "MATCH_FINISHED"
	CodeGameNotReady       = "GAME_NOT_READY"
	CodeInvalidMoveType    = "INVALID_MOVE_TYPE"
	CodePlayerStateMissing = "PLAYER_STATE_MISSING"
	CodeEmptyMessage       = "EMPTY_MESSAGE"
	CodeMessageTooLong     = "MESSAGE_TOO_LONG"
	CodeValidation         = "VALIDATION_ERROR"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeInternal           = "INTERNAL_ERROR"
)

var errorCodes = []struct {
	err    error
	code   string
	status int
}{
	{session.ErrSessionNotFound, CodeSessionNotFound, http.StatusNotFound},
	{session.ErrSessionFull, CodeSessionFull, http.StatusConflict},
	{session.ErrSessionFinished, CodeSessionFinished, http.StatusConflict},
	{session.ErrNotInSession, CodeNotInSession, http.StatusConflict},
	{game.ErrNotAuthorized, CodeNotAuthorized, http.StatusForbidden},
	{game.ErrPlayersNotReady, CodePlayersNotReady, http.StatusConflict},
	{game.ErrMatchInProgress, CodeMatchInProgress, http.StatusConflict},
	{game.ErrMatchFinished, CodeMatchFinished, http.StatusConflict},
	{game.ErrGameNotReady, CodeGameNotReady, http.StatusConflict},
	{game.ErrPlayerStateMissing, CodePlayerStateMissing, http.StatusConflict},
	{tetris.ErrInvalidMoveType, CodeInvalidMoveType, http.StatusBadRequest},
	{game.ErrEmptyMessage, CodeEmptyMessage, http.StatusBadRequest},
	{game.ErrMessageTooLong, CodeMessageTooLong, http.StatusBadRequest},
	{identity.ErrInvalidToken, CodeInvalidToken, http.StatusUnauthorized},
	{errBadRequest, CodeValidation, http.StatusBadRequest},
}

var errBadRequest = errors.New("invalid request")

// classify maps an error to its wire code and HTTP status.
func classify(err error) (string, int) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return CodeValidation, http.StatusBadRequest
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code, ec.status
		}
	}
	return CodeInternal, http.StatusInternalServerError
}

func errorEvent(err error) game.Error {
	code, status := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	return game.Error{Code: code, Message: msg}
}
