package errors

import (
	stderrors "errors"

	"github.com/wfunc/neon-reels/internal/game"
)

// FromGame 将游戏引擎错误映射为应用错误码
func FromGame(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	code := ErrUnknown
	switch {
	case stderrors.Is(err, game.ErrSessionNotFound):
		code = ErrSessionNotFound
	case stderrors.Is(err, game.ErrSessionExists):
		code = ErrSessionExists
	case stderrors.Is(err, game.ErrSessionLimit):
		code = ErrSessionLimit
	case stderrors.Is(err, game.ErrSessionClosed):
		code = ErrSessionClosed
	case stderrors.Is(err, game.ErrInvalidBet):
		code = ErrInvalidBet
	case stderrors.Is(err, game.ErrInvalidRules):
		code = ErrConfigValidate
	}
	return Wrap(err, code)
}
