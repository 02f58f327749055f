package timeframe

import "errors"

var (
	ErrInvalidWindow = errors.New("timeframe: invalid window")
	ErrDuplicateKind = errors.New("timeframe: duplicate window kind")
	ErrContradictory = errors.New("timeframe: contradictory bounds")
)
