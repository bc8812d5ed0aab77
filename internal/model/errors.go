package model

import (
	"errors"
)

var (
	ErrMissingColumn   = errors.New("missing required column")
	ErrNoConcurrency   = errors.New("no valid crawl concurrency")
	ErrEmptyInput      = errors.New("input has no header")
	ErrInvalidIdentity = errors.New("invalid name:email")
	ErrNoTerminal      = errors.New("scan engine exited without a terminal signal")
)
