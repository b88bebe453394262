package config

import "errors"

var (
	ErrUnknownScope          = errors.New("unknown config scope")
	ErrUnknownFeature        = errors.New("unknown feature")
	ErrUnknownPatternList    = errors.New("unknown pattern list")
	ErrUnknownPackageManager = errors.New("unknown package manager")
	ErrInvalidDocument       = errors.New("invalid config document")
)
