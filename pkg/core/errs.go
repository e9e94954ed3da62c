package core

import "errors"

var (
	ErrInvalidRange     = errors.New("invalid parameter range")
	ErrUnknownParameter = errors.New("unknown parameter")
	ErrInvalidGene      = errors.New("gene outside its parameter range")
	ErrEmptyUniverse    = errors.New("empty symbol universe")
	ErrShortHistory     = errors.New("insufficient bar history")
	ErrNotFound         = errors.New("not found")
	ErrInvalidConfig    = errors.New("invalid configuration")
)
