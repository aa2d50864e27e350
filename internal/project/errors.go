package project

import "errors"

var (
	ErrNotFound          = errors.New("project: experiment not found")
	ErrAlreadyRead       = errors.New("project: file already added to experiment")
	ErrAtomCountMismatch = errors.New("project: atom count differs from experiment")
	ErrSpeciesMismatch   = errors.New("project: species differ from experiment")
	ErrUnknownSpecies    = errors.New("project: unknown species")
	ErrNoComputation     = errors.New("project: no cached computation")
	ErrInvalidName       = errors.New("project: invalid experiment name")
	ErrNoData            = errors.New("project: experiment has no data")
)
