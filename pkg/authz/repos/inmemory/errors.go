package inmemory

import "errors"

var (
	ErrAssignmentAlreadyExists = errors.New("role assignment already exists")
	ErrAssignmentNotFound      = errors.New("role assignment not found")
	ErrParentAlreadySet        = errors.New("parent already set for relation")
)
