package session

import "errors"

var (
	// ErrAlreadyExists is returned by Create when the name is already
	// live in this process.
	ErrAlreadyExists = errors.New("session already exists")

	// ErrNotFound is returned by Destroy for names never registered in
	// this process. Durable storage is not consulted.
	ErrNotFound = errors.New("session not found")
)
