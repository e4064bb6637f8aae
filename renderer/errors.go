package renderer

import "errors"

var (
	// ErrTerminated is returned by Render and Init after a failure has put
	// the renderer in its terminal state.
	ErrTerminated = errors.New("renderer: terminated after a previous failure")

	// ErrNotInitialized is returned by Render before a successful Init.
	ErrNotInitialized = errors.New("renderer: not initialized")

	errAlreadyInitialized = errors.New("renderer: already initialized")
)
