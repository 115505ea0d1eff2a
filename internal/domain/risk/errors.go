package risk

import (
	"errors"
	"fmt"
)

// ErrNoData is the distinguished outcome of a training request with no rows.
// It is not a failure, but callers must check for it explicitly.
var ErrNoData = errors.New("no training data")

// ErrTrainingInProgress is returned when another training run holds the lock.
var ErrTrainingInProgress = errors.New("training already in progress")

// ErrArtifactNotFound is returned by an ArtifactStore for a missing artifact.
var ErrArtifactNotFound = errors.New("artifact not found")

// TrainingError is a fatal fit-time failure. No artifact is written.
type TrainingError struct {
	Stage string
	Err   error
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("training: %s: %v", e.Stage, e.Err)
}

func (e *TrainingError) Unwrap() error { return e.Err }
