package refine

import (
	"errors"
	"fmt"
)

// Stage of a run.
type Stage string

const (
	StageLoad       Stage = "load"
	StageCandidates Stage = "candidates"
	StageScoring    Stage = "scoring"
	StageGraph      Stage = "graph"
	StageCluster    Stage = "cluster"
	StageMerge      Stage = "merge"
	StageWrite      Stage = "write"
)

// StageError is a fatal error and the stage it stopped the run at.
type StageError struct {
	Stage Stage
	Err   error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage err stopped at, empty if it isn't a StageError.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

func fail(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
