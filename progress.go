package nxpack

import "github.com/meigma/nxpack/internal/progress"

// Re-export progress types from internal/progress.
type (
	// ProgressEvent represents a progress update during a build.
	ProgressEvent = progress.Event

	// ProgressStage identifies the current phase of a build.
	ProgressStage = progress.Stage

	// ProgressFunc receives progress updates during builds.
	// Implementations must be safe for concurrent calls.
	ProgressFunc = progress.Func
)

// Re-export progress stage constants.
const (
	// StageEnumerating indicates the builder is walking the input tree.
	StageEnumerating = progress.StageEnumerating

	// StagePacking indicates file contents are being copied into the image.
	StagePacking = progress.StagePacking

	// StageCompressing indicates executable segments are being compressed.
	StageCompressing = progress.StageCompressing

	// StageWriting indicates the finished image is being written out.
	StageWriting = progress.StageWriting
)
