// Package progress defines the progress callback shared by the builders.
package progress

// Event represents a progress update during a build.
type Event struct {
	// Stage identifies the current phase of the build.
	Stage Stage

	// Path is the file currently being processed, if applicable.
	Path string

	// BytesDone is the number of bytes packed so far.
	BytesDone uint64

	// BytesTotal is the total bytes to pack.
	// Zero indicates the total is unknown.
	BytesTotal uint64

	// FilesDone is the number of files packed.
	FilesDone int

	// FilesTotal is the total number of files.
	// Zero indicates the total is unknown (e.g., during enumeration).
	FilesTotal int
}

// Stage identifies the current phase of a build.
type Stage uint8

// Build stages.
const (
	// StageEnumerating indicates the builder is walking the input tree.
	StageEnumerating Stage = iota

	// StagePacking indicates file contents are being copied into the image.
	StagePacking

	// StageCompressing indicates executable segments are being compressed.
	StageCompressing

	// StageWriting indicates the finished image is being written out.
	StageWriting
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	switch s {
	case StageEnumerating:
		return "enumerating"
	case StagePacking:
		return "packing"
	case StageCompressing:
		return "compressing"
	case StageWriting:
		return "writing"
	default:
		return "unknown"
	}
}

// Func receives progress updates.
// Implementations must be safe for concurrent calls.
type Func func(Event)

// Report sends ev to fn if fn is set.
func (fn Func) Report(ev Event) {
	if fn != nil {
		fn(ev)
	}
}
