package action

import "time"

// ChangeMode records the requested change-detection mode. It is parsed and
// carried in Options, but no component reads it: a rule that registers no
// comparator of its own always gets change.Digest().
type ChangeMode int

const (
	ModtimeOnly ChangeMode = iota
	ModtimeAndDigest
	DigestOnly
)

func ParseChangeMode(s string) ChangeMode {
	switch s {
	case "ModtimeOnly":
		return ModtimeOnly
	case "ModtimeAndDigest":
		return ModtimeAndDigest
	default:
		return DigestOnly
	}
}

// Options are the build-wide, invariant-across-the-build settings threaded
// through Global. Mirrors the recognised option set in the spec's EXTERNAL
// INTERFACES section.
type Options struct {
	Parallelism int
	Staunch     bool
	Lint        string // "" or "None" (off), "BasicLint", or "ChangeLint"
	Verbosity   Verbosity
	ReportFile  string
	DBFile      string
	Timeout     time.Duration
	ChangeMode  ChangeMode
	Wants       []string
}

// DefaultOptions returns the spec's baseline: parallelism 1, staunch off,
// lint off, normal verbosity, digest-only change detection.
func DefaultOptions() Options {
	return Options{
		Parallelism: 1,
		Verbosity:   Normal,
		ChangeMode:  DigestOnly,
	}
}
