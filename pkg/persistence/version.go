package persistence

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Compatibility is the verdict on loading a save written by another engine
// version.
type Compatibility struct {
	Compatible bool
	// NeedsMigration is set when the save comes from an older major
	// version; a migration function makes it loadable.
	NeedsMigration bool
	Reason         string
	Warnings       []string
}

// CheckCompatibility compares the version that wrote a save with the
// running version. Same or older minor versions load silently, newer
// minor or patch versions load with a warning, and any major difference is
// incompatible.
func CheckCompatibility(saved, current string) Compatibility {
	s, c := canonical(saved), canonical(current)
	if !semver.IsValid(s) {
		return Compatibility{Reason: fmt.Sprintf("invalid engine version %q", saved)}
	}
	if !semver.IsValid(c) {
		return Compatibility{Reason: fmt.Sprintf("invalid running engine version %q", current)}
	}

	switch semver.Compare(semver.Major(s), semver.Major(c)) {
	case 1:
		return Compatibility{Reason: fmt.Sprintf("save written by newer major version %s (running %s)", saved, current)}
	case -1:
		return Compatibility{
			NeedsMigration: true,
			Reason:         fmt.Sprintf("save written by older major version %s (running %s); migration required", saved, current),
		}
	}

	if semver.Compare(s, c) > 0 {
		return Compatibility{
			Compatible: true,
			Warnings:   []string{fmt.Sprintf("save written by newer engine version %s (running %s)", saved, current)},
		}
	}
	return Compatibility{Compatible: true}
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
