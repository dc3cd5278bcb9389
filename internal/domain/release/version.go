package release

import (
	"cmp"
	"errors"
	"regexp"
	"strings"
)

// Decision is the result of comparing the running version with a release tag.
type Decision int

const (
	// DecisionUnknown means at least one version could not be parsed.
	DecisionUnknown Decision = iota
	// DecisionCurrent means the running version is the same or newer.
	DecisionCurrent
	// DecisionUpgrade means the release is strictly newer.
	DecisionUpgrade
)

// String implements fmt.Stringer.
func (d Decision) String() string {
	switch d {
	case DecisionCurrent:
		return "current"
	case DecisionUpgrade:
		return "upgrade"
	default:
		return "unknown"
	}
}

// Version is a dotted numeric version, most significant component first.
// Components are decimal digit strings without leading zeros, so they have no size limit.
type Version []string

// ErrVersionFormat is returned when a version string does not start with MAJOR.MINOR.PATCH.
var ErrVersionFormat = errors.New("invalid version format")

// versionPattern matches an optional "v" followed by three numeric groups.
// Only the start of the string is matched, so "1.2.3-beta" parses as 1.2.3.
var versionPattern = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)`)

// ParseVersion extracts the leading MAJOR.MINOR.PATCH of s.
// It returns an empty Version when s does not start with that pattern.
func ParseVersion(s string) Version {
	match := versionPattern.FindStringSubmatch(s)
	if match == nil {
		return nil
	}

	result := make(Version, 0, len(match)-1)

	for _, group := range match[1:] {
		digits := strings.TrimLeft(group, "0")
		if digits == "" {
			digits = "0"
		}

		result = append(result, digits)
	}

	return result
}

// compareComponents orders two canonical digit strings numerically.
func compareComponents(a, b string) int {
	if c := cmp.Compare(len(a), len(b)); c != 0 {
		return c
	}

	return strings.Compare(a, b)
}

// CompareVersions decides whether latest is strictly newer than current.
//
// Components are compared pairwise from the left; the first difference wins.
// When every shared component is equal the shorter version is the older one.
func CompareVersions(current, latest string) (Decision, error) {
	currentVersion := ParseVersion(current)
	latestVersion := ParseVersion(latest)

	if len(currentVersion) == 0 || len(latestVersion) == 0 {
		return DecisionUnknown, ErrVersionFormat
	}

	for i := range min(len(currentVersion), len(latestVersion)) {
		switch compareComponents(currentVersion[i], latestVersion[i]) {
		case -1:
			return DecisionUpgrade, nil
		case 1:
			return DecisionCurrent, nil
		}
	}

	if len(currentVersion) < len(latestVersion) {
		return DecisionUpgrade, nil
	}

	return DecisionCurrent, nil
}
