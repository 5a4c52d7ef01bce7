package billing

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// Version is a major.minor.patch plan version label.
type Version struct {
	Major, Minor, Patch int
}

func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersionLabel, s)
	}
	var nums [3]int
	for i, p := range parts {
		if !isDigits(p) || (len(p) > 1 && p[0] == '0') {
			return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersionLabel, s)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersionLabel, s)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// isDigits reports whether p is a non-empty run of ASCII digits.
func isDigits(p string) bool {
	if p == "" {
		return false
	}
	for i := 0; i < len(p); i++ {
		if p[i] < '0' || p[i] > '9' {
			return false
		}
	}
	return true
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func (v Version) Compare(o Version) int {
	if c := cmp.Compare(v.Major, o.Major); c != 0 {
		return c
	}
	if c := cmp.Compare(v.Minor, o.Minor); c != 0 {
		return c
	}
	return cmp.Compare(v.Patch, o.Patch)
}

func (v Version) NextPatch() Version {
	v.Patch++
	return v
}

// nextVersionLabel bumps the patch of the highest existing label. A plan
// without versions starts at 0.0.1. Labels that do not parse are ignored.
func nextVersionLabel(existing []PlanVersion) string {
	var latest Version
	for _, pv := range existing {
		v, err := ParseVersion(pv.Version)
		if err != nil {
			continue
		}
		if v.Compare(latest) > 0 {
			latest = v
		}
	}
	return latest.NextPatch().String()
}
