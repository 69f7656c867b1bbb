package session

import "fmt"

// Snapshot is the combined, point-in-time view of identity, profile, and
// loading flag. It is the only state route guards may read. Loading is true
// until the identity provider's first notification settles, and permanently
// false afterwards. A snapshot is always published whole; readers never
// observe a partially updated tuple.
type Snapshot struct {
	Identity Identity
	Profile  *Profile
	Loading  bool
}

// Authenticated reports whether an identity is present.
func (s Snapshot) Authenticated() bool {
	return s.Identity != nil
}

// ProfileComplete applies the completeness predicate to the cached profile.
func (s Snapshot) ProfileComplete() bool {
	return IsProfileComplete(s.Profile)
}

// IsProfileComplete holds when a profile exists and both full name and
// academic year are set. Phone and photo are optional.
func IsProfileComplete(p *Profile) bool {
	if p == nil {
		return false
	}
	return p.FullName != "" && p.AcademicYear != ""
}

func (s Snapshot) String() string {
	email := "<nil>"
	if s.Identity != nil {
		email = s.Identity.Email()
	}
	return fmt.Sprintf(
		"identity=%s profile_complete=%t loading=%t",
		email,
		s.ProfileComplete(),
		s.Loading,
	)
}
