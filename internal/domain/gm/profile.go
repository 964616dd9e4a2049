package gm

// Profile identifies the equipment configuration of an installation.
// The profile decides which alarms are armed and which of them may
// drive the shutdown interlock.
type Profile string

// Known equipment profiles.
const (
	// ProfileCS2 is the basic configuration without pressure-band alarms.
	ProfileCS2 Profile = "CS2"
	// ProfileCS8 is the full configuration with all pressure-band alarms.
	ProfileCS8 Profile = "CS8"
	// ProfileCS9 adds processor-fault monitoring to the basic set.
	ProfileCS9 Profile = "CS9"
	// ProfileCS12 is the basic set plus the 72-hour shutdown.
	ProfileCS12 Profile = "CS12"
)

// Valid reports whether the profile is in the catalog.
func (p Profile) Valid() bool {
	switch p {
	case ProfileCS2, ProfileCS8, ProfileCS9, ProfileCS12:
		return true
	default:
		return false
	}
}

// String returns the profile name.
func (p Profile) String() string {
	return string(p)
}
