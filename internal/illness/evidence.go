package illness

import (
	"sort"
	"time"

	"symptom-tracker/internal/infermedica"
)

// defaultSex is used when the profile has no usable sex value.
const defaultSex = "male"

// Profile is the slice of the user profile the evidence builder needs.
type Profile struct {
	Birthdate time.Time
	// Sex is "Male", "Female" or the unset sentinel "None".
	Sex string
}

// Age returns the floor of full calendar years between birthdate and
// now: one year is subtracted until the anniversary day is reached.
func Age(birthdate, now time.Time) int {
	years := now.Year() - birthdate.Year()
	if now.Month() < birthdate.Month() ||
		(now.Month() == birthdate.Month() && now.Day() < birthdate.Day()) {
		years--
	}
	return years
}

func normalizeSex(sex string) string {
	switch sex {
	case "Male", "male":
		return "male"
	case "Female", "female":
		return "female"
	default:
		return defaultSex
	}
}

// BuildEvidence converts the episode's current symptom set into the
// payload the diagnosis service expects: one "present" entry per
// symptom, keyed by the stored external identifier. Symptom order is
// newest-first by creation time, with the id as a tie-breaker, so the
// output is deterministic regardless of input order. No side effects.
func BuildEvidence(profile Profile, symptoms []Symptom, now time.Time) infermedica.Evidence {
	ordered := make([]Symptom, len(symptoms))
	copy(ordered, symptoms)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedOn.Equal(ordered[j].CreatedOn) {
			return ordered[i].CreatedOn.After(ordered[j].CreatedOn)
		}
		return ordered[i].ID.String() < ordered[j].ID.String()
	})

	items := make([]infermedica.EvidenceItem, 0, len(ordered))
	for _, s := range ordered {
		items = append(items, infermedica.EvidenceItem{
			ID:       s.Data.ID,
			ChoiceID: "present",
		})
	}

	return infermedica.Evidence{
		Sex:      normalizeSex(profile.Sex),
		Age:      Age(profile.Birthdate, now),
		Evidence: items,
	}
}
