package storagetypes

import (
	"slices"
)

// Mood is the discrete category derived from UserState.MoodValue.
type Mood string

const (
	MoodAngry   Mood = "angry"
	MoodSad     Mood = "sad"
	MoodNormal  Mood = "normal"
	MoodHappy   Mood = "happy"
	MoodExcited Mood = "excited"
)

// MoodFromValue maps a 0..100 value onto its band.
func MoodFromValue(v int) Mood {
	switch {
	case v < 20:
		return MoodAngry
	case v < 40:
		return MoodSad
	case v < 60:
		return MoodNormal
	case v < 80:
		return MoodHappy
	default:
		return MoodExcited
	}
}

// Relationship is the tier implied by intimacy.
type Relationship string

const (
	Stranger     Relationship = "stranger"
	Acquaintance Relationship = "acquaintance"
	Friend       Relationship = "friend"
	CloseFriend  Relationship = "close_friend"
	BestFriend   Relationship = "best_friend"
	Intimate     Relationship = "intimate"
	Soulmate     Relationship = "soulmate"
)

// tiers holds the lower intimacy bound of each relationship, ascending.
var tiers = []struct {
	min  int
	tier Relationship
}{
	{1000, Soulmate},
	{500, Intimate},
	{300, BestFriend},
	{100, CloseFriend},
	{50, Friend},
	{10, Acquaintance},
}

// RelationshipFor is a pure function of intimacy.
func RelationshipFor(intimacy int) Relationship {
	for _, t := range tiers {
		if intimacy >= t.min {
			return t.tier
		}
	}
	return Stranger
}

// UserState is the persisted affective state of one poking subject.
// JSON keys match what earlier deployments wrote.
type UserState struct {
	Intimacy        int          `json:"intimacy"`
	MoodValue       int          `json:"moodValue"`
	Mood            Mood         `json:"mood"`
	Consecutive     int          `json:"consecutivePokes"`
	LastInteraction int64        `json:"lastInteraction"` // unix ms
	Total           int          `json:"totalPokes"`
	Achievements    []string     `json:"achievements"`
	Relationship    Relationship `json:"relationship"`
}

// DefaultUserState is what a subject starts with on first poke.
func DefaultUserState() UserState {
	return UserState{
		MoodValue:    50,
		Mood:         MoodNormal,
		Achievements: []string{},
		Relationship: Stranger,
	}
}

// Normalize restores the invariants: clamped mood value, floored counters,
// and mood/relationship recomputed from their sources.
func (u *UserState) Normalize() {
	u.MoodValue = ClampMood(u.MoodValue)
	if u.Intimacy < 0 {
		u.Intimacy = 0
	}
	if u.Consecutive < 0 {
		u.Consecutive = 0
	}
	if u.Total < 0 {
		u.Total = 0
	}
	if u.Achievements == nil {
		u.Achievements = []string{}
	}
	u.Mood = MoodFromValue(u.MoodValue)
	u.Relationship = RelationshipFor(u.Intimacy)
}

// SetMoodValue clamps v and recomputes Mood.
func (u *UserState) SetMoodValue(v int) {
	u.MoodValue = ClampMood(v)
	u.Mood = MoodFromValue(u.MoodValue)
}

// SetIntimacy floors v at zero and recomputes Relationship. It returns the
// previous tier.
func (u *UserState) SetIntimacy(v int) Relationship {
	prev := u.Relationship
	if v < 0 {
		v = 0
	}
	u.Intimacy = v
	u.Relationship = RelationshipFor(v)
	return prev
}

// HasAchievement reports whether id was unlocked.
func (u *UserState) HasAchievement(id string) bool {
	return slices.Contains(u.Achievements, id)
}

// Unlock appends id once. It reports whether it was new.
func (u *UserState) Unlock(id string) bool {
	if u.HasAchievement(id) {
		return false
	}
	u.Achievements = append(u.Achievements, id)
	return true
}

// Clone returns a deep copy.
func (u UserState) Clone() UserState {
	u.Achievements = slices.Clone(u.Achievements)
	return u
}

// ClampMood keeps a mood value within 0..100.
func ClampMood(v int) int {
	return min(max(v, 0), 100)
}

// OffenseRecord counts pokes against protected identities by one actor in one scope.
type OffenseRecord struct {
	Count       int   `json:"count"`
	LastOffense int64 `json:"lastPoke"` // unix ms
}
