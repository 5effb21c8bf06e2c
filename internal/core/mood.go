package core

import (
	"errors"
	"fmt"
	"math"
)

// MoodType is one of the six moods a day can be marked with.
type MoodType string

const (
	Exceptional MoodType = "exceptional"
	Stable      MoodType = "stable"
	Meh         MoodType = "meh"
	Tired       MoodType = "tired"
	Stressed    MoodType = "stressed"
	Low         MoodType = "low"
)

var (
	ErrInvalidMood = errors.New("invalid mood")
	ErrInvalidRank = errors.New("invalid mood rank")
)

// MoodConfig carries the display metadata for a mood.
type MoodConfig struct {
	Type        MoodType
	Label       string
	Description string
}

// Moods lists every mood in enumeration order. The order is significant:
// it breaks ties when ranking moods by frequency.
var Moods = []MoodType{Exceptional, Stable, Meh, Tired, Stressed, Low}

var moodConfigs = map[MoodType]MoodConfig{
	Exceptional: {Type: Exceptional, Label: "Exceptional", Description: "High joy, big wins, excitement"},
	Stable:      {Type: Stable, Label: "Stable", Description: "Productivity, calm, satisfaction"},
	Meh:         {Type: Meh, Label: "Meh", Description: "Boredom, routine, lack of direction"},
	Tired:       {Type: Tired, Label: "Tired", Description: "Low energy, sleepiness, withdrawal"},
	Stressed:    {Type: Stressed, Label: "Stressed", Description: "Pressure, deadlines, overwhelmed"},
	Low:         {Type: Low, Label: "Low", Description: "Sadness, grief, heavy fatigue"},
}

const (
	MinRank = 1
	MaxRank = 6
)

// ParseMood returns the mood named s. Names are the lowercase canonical values.
func ParseMood(s string) (MoodType, error) {
	m := MoodType(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMood, s)
	}
	return m, nil
}

// Valid reports whether m is one of the six known moods.
func (m MoodType) Valid() bool {
	_, ok := moodConfigs[m]
	return ok
}

// String implements fmt.Stringer
func (m MoodType) String() string {
	return string(m)
}

// Rank is the numeric value used for trend averaging, 6 (exceptional) down to 1 (low).
// Unknown moods rank 0.
func (m MoodType) Rank() int {
	switch m {
	case Exceptional:
		return 6
	case Stable:
		return 5
	case Meh:
		return 4
	case Tired:
		return 3
	case Stressed:
		return 2
	case Low:
		return 1
	default:
		return 0
	}
}

// Index is the position of m in enumeration order, or -1.
func (m MoodType) Index() int {
	for i, v := range Moods {
		if v == m {
			return i
		}
	}
	return -1
}

// Config returns label and description for m.
func (m MoodType) Config() MoodConfig {
	if c, ok := moodConfigs[m]; ok {
		return c
	}
	return MoodConfig{Type: m, Label: string(m)}
}

// MoodFromRank maps a rank in [1,6] back to its mood.
func MoodFromRank(rank int) (MoodType, error) {
	if rank < MinRank || rank > MaxRank {
		return "", fmt.Errorf("%w: %d", ErrInvalidRank, rank)
	}
	return Moods[MaxRank-rank], nil
}

// NearestMood rounds a mean rank half away from zero and returns the matching mood.
// Values outside the rank range are clamped.
func NearestMood(meanRank float64) MoodType {
	r := int(math.Round(meanRank))
	if r < MinRank {
		r = MinRank
	}
	if r > MaxRank {
		r = MaxRank
	}
	m, _ := MoodFromRank(r)
	return m
}
