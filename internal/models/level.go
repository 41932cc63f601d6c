package models

import "fmt"

// CEFRLevel is one of the 21 proficiency sub-levels used by the level test.
// The CEFR bands (A1..C2, extended with A3) are each split into three
// sub-steps, giving a single totally ordered ladder from A1_1 to C2_3.
type CEFRLevel string

const (
	LevelA1_1 CEFRLevel = "A1_1"
	LevelA1_2 CEFRLevel = "A1_2"
	LevelA1_3 CEFRLevel = "A1_3"
	LevelA2_1 CEFRLevel = "A2_1"
	LevelA2_2 CEFRLevel = "A2_2"
	LevelA2_3 CEFRLevel = "A2_3"
	LevelA3_1 CEFRLevel = "A3_1"
	LevelA3_2 CEFRLevel = "A3_2"
	LevelA3_3 CEFRLevel = "A3_3"
	LevelB1_1 CEFRLevel = "B1_1"
	LevelB1_2 CEFRLevel = "B1_2"
	LevelB1_3 CEFRLevel = "B1_3"
	LevelB2_1 CEFRLevel = "B2_1"
	LevelB2_2 CEFRLevel = "B2_2"
	LevelB2_3 CEFRLevel = "B2_3"
	LevelC1_1 CEFRLevel = "C1_1"
	LevelC1_2 CEFRLevel = "C1_2"
	LevelC1_3 CEFRLevel = "C1_3"
	LevelC2_1 CEFRLevel = "C2_1"
	LevelC2_2 CEFRLevel = "C2_2"
	LevelC2_3 CEFRLevel = "C2_3"
)

// levelLadder is the canonical ordering. Position in this slice is the
// level's index; every other ladder query derives from it.
var levelLadder = []CEFRLevel{
	LevelA1_1, LevelA1_2, LevelA1_3,
	LevelA2_1, LevelA2_2, LevelA2_3,
	LevelA3_1, LevelA3_2, LevelA3_3,
	LevelB1_1, LevelB1_2, LevelB1_3,
	LevelB2_1, LevelB2_2, LevelB2_3,
	LevelC1_1, LevelC1_2, LevelC1_3,
	LevelC2_1, LevelC2_2, LevelC2_3,
}

var levelIndex = func() map[CEFRLevel]int {
	m := make(map[CEFRLevel]int, len(levelLadder))
	for i, l := range levelLadder {
		m[l] = i
	}
	return m
}()

// MinLevel is the default starting level for a new test session.
func MinLevel() CEFRLevel { return levelLadder[0] }

// MaxLevel is the top of the ladder.
func MaxLevel() CEFRLevel { return levelLadder[len(levelLadder)-1] }

// AllLevels returns the ladder in ascending order. The returned slice is a
// copy; callers may modify it freely.
func AllLevels() []CEFRLevel {
	out := make([]CEFRLevel, len(levelLadder))
	copy(out, levelLadder)
	return out
}

// ParseCEFRLevel converts a raw string into a CEFRLevel, rejecting anything
// outside the closed enumeration. Invalid levels are a contract error and
// must never reach the engine.
func ParseCEFRLevel(s string) (CEFRLevel, error) {
	level := CEFRLevel(s)
	if _, ok := levelIndex[level]; !ok {
		return "", fmt.Errorf("invalid CEFR level %q", s)
	}
	return level, nil
}

// IsValid reports whether the level is a member of the ladder.
func (l CEFRLevel) IsValid() bool {
	_, ok := levelIndex[l]
	return ok
}

// Index returns the level's position on the ladder, 0 for A1_1 through 20
// for C2_3. Unknown levels return -1.
func (l CEFRLevel) Index() int {
	i, ok := levelIndex[l]
	if !ok {
		return -1
	}
	return i
}

// Next returns the immediately higher level. The second return value is
// false when l is already the maximum.
func (l CEFRLevel) Next() (CEFRLevel, bool) {
	i, ok := levelIndex[l]
	if !ok || i == len(levelLadder)-1 {
		return l, false
	}
	return levelLadder[i+1], true
}

// Previous returns the immediately lower level. The second return value is
// false when l is already the minimum.
func (l CEFRLevel) Previous() (CEFRLevel, bool) {
	i, ok := levelIndex[l]
	if !ok || i == 0 {
		return l, false
	}
	return levelLadder[i-1], true
}

// IsMax reports whether l is the highest level on the ladder.
func (l CEFRLevel) IsMax() bool {
	return l == MaxLevel()
}

// IsMin reports whether l is the lowest level on the ladder.
func (l CEFRLevel) IsMin() bool {
	return l == MinLevel()
}

// Advance moves the level steps positions up the ladder, clamped to the
// maximum index. Used by the acceleration rule.
func (l CEFRLevel) Advance(steps int) CEFRLevel {
	i, ok := levelIndex[l]
	if !ok {
		return l
	}
	i += steps
	if i > len(levelLadder)-1 {
		i = len(levelLadder) - 1
	}
	if i < 0 {
		i = 0
	}
	return levelLadder[i]
}

// Band returns the CEFR band portion of the level, e.g. "B2" for B2_1.
func (l CEFRLevel) Band() string {
	if len(l) < 2 {
		return string(l)
	}
	return string(l[:2])
}
