package game

// GameState is the engine's single active state.
type GameState string

const (
	StateIdle       GameState = "idle"
	StateRunning    GameState = "running"
	StateReady      GameState = "ready"
	StateSubmitting GameState = "submitting"
)

func (s GameState) String() string {
	return string(s)
}

// Classification labels a completed reaction.
type Classification string

const (
	ClassSuperhuman      Classification = "superhuman"
	ClassF1DriverLevel   Classification = "f1_driver_level"
	ClassAmazingReflexes Classification = "amazing_reflexes"
	ClassGreatStart      Classification = "great_start"
	ClassGoodReaction    Classification = "good_reaction"
	ClassKeepPracticing  Classification = "keep_practicing"
	ClassNewPersonalBest Classification = "new_personal_best"
)

var classificationLabels = map[Classification]string{
	ClassSuperhuman:      "superhuman",
	ClassF1DriverLevel:   "F1 driver level",
	ClassAmazingReflexes: "amazing reflexes",
	ClassGreatStart:      "great start",
	ClassGoodReaction:    "good reaction",
	ClassKeepPracticing:  "keep practicing",
	ClassNewPersonalBest: "new personal best",
}

// Label returns the human readable text shown to the player.
func (c Classification) Label() string {
	if label, ok := classificationLabels[c]; ok {
		return label
	}
	return string(c)
}

// reactionBands is ordered ascending; the first band whose upper bound
// exceeds the reaction time wins.
var reactionBands = []struct {
	below int64
	class Classification
}{
	{150, ClassSuperhuman},
	{200, ClassF1DriverLevel},
	{250, ClassAmazingReflexes},
	{300, ClassGreatStart},
	{400, ClassGoodReaction},
}

// Classify maps a reaction time in milliseconds onto its fixed band.
func Classify(reactionTimeMs int64) Classification {
	for _, band := range reactionBands {
		if reactionTimeMs < band.below {
			return band.class
		}
	}
	return ClassKeepPracticing
}

// classifyAttempt applies the personal best override on top of Classify.
func classifyAttempt(reactionTimeMs int64, newBest bool) Classification {
	if newBest {
		return ClassNewPersonalBest
	}
	return Classify(reactionTimeMs)
}
