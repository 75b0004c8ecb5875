package codec

// Activity is a position in the default label vocabulary.
type Activity int

const (
	Walking Activity = iota
	WalkingUpstairs
	WalkingDownstairs
	Sitting
	Standing
	Laying
)

// Vocabulary is the ordered label table the classifier's output positions
// are bound to. Position i of a prediction is the score for entry i.
type Vocabulary []string

// DefaultVocabulary is the label table of the deployed activity model.
var DefaultVocabulary = Vocabulary{
	"WALKING",
	"WALKING_UPSTAIRS",
	"WALKING_DOWNSTAIRS",
	"SITTING",
	"STANDING",
	"LAYING",
}

func (a Activity) String() string {
	if a < 0 || int(a) >= len(DefaultVocabulary) {
		return "UNKNOWN"
	}
	return DefaultVocabulary[a]
}

// Index returns the position of label in v, or -1.
func (v Vocabulary) Index(label string) int {
	for i, l := range v {
		if l == label {
			return i
		}
	}
	return -1
}
