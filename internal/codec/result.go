package codec

import (
	"google.golang.org/protobuf/types/known/structpb"
)

// LabeledScore pairs an activity label with the classifier score.
type LabeledScore struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// DecodeScores zips a prediction list with vocab. The prediction must hold
// exactly len(vocab) numeric values; output keeps vocabulary order.
func DecodeScores(v *structpb.Value, vocab Vocabulary) ([]LabeledScore, error) {
	if v == nil {
		return nil, &ResponseShapeError{Reason: "missing prediction"}
	}
	nums, err := numberList(v)
	if err != nil {
		return nil, err
	}
	if len(nums) != len(vocab) {
		return nil, &ResponseShapeError{Reason: "score count does not match vocabulary", Got: len(nums), Want: len(vocab)}
	}
	out := make([]LabeledScore, len(nums))
	for i, n := range nums {
		out[i] = LabeledScore{Label: vocab[i], Value: n}
	}
	return out, nil
}

// DecodeResponse extracts the single prediction of a predict response and
// checks that it matches vocab. The prediction value is returned as-is.
func DecodeResponse(resp *structpb.Struct, vocab Vocabulary) (*structpb.Value, error) {
	preds, ok := resp.GetFields()["predictions"]
	if !ok {
		return nil, &ResponseShapeError{Reason: "response has no predictions"}
	}
	list := preds.GetListValue()
	if list == nil {
		return nil, &ResponseShapeError{Reason: "predictions is not a list"}
	}
	if n := len(list.GetValues()); n != 1 {
		return nil, &ResponseShapeError{Reason: "unexpected prediction count", Got: n, Want: 1}
	}
	pred := list.GetValues()[0]
	if _, err := DecodeScores(pred, vocab); err != nil {
		return nil, err
	}
	return pred, nil
}

// MostLikely returns the highest score. Ties keep the earlier label.
func MostLikely(scores []LabeledScore) (LabeledScore, bool) {
	if len(scores) == 0 {
		return LabeledScore{}, false
	}
	best := scores[0]
	for _, s := range scores[1:] {
		if s.Value > best.Value {
			best = s
		}
	}
	return best, true
}
