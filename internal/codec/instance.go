package codec

import (
	"google.golang.org/protobuf/types/known/structpb"
)

// EncodeInstance builds the prediction instance for one window: a list of
// WindowSize lists, each holding the six sample values in field order.
// Values are passed through unchanged.
func EncodeInstance(b *SampleBatch) *structpb.Value {
	rows := make([]*structpb.Value, len(b))
	for i := range b {
		rows[i] = encodeSample(b[i])
	}
	return structpb.NewListValue(&structpb.ListValue{Values: rows})
}

func encodeSample(s Sample) *structpb.Value {
	vals := s.Values()
	leaves := make([]*structpb.Value, FieldsPerSample)
	for i, v := range vals {
		leaves[i] = structpb.NewNumberValue(v)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: leaves})
}

// EncodeRequest wraps instances into a predict request body.
func EncodeRequest(instances ...*structpb.Value) *structpb.Struct {
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"instances": structpb.NewListValue(&structpb.ListValue{Values: instances}),
		},
	}
}

// InstanceRows flattens an encoded instance back into numeric rows. It is
// used to inspect requests and fails on anything that is not a list of
// numeric lists.
func InstanceRows(v *structpb.Value) ([][]float64, error) {
	outer := v.GetListValue()
	if outer == nil {
		return nil, &ResponseShapeError{Reason: "instance is not a list"}
	}
	rows := make([][]float64, len(outer.GetValues()))
	for i, row := range outer.GetValues() {
		nums, err := numberList(row)
		if err != nil {
			return nil, err
		}
		rows[i] = nums
	}
	return rows, nil
}

func numberList(v *structpb.Value) ([]float64, error) {
	list := v.GetListValue()
	if list == nil {
		return nil, &ResponseShapeError{Reason: "value is not a list"}
	}
	out := make([]float64, len(list.GetValues()))
	for i, leaf := range list.GetValues() {
		n, ok := leaf.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, &ResponseShapeError{Reason: "list element is not numeric"}
		}
		out[i] = n.NumberValue
	}
	return out, nil
}
