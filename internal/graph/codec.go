package graph

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// encodeNode serializes a node as a protobuf Value. Tombstones become a
// NullValue so they stay distinguishable from a missing key.
func encodeNode(n Node) ([]byte, error) {
	v, err := nodeValue(n)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(v)
}

func nodeValue(n Node) (*structpb.Value, error) {
	if n == nil {
		return structpb.NewNullValue(), nil
	}
	s, err := structpb.NewStruct(map[string]any(n))
	if err != nil {
		return nil, fmt.Errorf("encode node: %w", err)
	}
	return structpb.NewStructValue(s), nil
}

func decodeNode(b []byte) (Node, error) {
	var v structpb.Value
	if err := proto.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("decode node: %w", err)
	}
	return valueNode(&v)
}

func valueNode(v *structpb.Value) (Node, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return nil, nil
	case *structpb.Value_StructValue:
		return Node(k.StructValue.AsMap()), nil
	default:
		return nil, fmt.Errorf("decode node: unexpected kind %T", k)
	}
}

// encodeEvent builds the pub/sub envelope for a change at p.
func encodeEvent(p string, n Node) ([]byte, error) {
	v, err := nodeValue(n)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(&structpb.Struct{Fields: map[string]*structpb.Value{
		"path": structpb.NewStringValue(p),
		"node": v,
	}})
}

func decodeEvent(b []byte) (Event, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	p := s.GetFields()["path"].GetStringValue()
	if p == "" {
		return Event{}, fmt.Errorf("decode event: missing path")
	}
	nv, ok := s.GetFields()["node"]
	if !ok {
		return Event{}, fmt.Errorf("decode event: missing node")
	}
	n, err := valueNode(nv)
	if err != nil {
		return Event{}, err
	}
	_, key := Split(p)
	return Event{Path: p, Key: key, Value: n}, nil
}
