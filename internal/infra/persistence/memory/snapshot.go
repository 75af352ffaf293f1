package memory

import (
	"assemblycore/pkg/domain"
	"encoding/json"
	"fmt"
)

// Snapshot captures the full store state in a serialisable form. SQL stores persist
// one JSON payload per bucket.
type Snapshot struct {
	Parts     map[string]Part          `json:"parts"`
	PartTypes map[string]PartType      `json:"part_types"`
	Designs   map[string]RobotDesign   `json:"robot_designs"`
	Instances map[string]RobotInstance `json:"robot_instances"`
}

// Bucket names used by snapshot persistence, in write order.
const (
	BucketParts     = "parts"
	BucketPartTypes = "part_types"
	BucketDesigns   = "robot_designs"
	BucketInstances = "robot_instances"
)

// Buckets lists every snapshot bucket.
var Buckets = []string{BucketParts, BucketPartTypes, BucketDesigns, BucketInstances}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Parts:     make(map[string]Part, len(state.parts)),
		PartTypes: make(map[string]PartType, len(state.partTypes)),
		Designs:   make(map[string]RobotDesign, len(state.designs)),
		Instances: make(map[string]RobotInstance, len(state.instances)),
	}
	for k, v := range state.parts {
		s.Parts[k] = clonePart(v)
	}
	for k, v := range state.partTypes {
		s.PartTypes[k] = v
	}
	for k, v := range state.designs {
		s.Designs[k] = cloneDesign(v)
	}
	for k, v := range state.instances {
		s.Instances[k] = cloneInstance(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Parts {
		if v.State == "" {
			v.State = domain.PartStateWorking
		}
		state.parts[k] = clonePart(v)
	}
	for k, v := range s.PartTypes {
		state.partTypes[k] = v
	}
	for k, v := range s.Designs {
		state.designs[k] = cloneDesign(v)
	}
	for k, v := range s.Instances {
		state.instances[k] = cloneInstance(v)
	}
	return state
}

// Empty reports whether the snapshot holds no records at all.
func (s Snapshot) Empty() bool {
	return len(s.Parts) == 0 && len(s.PartTypes) == 0 && len(s.Designs) == 0 && len(s.Instances) == 0
}

// EncodeBucket marshals one bucket of the snapshot.
func (s Snapshot) EncodeBucket(bucket string) ([]byte, error) {
	var v any
	switch bucket {
	case BucketParts:
		v = s.Parts
	case BucketPartTypes:
		v = s.PartTypes
	case BucketDesigns:
		v = s.Designs
	case BucketInstances:
		v = s.Instances
	default:
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", bucket, err)
	}
	return data, nil
}

// DecodeBucket unmarshals a payload into the matching bucket. Unknown buckets are
// ignored so older databases with extra rows still load.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var target any
	switch bucket {
	case BucketParts:
		target = &s.Parts
	case BucketPartTypes:
		target = &s.PartTypes
	case BucketDesigns:
		target = &s.Designs
	case BucketInstances:
		target = &s.Instances
	default:
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
