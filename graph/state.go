//
// Copyright (C) 2026 The loom Authors. All rights reserved.
//
// loom is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"fmt"
	"reflect"
	"sync"
)

// State is the shared data structure that flows through the graph. Nodes
// receive an immutable snapshot and return partial updates; the executor
// merges updates through the schema reducers.
type State map[string]any

// Clone creates a shallow copy of the state. Values are shared; nodes must
// treat them as read-only and express changes as partial updates.
func (s State) Clone() State {
	clone := make(State, len(s))
	for k, v := range s {
		clone[k] = v
	}
	return clone
}

// StateReducer merges an existing field value with an update and returns
// the merged result. Reducers are applied in ascending node-ID order when
// several nodes update the same field within one superstep, so reduction
// is deterministic even under concurrent execution.
type StateReducer func(existing, update any) any

// StateField defines a field in the state schema.
type StateField struct {
	// Type is the expected Go type of the field value.
	Type reflect.Type
	// Reducer merges updates into the field. Defaults to DefaultReducer.
	Reducer StateReducer
	// Default produces the initial value when a run starts without one.
	Default func() any
	// Required marks the field as mandatory for Validate.
	Required bool
}

// StateSchema defines the structure and merge behavior of graph state.
type StateSchema struct {
	mu sync.RWMutex
	// Fields maps field names to their definitions.
	Fields map[string]StateField
}

// NewStateSchema creates an empty state schema.
func NewStateSchema() *StateSchema {
	return &StateSchema{Fields: make(map[string]StateField)}
}

// AddField adds a field to the schema and returns the schema for chaining.
func (s *StateSchema) AddField(name string, field StateField) *StateSchema {
	s.mu.Lock()
	defer s.mu.Unlock()
	if field.Reducer == nil {
		field.Reducer = DefaultReducer
	}
	s.Fields[name] = field
	return s
}

// ApplyUpdate merges a partial update into the current state using the
// field reducers and returns a new state. Fields without a schema entry
// are replaced.
func (s *StateSchema) ApplyUpdate(current State, update State) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := current.Clone()
	for key, updateValue := range update {
		field, exists := s.Fields[key]
		if !exists {
			result[key] = updateValue
			continue
		}
		currentValue, hasCurrent := result[key]
		if !hasCurrent && field.Default != nil {
			currentValue = field.Default()
		}
		result[key] = field.Reducer(currentValue, updateValue)
	}
	return result
}

// ApplyDefaults fills missing fields that declare a Default and returns a
// new state.
func (s *StateSchema) ApplyDefaults(current State) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := current.Clone()
	for name, field := range s.Fields {
		if _, exists := result[name]; !exists && field.Default != nil {
			result[name] = field.Default()
		}
	}
	return result
}

// Validate checks a state against the schema: required fields must be
// present and values must be assignable to the declared types.
func (s *StateSchema) Validate(state State) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, field := range s.Fields {
		value, exists := state[name]
		if field.Required && !exists {
			return fmt.Errorf("required field %s is missing", name)
		}
		if exists && value != nil && field.Type != nil {
			valueType := reflect.TypeOf(value)
			if !valueType.AssignableTo(field.Type) {
				return fmt.Errorf("field %s has wrong type: expected %v, got %v",
					name, field.Type, valueType)
			}
		}
	}
	return nil
}

// FieldNames returns the names of all schema fields.
func (s *StateSchema) FieldNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	return names
}

// Common reducer functions.

// DefaultReducer overwrites the existing value with the update.
func DefaultReducer(existing, update any) any {
	return update
}

// AppendReducer appends the update slice to the existing slice.
func AppendReducer(existing, update any) any {
	if existing == nil {
		existing = []any{}
	}
	existingSlice, ok1 := existing.([]any)
	updateSlice, ok2 := update.([]any)
	if !ok1 || !ok2 {
		return update
	}
	merged := make([]any, 0, len(existingSlice)+len(updateSlice))
	merged = append(merged, existingSlice...)
	return append(merged, updateSlice...)
}

// StringSliceReducer appends string slices specifically.
func StringSliceReducer(existing, update any) any {
	if existing == nil {
		existing = []string{}
	}
	existingSlice, ok1 := existing.([]string)
	updateSlice, ok2 := update.([]string)
	if !ok1 || !ok2 {
		return update
	}
	merged := make([]string, 0, len(existingSlice)+len(updateSlice))
	merged = append(merged, existingSlice...)
	return append(merged, updateSlice...)
}

// MergeReducer merges the update map into the existing map.
func MergeReducer(existing, update any) any {
	if existing == nil {
		existing = make(map[string]any)
	}
	existingMap, ok1 := existing.(map[string]any)
	updateMap, ok2 := update.(map[string]any)
	if !ok1 || !ok2 {
		return update
	}
	result := make(map[string]any, len(existingMap)+len(updateMap))
	for k, v := range existingMap {
		result[k] = v
	}
	for k, v := range updateMap {
		result[k] = v
	}
	return result
}
