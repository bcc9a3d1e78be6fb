package syncer

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
)

// Strategy selects how overlapping local and remote changes reconcile.
type Strategy string

const (
	// LastWriteWins lets remote overwrite local on overlap. Default.
	LastWriteWins Strategy = "last_write_wins"

	// FirstWriteWins lets local overwrite remote on overlap.
	FirstWriteWins Strategy = "first_write_wins"

	// MergeStrategy merges field by field: arrays union, objects merge
	// recursively, primitive overlaps keep the local value.
	MergeStrategy Strategy = "merge"

	// ManualStrategy refuses automatic resolution.
	ManualStrategy Strategy = "manual"
)

var (
	ErrManualResolution = errors.New("manual strategy: conflict must be resolved out of band")
	ErrUnknownStrategy  = errors.New("unknown conflict resolution strategy")
)

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case LastWriteWins, FirstWriteWins, MergeStrategy, ManualStrategy:
		return true
	}
	return false
}

// Resolution records the outcome of one resolved conflict. It is handed to
// the caller and never persisted by this core.
type Resolution struct {
	Strategy      Strategy
	Resolved      map[string]any
	LocalChanges  map[string]any
	RemoteChanges map[string]any
	Conflicts     []string
}

// resolve reconciles two change sets under the given strategy. The version
// maps are the full local and remote states, carried for caller context
// only; the conflict set comes from the change sets alone.
func resolve(strategy Strategy, localChanges, remoteChanges map[string]any) (*Resolution, error) {
	conflicts := conflictingKeys(localChanges, remoteChanges)

	var resolved map[string]any
	switch strategy {
	case LastWriteWins:
		resolved = overlay(localChanges, remoteChanges)
	case FirstWriteWins:
		resolved = overlay(remoteChanges, localChanges)
	case MergeStrategy:
		resolved = mergeMaps(localChanges, remoteChanges)
	case ManualStrategy:
		return nil, ErrManualResolution
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}

	return &Resolution{
		Strategy:      strategy,
		Resolved:      resolved,
		LocalChanges:  localChanges,
		RemoteChanges: remoteChanges,
		Conflicts:     conflicts,
	}, nil
}

// conflictingKeys returns the keys present in both change sets with
// differing values, sorted for determinism.
func conflictingKeys(local, remote map[string]any) []string {
	var keys []string
	for k, lv := range local {
		rv, ok := remote[k]
		if !ok {
			continue
		}
		if !reflect.DeepEqual(lv, rv) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// overlay copies base then overwrites with top.
func overlay(base, top map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(top))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range top {
		out[k] = v
	}
	return out
}

// mergeMaps merges remote into local field by field. Keys unique to one
// side pass through; shared keys defer to mergeValues.
func mergeMaps(local, remote map[string]any) map[string]any {
	out := make(map[string]any, len(local)+len(remote))
	for k, v := range local {
		out[k] = v
	}
	for k, rv := range remote {
		lv, ok := out[k]
		if !ok {
			out[k] = rv
			continue
		}
		out[k] = mergeValues(lv, rv)
	}
	return out
}

// mergeValues reconciles one shared key: arrays union, objects recurse,
// anything else keeps the local value.
func mergeValues(local, remote any) any {
	if la, ok := local.([]any); ok {
		if ra, ok := remote.([]any); ok {
			return unionSlices(la, ra)
		}
	}
	if lm, ok := local.(map[string]any); ok {
		if rm, ok := remote.(map[string]any); ok {
			return mergeMaps(lm, rm)
		}
	}
	return local
}

// unionSlices appends remote elements missing from local, preserving order
// and dropping duplicates.
func unionSlices(local, remote []any) []any {
	out := make([]any, 0, len(local)+len(remote))
	for _, v := range local {
		if !containsValue(out, v) {
			out = append(out, v)
		}
	}
	for _, v := range remote {
		if !containsValue(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func containsValue(s []any, v any) bool {
	for _, e := range s {
		if reflect.DeepEqual(e, v) {
			return true
		}
	}
	return false
}
