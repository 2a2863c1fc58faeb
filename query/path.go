// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

package query

import (
	"encoding/json"
	"fmt"

	"github.com/agentsched/core/params"
	"github.com/agentsched/core/tasks"
)

// getPath walks a generic JSON path (§4.6: "sequences of field-names and
// array indices") against a decoded JSON value.
func getPath(v interface{}, path []tasks.PathSegment) (interface{}, error) {
	cur := v
	for _, seg := range path {
		if seg.IsIdx {
			arr, ok := cur.([]interface{})
			if !ok || seg.Index < 0 || seg.Index >= len(arr) {
				return nil, params.Newf(params.InvalidTransform, "path index %d out of range", seg.Index)
			}
			cur = arr[seg.Index]
			continue
		}
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, params.Newf(params.InvalidTransform, "path field %q not an object", seg.Field)
		}
		val, ok := obj[seg.Field]
		if !ok {
			return nil, params.Newf(params.InvalidTransform, "path field %q not found", seg.Field)
		}
		cur = val
	}
	return cur, nil
}

// setPath writes value at path inside root, creating intermediate maps as
// needed, and returns the (possibly new) root.
func setPath(root interface{}, path []tasks.PathSegment, value interface{}) (interface{}, error) {
	if len(path) == 0 {
		return value, nil
	}
	if root == nil {
		if path[0].IsIdx {
			root = make([]interface{}, 0)
		} else {
			root = make(map[string]interface{})
		}
	}
	seg := path[0]
	rest := path[1:]

	if seg.IsIdx {
		arr, ok := root.([]interface{})
		if !ok {
			return nil, params.Newf(params.InvalidTransform, "path index %d into non-array", seg.Index)
		}
		for len(arr) <= seg.Index {
			arr = append(arr, nil)
		}
		child, err := setPath(arr[seg.Index], rest, value)
		if err != nil {
			return nil, err
		}
		arr[seg.Index] = child
		return arr, nil
	}

	obj, ok := root.(map[string]interface{})
	if !ok {
		return nil, params.Newf(params.InvalidTransform, "path field %q into non-object", seg.Field)
	}
	child, err := setPath(obj[seg.Field], rest, value)
	if err != nil {
		return nil, err
	}
	obj[seg.Field] = child
	return obj, nil
}

// ApplyTransforms implements §4.6's "value at query_response_path ...
// replaces the value at action_path": for each transform, decode the
// query's response data and the target action's payload as JSON, copy the
// value, re-encode. Actions without an incoming transform are passed
// through unmodified.
func ApplyTransforms(actions []tasks.Action, transforms []tasks.Transform, responses []Result) ([]tasks.Action, error) {
	out := make([]tasks.Action, len(actions))
	copy(out, actions)

	for _, t := range transforms {
		if t.QueryIdx < 0 || t.QueryIdx >= len(responses) {
			return nil, params.Newf(params.InvalidTransform, "query_idx %d out of range", t.QueryIdx)
		}
		if t.ActionIdx < 0 || t.ActionIdx >= len(out) {
			return nil, params.Newf(params.InvalidTransform, "action_idx %d out of range", t.ActionIdx)
		}

		var respVal interface{}
		if err := json.Unmarshal(responses[t.QueryIdx].Data, &respVal); err != nil {
			return nil, params.Newf(params.InvalidTransform, "query %d response not JSON: %v", t.QueryIdx, err)
		}
		value, err := getPath(respVal, t.QueryResponsePath)
		if err != nil {
			return nil, err
		}

		action := out[t.ActionIdx]
		var payload interface{}
		if len(action.Payload) > 0 {
			if err := json.Unmarshal(action.Payload, &payload); err != nil {
				return nil, params.Newf(params.InvalidTransform, "action %d payload not JSON: %v", t.ActionIdx, err)
			}
		}
		newPayload, err := setPath(payload, t.ActionPath, value)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(newPayload)
		if err != nil {
			return nil, fmt.Errorf("re-encoding transformed payload: %w", err)
		}
		action.Payload = encoded
		out[t.ActionIdx] = action
	}
	return out, nil
}
