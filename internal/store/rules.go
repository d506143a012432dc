// ABOUTME: CommandRule override type and its JSON encoding in the command_rules column
// ABOUTME: Tracks which fields are present so absent fields inherit the compiled-in default

package store

import (
	"encoding/json"
	"fmt"
)

// CommandRule is a stored override for one command in one workspace. A nil
// field is absent and inherits the default. MinPerm pointing at "" means the
// override explicitly removes any permission requirement. An empty non-nil
// channel slice explicitly clears the default list.
type CommandRule struct {
	Enabled       *bool
	MinPerm       *string
	AllowChannels []string
	BlockChannels []string
}

// IsZero reports whether the override sets nothing.
func (r CommandRule) IsZero() bool {
	return r.Enabled == nil && r.MinPerm == nil && r.AllowChannels == nil && r.BlockChannels == nil
}

// Clone returns a deep copy.
func (r CommandRule) Clone() CommandRule {
	out := CommandRule{}
	if r.Enabled != nil {
		v := *r.Enabled
		out.Enabled = &v
	}
	if r.MinPerm != nil {
		v := *r.MinPerm
		out.MinPerm = &v
	}
	if r.AllowChannels != nil {
		out.AllowChannels = append([]string{}, r.AllowChannels...)
	}
	if r.BlockChannels != nil {
		out.BlockChannels = append([]string{}, r.BlockChannels...)
	}
	return out
}

// MarshalJSON always writes the current field names. A cleared permission
// requirement is written as null.
func (r CommandRule) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, 4)
	if r.Enabled != nil {
		obj["enabled"] = *r.Enabled
	}
	if r.MinPerm != nil {
		if *r.MinPerm == "" {
			obj["min_perm"] = nil
		} else {
			obj["min_perm"] = *r.MinPerm
		}
	}
	if r.AllowChannels != nil {
		obj["allow_channels"] = r.AllowChannels
	}
	if r.BlockChannels != nil {
		obj["block_channels"] = r.BlockChannels
	}
	return json.Marshal(obj)
}

// UnmarshalJSON accepts both the current names and the legacy
// required_perm / allowed_channels spellings. Current names win when both appear.
func (r *CommandRule) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding command rule: %w", err)
	}
	*r = CommandRule{}

	if v, ok := raw["enabled"]; ok && !isNull(v) {
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			return fmt.Errorf("decoding enabled: %w", err)
		}
		r.Enabled = &b
	}

	if v, ok := pick(raw, "min_perm", "required_perm"); ok {
		perm := ""
		if !isNull(v) {
			if err := json.Unmarshal(v, &perm); err != nil {
				return fmt.Errorf("decoding min_perm: %w", err)
			}
		}
		r.MinPerm = &perm
	}

	if v, ok := pick(raw, "allow_channels", "allowed_channels"); ok && !isNull(v) {
		list := []string{}
		if err := json.Unmarshal(v, &list); err != nil {
			return fmt.Errorf("decoding allow_channels: %w", err)
		}
		r.AllowChannels = list
	}

	if v, ok := raw["block_channels"]; ok && !isNull(v) {
		list := []string{}
		if err := json.Unmarshal(v, &list); err != nil {
			return fmt.Errorf("decoding block_channels: %w", err)
		}
		r.BlockChannels = list
	}

	return nil
}

func pick(raw map[string]json.RawMessage, names ...string) (json.RawMessage, bool) {
	for _, n := range names {
		if v, ok := raw[n]; ok {
			return v, true
		}
	}
	return nil, false
}

func isNull(v json.RawMessage) bool {
	return string(v) == "null"
}

func encodeRules(rules map[string]CommandRule) (string, error) {
	if rules == nil {
		rules = map[string]CommandRule{}
	}
	data, err := json.Marshal(rules)
	if err != nil {
		return "", fmt.Errorf("encoding command rules: %w", err)
	}
	return string(data), nil
}

func decodeRules(data []byte) (map[string]CommandRule, error) {
	rules := map[string]CommandRule{}
	if len(data) == 0 {
		return rules, nil
	}
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}
