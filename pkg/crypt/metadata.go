package crypt

import (
	"encoding/json"
	"strings"
)

// luksMetadata is the subset of the LUKS2 JSON metadata area the adapter
// cares about.
type luksMetadata struct {
	Tokens map[string]json.RawMessage `json:"tokens"`
	Config luksConfig                 `json:"config"`
}

type luksConfig struct {
	Requirements requirementList `json:"requirements"`
}

// requirementList accepts both a bare string list and the mandatory/optional
// object newer headers emit.
type requirementList []string

func (l *requirementList) UnmarshalJSON(data []byte) error {
	var plain []string
	if err := json.Unmarshal(data, &plain); err == nil {
		*l = plain
		return nil
	}
	var obj struct {
		Mandatory []string `json:"mandatory"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*l = obj.Mandatory
	return nil
}

func (l requirementList) flags() RequirementFlags {
	var flags RequirementFlags
	for _, req := range l {
		switch {
		case strings.HasPrefix(req, "online-reencrypt"):
			flags |= RequirementOnlineReencrypt
		case strings.HasPrefix(req, "offline-reencrypt"):
			flags |= RequirementOfflineReencrypt
		default:
			flags |= RequirementUnknown
		}
	}
	return flags
}
