package crypt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequirementListShapes(t *testing.T) {
	// older headers emit a plain list, newer ones a mandatory/optional object
	testCases := []struct {
		name     string
		raw      string
		expected RequirementFlags
	}{
		{
			name:     "plain list",
			raw:      `{"config":{"requirements":["online-reencrypt"]}}`,
			expected: RequirementOnlineReencrypt,
		},
		{
			name:     "mandatory object",
			raw:      `{"config":{"requirements":{"mandatory":["online-reencrypt-v2"]}}}`,
			expected: RequirementOnlineReencrypt,
		},
		{
			name:     "offline",
			raw:      `{"config":{"requirements":{"mandatory":["offline-reencrypt"]}}}`,
			expected: RequirementOfflineReencrypt,
		},
		{
			name:     "unrecognized requirement",
			raw:      `{"config":{"requirements":{"mandatory":["opal2"]}}}`,
			expected: RequirementUnknown,
		},
		{
			name:     "absent",
			raw:      `{"config":{}}`,
			expected: 0,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var md luksMetadata
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &md))
			assert.Equal(t, tc.expected, md.Config.Requirements.flags())
		})
	}
}

func TestMetadataTokensRaw(t *testing.T) {
	raw := `{"tokens":{"0":{"type":"recoverykey","keyslots":["2"]}},"config":{}}`
	var md luksMetadata
	require.NoError(t, json.Unmarshal([]byte(raw), &md))
	require.Contains(t, md.Tokens, "0")
	assert.JSONEq(t, `{"type":"recoverykey","keyslots":["2"]}`, string(md.Tokens["0"]))
}
