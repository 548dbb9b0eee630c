package tpm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTripPreservesUnknownFields(t *testing.T) {
	raw := `{"type":"tpm2","keyslots":["1"],"enc-blob":"AQIDBA==","pcrs":[7],"pin":"true"}`

	token, err := ParseToken([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, TokenTypeTPM2, token.Type)
	assert.Equal(t, []int{1}, token.Keyslots)
	assert.Equal(t, -1, token.Index)

	out, err := token.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestTokenSetKeyslots(t *testing.T) {
	token, err := ParseToken([]byte(`{"type":"tpm2","keyslots":["0"],"enc-blob":"x"}`))
	require.NoError(t, err)

	token.SetKeyslots(3)
	out, err := token.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"tpm2","keyslots":["3"],"enc-blob":"x"}`, string(out))
}

func TestTokenIndexOnlySerializedWhenKnown(t *testing.T) {
	token := NewRecoveryToken(2)
	out, err := token.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"recoverykey","keyslots":["2"]}`, string(out))

	token.Index = 5
	out, err = token.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"recoverykey","keyslots":["2"],"token_index":5}`, string(out))
}

func TestParseTokenNumericKeyslots(t *testing.T) {
	token, err := ParseToken([]byte(`{"type":"recoverykey","keyslots":[0,4]}`))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 4}, token.Keyslots)
}

func TestParseTokenMalformed(t *testing.T) {
	_, err := ParseToken([]byte(`{`))
	require.Error(t, err)

	_, err = ParseToken([]byte(`{"type":"tpm2","keyslots":["abc"]}`))
	require.Error(t, err)
}
