package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diskcrypt/diskcryptd/pkg/crypt"
	"github.com/diskcrypt/diskcryptd/pkg/job"
	"github.com/diskcrypt/diskcryptd/pkg/tpm"
)

func TestChangePassphrase(t *testing.T) {
	engine := crypt.NewFakeEngine()
	engine.Keys["/dev/chg1"] = map[int]string{0: "old"}
	w := &ChangePassphrase{
		Req: ChangePassphraseRequest{
			Device:        "/dev/chg1",
			OldPassphrase: "old",
			NewPassphrase: "new",
		},
		Engine: engine,
	}

	code := w.Run(context.Background())
	require.Equal(t, job.CodeSuccess, code)
	assert.Equal(t, 0, w.NewSlot)
	assert.Equal(t, "new", engine.Keys["/dev/chg1"][0])
}

func TestChangePassphraseWrongCredential(t *testing.T) {
	engine := crypt.NewFakeEngine()
	engine.Keys["/dev/chg2"] = map[int]string{0: "old"}
	w := &ChangePassphrase{
		Req: ChangePassphraseRequest{
			Device:        "/dev/chg2",
			OldPassphrase: "not-the-passphrase",
			NewPassphrase: "new",
		},
		Engine: engine,
	}

	assert.Equal(t, job.CodeChangeKeyslot, w.Run(context.Background()))
	assert.Equal(t, "old", engine.Keys["/dev/chg2"][0])
}

func TestChangePassphraseWithRecoveryKey(t *testing.T) {
	engine := crypt.NewFakeEngine()
	engine.Keys["/dev/chg3"] = map[int]string{0: "pw", 1: "RECOVERYKEY"}
	w := &ChangePassphrase{
		Req: ChangePassphraseRequest{
			Device:         "/dev/chg3",
			OldPassphrase:  "RECOVERYKEY",
			NewPassphrase:  "fresh",
			UseRecoveryKey: true,
		},
		Engine: engine,
	}

	code := w.Run(context.Background())
	require.Equal(t, job.CodeSuccess, code)
	// the recovery key stays enrolled, the new credential got its own slot
	assert.Equal(t, 2, w.NewSlot)
	assert.Equal(t, "RECOVERYKEY", engine.Keys["/dev/chg3"][1])
	assert.Equal(t, "fresh", engine.Keys["/dev/chg3"][2])
}

func TestChangePassphraseRepointsToken(t *testing.T) {
	engine := crypt.NewFakeEngine()
	engine.Keys["/dev/chg4"] = map[int]string{0: "old"}
	w := &ChangePassphrase{
		Req: ChangePassphraseRequest{
			Device:        "/dev/chg4",
			OldPassphrase: "old",
			NewPassphrase: "new",
			TPMToken:      `{"type":"tpm2","keyslots":["9"],"enc-blob":"x","token_index":2}`,
		},
		Engine: engine,
	}

	code := w.Run(context.Background())
	require.Equal(t, job.CodeSuccess, code)

	stored := engine.Tok["/dev/chg4"][2]
	token, err := tpm.ParseToken([]byte(stored))
	require.NoError(t, err)
	assert.Equal(t, []int{0}, token.Keyslots)
}

func TestChangePassphraseRollsBackOnTokenFailure(t *testing.T) {
	engine := crypt.NewFakeEngine()
	engine.Keys["/dev/chg5"] = map[int]string{0: "old"}
	engine.FailWith["TokenSet"] = crypt.ErrTokenSet
	w := &ChangePassphrase{
		Req: ChangePassphraseRequest{
			Device:        "/dev/chg5",
			OldPassphrase: "old",
			NewPassphrase: "new",
			TPMToken:      `{"type":"tpm2","keyslots":["0"],"token_index":1}`,
		},
		Engine: engine,
	}

	code := w.Run(context.Background())
	assert.Equal(t, job.CodeTokenSetFailed, code)
	// the credential change was reverted
	assert.Equal(t, "old", engine.Keys["/dev/chg5"][0])
}

func TestChangePassphraseMalformedToken(t *testing.T) {
	engine := crypt.NewFakeEngine()
	engine.Keys["/dev/chg6"] = map[int]string{0: "old"}
	w := &ChangePassphrase{
		Req: ChangePassphraseRequest{
			Device:        "/dev/chg6",
			OldPassphrase: "old",
			NewPassphrase: "new",
			TPMToken:      "{not json",
		},
		Engine: engine,
	}

	assert.Equal(t, job.CodeParamsInvalid, w.Run(context.Background()))
}
