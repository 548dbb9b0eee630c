package worker

import (
	"context"
	"encoding/json"

	"k8s.io/klog/v2"

	"github.com/diskcrypt/diskcryptd/pkg/crypt"
	"github.com/diskcrypt/diskcryptd/pkg/job"
	"github.com/diskcrypt/diskcryptd/pkg/tpm"
)

// ChangePassphrase rotates a device credential and keeps the TPM token
// pointing at the right keyslot. A failed token write rolls the credential
// change back, best effort.
type ChangePassphrase struct {
	Req    ChangePassphraseRequest
	Engine crypt.Engine

	// NewSlot is the keyslot holding the new passphrase on success.
	NewSlot int
}

var _ job.Runner = &ChangePassphrase{}

func (w *ChangePassphrase) Run(ctx context.Context) job.Code {
	logger := klog.FromContext(ctx)

	var slot int
	var err error
	if w.Req.UseRecoveryKey {
		// the recovery passphrase stays valid, the new credential gets its
		// own keyslot
		slot, err = w.Engine.AddKeyslot(w.Req.Device, "", w.Req.OldPassphrase, w.Req.NewPassphrase)
	} else {
		slot, err = w.Engine.ChangeKeyslot(w.Req.Device, w.Req.OldPassphrase, w.Req.NewPassphrase)
	}
	if err != nil {
		logger.Error(err, "Credential change failed", "device", w.Req.Device)
		return job.CodeOf(err)
	}
	w.NewSlot = slot

	if w.Req.TPMToken == "" {
		return job.CodeSuccess
	}

	token, err := tpm.ParseToken([]byte(w.Req.TPMToken))
	if err != nil {
		logger.Error(err, "Malformed TPM token", "device", w.Req.Device)
		return job.CodeParamsInvalid
	}
	token.SetKeyslots(slot)
	data, err := json.Marshal(token)
	if err != nil {
		return job.CodeParamsInvalid
	}
	if err := w.Engine.TokenSet(w.Req.Device, token.Index, string(data)); err != nil {
		logger.Error(err, "Token update failed, reverting credential change", "device", w.Req.Device)
		if _, rbErr := w.Engine.ChangeKeyslot(w.Req.Device, w.Req.NewPassphrase, w.Req.OldPassphrase); rbErr != nil {
			logger.Error(rbErr, "Credential rollback failed", "device", w.Req.Device)
		}
		return job.CodeTokenSetFailed
	}
	return job.CodeSuccess
}
