package crypt

import "errors"

// Engine failures are wrapped into one of these kinds so callers never see
// raw cryptsetup exit codes.
var (
	ErrInit          = errors.New("crypt: device init failed")
	ErrLoad          = errors.New("crypt: metadata load failed")
	ErrFormat        = errors.New("crypt: format failed")
	ErrAddKeyslot    = errors.New("crypt: add keyslot failed")
	ErrChangeKeyslot = errors.New("crypt: change keyslot failed")
	ErrReencrypt     = errors.New("crypt: reencryption failed")
	ErrActivate      = errors.New("crypt: activation failed")
	ErrDeactivate    = errors.New("crypt: deactivation failed")
	ErrHeaderBackup  = errors.New("crypt: header backup failed")
	ErrHeaderRestore = errors.New("crypt: header restore failed")
	ErrGetFlags      = errors.New("crypt: persistent flags unavailable")
	ErrWrongFlags    = errors.New("crypt: device is not in the expected reencryption state")
	ErrTokenSet      = errors.New("crypt: token write failed")
	ErrSetLabel      = errors.New("crypt: set label failed")
)
