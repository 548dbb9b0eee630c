package job

import (
	"errors"

	"github.com/diskcrypt/diskcryptd/pkg/crypt"
)

// Code is the single terminal exit code of a job. Zero is success, negative
// values identify the failure kind. CodeRebootRequired is a distinguished
// non-error outcome callers must handle explicitly.
type Code int

const (
	CodeSuccess            Code = 0
	CodeParamsInvalid      Code = -1
	CodeDeviceMounted      Code = -2
	CodeDeviceEncrypted    Code = -3
	CodeDisabledMountPoint Code = -4
	CodeEngineInit         Code = -5
	CodeEngineLoad         Code = -6
	CodeEngineFormat       Code = -7
	CodeAddKeyslot         Code = -8
	CodeChangeKeyslot      Code = -9
	CodeReencrypt          Code = -10
	CodeActivate           Code = -11
	CodeDeactivate         Code = -12
	CodeHeaderCreate       Code = -13
	CodeHeaderApply        Code = -14
	CodeHeaderBackup       Code = -15
	CodeHeaderRestore      Code = -16
	CodeGetFlags           Code = -17
	CodeWrongFlags         Code = -18
	CodeResizeFailed       Code = -19
	CodeTokenSetFailed     Code = -20
	CodeOpenFile           Code = -21
	CodeUserCancelled      Code = -22
	CodeRebootRequired     Code = -23
	CodeUnknown            Code = -99
)

var codeNames = map[Code]string{
	CodeSuccess:            "success",
	CodeParamsInvalid:      "params-invalid",
	CodeDeviceMounted:      "device-mounted",
	CodeDeviceEncrypted:    "device-already-encrypted",
	CodeDisabledMountPoint: "disabled-mount-point",
	CodeEngineInit:         "engine-init",
	CodeEngineLoad:         "engine-load",
	CodeEngineFormat:       "engine-format",
	CodeAddKeyslot:         "add-keyslot",
	CodeChangeKeyslot:      "change-keyslot",
	CodeReencrypt:          "reencrypt",
	CodeActivate:           "activate",
	CodeDeactivate:         "deactivate",
	CodeHeaderCreate:       "header-create",
	CodeHeaderApply:        "header-apply",
	CodeHeaderBackup:       "header-backup",
	CodeHeaderRestore:      "header-restore",
	CodeGetFlags:           "get-flags",
	CodeWrongFlags:         "wrong-flags",
	CodeResizeFailed:       "resize-failed",
	CodeTokenSetFailed:     "token-set-failed",
	CodeOpenFile:           "open-file",
	CodeUserCancelled:      "user-cancelled",
	CodeRebootRequired:     "reboot-required",
	CodeUnknown:            "unknown",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown"
}

// OK reports whether the code is a successful outcome.
func (c Code) OK() bool { return c == CodeSuccess }

var engineCodes = []struct {
	err  error
	code Code
}{
	{crypt.ErrInit, CodeEngineInit},
	{crypt.ErrLoad, CodeEngineLoad},
	{crypt.ErrFormat, CodeEngineFormat},
	{crypt.ErrAddKeyslot, CodeAddKeyslot},
	{crypt.ErrChangeKeyslot, CodeChangeKeyslot},
	{crypt.ErrReencrypt, CodeReencrypt},
	{crypt.ErrActivate, CodeActivate},
	{crypt.ErrDeactivate, CodeDeactivate},
	{crypt.ErrHeaderBackup, CodeHeaderBackup},
	{crypt.ErrHeaderRestore, CodeHeaderRestore},
	{crypt.ErrGetFlags, CodeGetFlags},
	{crypt.ErrWrongFlags, CodeWrongFlags},
	{crypt.ErrTokenSet, CodeTokenSetFailed},
}

// CodeOf maps an engine error to its exit code, so raw engine failures
// never cross the worker boundary.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	for _, m := range engineCodes {
		if errors.Is(err, m.err) {
			return m.code
		}
	}
	return CodeUnknown
}
