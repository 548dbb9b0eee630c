package crypt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"k8s.io/klog/v2"
	k8sexec "k8s.io/utils/exec"
)

// CryptsetupEngine drives the LUKS2 engine through the cryptsetup binary.
// Passphrases are always fed over stdin, never through argv.
type CryptsetupEngine struct {
	exec k8sexec.Interface
}

func NewCryptsetupEngine(exec k8sexec.Interface) *CryptsetupEngine {
	return &CryptsetupEngine{exec: exec}
}

var _ Engine = &CryptsetupEngine{}

func (e *CryptsetupEngine) IsLuks(device string) bool {
	return e.exec.Command("cryptsetup", "isLuks", device).Run() == nil
}

func (e *CryptsetupEngine) Format(device string, params FormatParams) (int, error) {
	args := []string{"-q", "--type", "luks2"}
	if params.Cipher != "" {
		cipher := params.Cipher
		if params.CipherMode != "" {
			cipher = cipher + "-" + params.CipherMode
		}
		args = append(args, "--cipher="+cipher)
	}
	if params.KeyBits > 0 {
		args = append(args, fmt.Sprintf("--key-size=%d", params.KeyBits))
	}
	if params.Header != "" {
		args = append(args, "--header", params.Header)
	}
	if params.DataOffsetSectors > 0 {
		args = append(args, "--offset", strconv.FormatInt(params.DataOffsetSectors, 10))
	}
	// the initial passphrase always lands in slot 0 on a fresh header
	args = append(args, "--key-slot", "0", "luksFormat", device)

	cmd := e.exec.Command("cryptsetup", args...)
	cmd.SetStdin(strings.NewReader(params.Passphrase))
	if out, err := cmd.CombinedOutput(); err != nil {
		return -1, fmt.Errorf("%w: %v, output: %s", ErrFormat, err, out)
	}
	klog.V(4).InfoS("Formatted LUKS2 header", "device", device, "header", params.Header)
	return 0, nil
}

func (e *CryptsetupEngine) AddKeyslot(device, header, passphrase, newPassphrase string) (int, error) {
	args := []string{"-q"}
	if header != "" {
		args = append(args, "--header", header)
	}
	args = append(args, "luksAddKey", device)

	cmd := e.exec.Command("cryptsetup", args...)
	cmd.SetStdin(strings.NewReader(passphrase + "\n" + newPassphrase + "\n"))
	if out, err := cmd.CombinedOutput(); err != nil {
		return -1, fmt.Errorf("%w: %v, output: %s", ErrAddKeyslot, err, out)
	}
	return e.newestKeyslot(device, header)
}

func (e *CryptsetupEngine) ChangeKeyslot(device, oldPassphrase, newPassphrase string) (int, error) {
	cmd := e.exec.Command("cryptsetup", "-q", "luksChangeKey", device)
	cmd.SetStdin(strings.NewReader(oldPassphrase + "\n" + newPassphrase + "\n"))
	if out, err := cmd.CombinedOutput(); err != nil {
		return -1, fmt.Errorf("%w: %v, output: %s", ErrChangeKeyslot, err, out)
	}
	return e.newestKeyslot(device, "")
}

// newestKeyslot reports the highest populated keyslot index, which is where
// cryptsetup places a key it has just enrolled.
func (e *CryptsetupEngine) newestKeyslot(device, header string) (int, error) {
	target := device
	if header != "" {
		target = header
	}
	md, err := e.dump(target)
	if err != nil {
		return -1, err
	}
	slot := -1
	for k := range md.Keyslots {
		if n, err := strconv.Atoi(k); err == nil && n > slot {
			slot = n
		}
	}
	return slot, nil
}

func reencryptArgs(device string, params ReencryptParams) []string {
	args := []string{"-q", "--batch-mode"}
	switch params.Mode {
	case ModeEncrypt:
		args = append(args, "--encrypt")
	case ModeDecrypt:
		args = append(args, "--decrypt")
	}
	// the pass direction is implied by the mode; params.Direction documents
	// the intent for callers and fakes
	if params.Resilience != "" {
		args = append(args, "--resilience", params.Resilience)
	}
	if params.DataShiftKiB > 0 {
		args = append(args, "--reduce-device-size", fmt.Sprintf("%dk", params.DataShiftKiB))
	}
	if params.Header != "" {
		args = append(args, "--header", params.Header)
	}
	if params.InitOnly {
		args = append(args, "--init-only")
	}
	if params.ResumeOnly {
		args = append(args, "--resume-only")
	}
	if params.ActiveName != "" {
		args = append(args, "--active-name", params.ActiveName)
	}
	return append(args, "reencrypt", device)
}

func (e *CryptsetupEngine) ReencryptInit(device string, params ReencryptParams) error {
	params.InitOnly = true
	cmd := e.exec.Command("cryptsetup", reencryptArgs(device, params)...)
	cmd.SetStdin(strings.NewReader(params.Passphrase))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: init: %v, output: %s", ErrReencrypt, err, out)
	}
	klog.V(4).InfoS("Reencryption initialized", "device", device, "mode", params.Mode)
	return nil
}

func (e *CryptsetupEngine) ReencryptRun(device string, params ReencryptParams, progress ProgressFunc) error {
	args := append(reencryptArgs(device, params), "--progress-json")
	cmd := e.exec.Command("cryptsetup", args...)
	cmd.SetStdin(strings.NewReader(params.Passphrase))
	var errBuf bytes.Buffer
	if progress != nil {
		cmd.SetStderr(newProgressWriter(progress, &errBuf))
	} else {
		cmd.SetStderr(&errBuf)
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %v, output: %s", ErrReencrypt, err, errBuf.Bytes())
	}
	return nil
}

func (e *CryptsetupEngine) Activate(device, name, passphrase, header string) error {
	args := []string{"-q", "--type", "luks2"}
	if header != "" {
		args = append(args, "--header", header)
	}
	args = append(args, "luksOpen", device, name)
	cmd := e.exec.Command("cryptsetup", args...)
	cmd.SetStdin(strings.NewReader(passphrase))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %v, output: %s", ErrActivate, err, out)
	}
	return nil
}

func (e *CryptsetupEngine) Deactivate(name string) error {
	if out, err := e.exec.Command("cryptsetup", "luksClose", name).CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %v, output: %s", ErrDeactivate, err, out)
	}
	return nil
}

func (e *CryptsetupEngine) HeaderBackup(device, path string) error {
	cmd := e.exec.Command("cryptsetup", "-q", "luksHeaderBackup", device, "--header-backup-file", path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %v, output: %s", ErrHeaderBackup, err, out)
	}
	return nil
}

func (e *CryptsetupEngine) HeaderRestore(device, path string) error {
	cmd := e.exec.Command("cryptsetup", "-q", "luksHeaderRestore", device, "--header-backup-file", path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %v, output: %s", ErrHeaderRestore, err, out)
	}
	return nil
}

func (e *CryptsetupEngine) PersistentFlags(device string) (RequirementFlags, error) {
	if _, err := os.Stat(device); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInit, err)
	}
	md, err := e.dump(device)
	if err != nil {
		return 0, err
	}
	return md.Config.Requirements.flags(), nil
}

func (e *CryptsetupEngine) Tokens(device string) (map[int]string, error) {
	md, err := e.dump(device)
	if err != nil {
		return nil, err
	}
	tokens := make(map[int]string, len(md.Tokens))
	for k, raw := range md.Tokens {
		idx, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		tokens[idx] = string(raw)
	}
	return tokens, nil
}

func (e *CryptsetupEngine) TokenSet(device string, index int, tokenJSON string) error {
	args := []string{"-q", "token", "import"}
	if index >= 0 {
		args = append(args, "--token-id", strconv.Itoa(index), "--token-replace")
	}
	args = append(args, device)
	cmd := e.exec.Command("cryptsetup", args...)
	cmd.SetStdin(strings.NewReader(tokenJSON))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %v, output: %s", ErrTokenSet, err, out)
	}
	return nil
}

func (e *CryptsetupEngine) SetLabel(device, label string) error {
	cmd := e.exec.Command("cryptsetup", "-q", "config", device, "--label", label)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %v, output: %s", ErrSetLabel, err, out)
	}
	return nil
}

// dump loads the LUKS2 JSON metadata area of a device or header file.
func (e *CryptsetupEngine) dump(target string) (*dumpMetadata, error) {
	out, err := e.exec.Command("cryptsetup", "luksDump", "--dump-json-metadata", target).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%w: %v, output: %s", ErrLoad, err, out)
	}
	md := &dumpMetadata{}
	if err := json.Unmarshal(out, md); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	return md, nil
}

// dumpMetadata extends luksMetadata with the keyslot map needed to locate a
// freshly enrolled key.
type dumpMetadata struct {
	luksMetadata
	Keyslots map[string]json.RawMessage `json:"keyslots"`
}

// progressWriter splits the engine's --progress-json stderr stream into
// lines, forwarding parsed progress and keeping everything else for error
// reporting.
type progressWriter struct {
	cb   ProgressFunc
	rest *bytes.Buffer
	buf  bytes.Buffer
}

func newProgressWriter(cb ProgressFunc, rest *bytes.Buffer) *progressWriter {
	return &progressWriter{cb: cb, rest: rest}
}

type progressLine struct {
	DeviceBytes string `json:"device_bytes"`
	DeviceSize  string `json:"device_size"`
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// keep the partial line for the next write
			w.buf.WriteString(line)
			break
		}
		w.consume(strings.TrimSpace(line))
	}
	return len(p), nil
}

func (w *progressWriter) consume(line string) {
	if line == "" {
		return
	}
	var pl progressLine
	if err := json.Unmarshal([]byte(line), &pl); err != nil || pl.DeviceSize == "" {
		w.rest.WriteString(line)
		w.rest.WriteByte('\n')
		return
	}
	processed, err1 := strconv.ParseUint(pl.DeviceBytes, 10, 64)
	size, err2 := strconv.ParseUint(pl.DeviceSize, 10, 64)
	if err1 != nil || err2 != nil || size == 0 {
		return
	}
	w.cb(processed, size)
}
