package crypt

import (
	"fmt"
	"sync"
)

// FakeEngine is an in-memory Engine for tests. Failures are injected per
// method name through FailWith; every call is recorded in Calls.
type FakeEngine struct {
	mu sync.Mutex

	Luks     map[string]bool
	Flags    map[string]RequirementFlags
	Keys     map[string]map[int]string
	Tok      map[string]map[int]string
	Labels   map[string]string
	FailWith map[string]error
	Calls    []string

	// ProgressTotal drives the synthetic progress stream of ReencryptRun.
	ProgressTotal uint64
}

func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		Luks:          map[string]bool{},
		Flags:         map[string]RequirementFlags{},
		Keys:          map[string]map[int]string{},
		Tok:           map[string]map[int]string{},
		Labels:        map[string]string{},
		FailWith:      map[string]error{},
		ProgressTotal: 1 << 20,
	}
}

var _ Engine = &FakeEngine{}

func (f *FakeEngine) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, call)
	return f.FailWith[call]
}

func (f *FakeEngine) slots(device string) map[int]string {
	if f.Keys[device] == nil {
		f.Keys[device] = map[int]string{}
	}
	return f.Keys[device]
}

func (f *FakeEngine) freeSlot(device string) int {
	slots := f.slots(device)
	for i := 0; ; i++ {
		if _, used := slots[i]; !used {
			return i
		}
	}
}

func (f *FakeEngine) IsLuks(device string) bool {
	f.record("IsLuks")
	return f.Luks[device]
}

func (f *FakeEngine) Format(device string, params FormatParams) (int, error) {
	if err := f.record("Format"); err != nil {
		return -1, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Keys[device] = map[int]string{0: params.Passphrase}
	f.Luks[device] = true
	return 0, nil
}

func (f *FakeEngine) AddKeyslot(device, header, passphrase, newPassphrase string) (int, error) {
	if err := f.record("AddKeyslot"); err != nil {
		return -1, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	slot := f.freeSlot(device)
	f.slots(device)[slot] = newPassphrase
	return slot, nil
}

func (f *FakeEngine) ChangeKeyslot(device, oldPassphrase, newPassphrase string) (int, error) {
	if err := f.record("ChangeKeyslot"); err != nil {
		return -1, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for slot, pass := range f.slots(device) {
		if pass == oldPassphrase {
			f.slots(device)[slot] = newPassphrase
			return slot, nil
		}
	}
	return -1, fmt.Errorf("%w: no keyslot matches", ErrChangeKeyslot)
}

func (f *FakeEngine) ReencryptInit(device string, params ReencryptParams) error {
	if err := f.record("ReencryptInit"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	// an initialized reencryption leaves the online requirement set until a
	// run completes it
	f.Flags[device] |= RequirementOnlineReencrypt
	return nil
}

func (f *FakeEngine) ReencryptRun(device string, params ReencryptParams, progress ProgressFunc) error {
	if err := f.record("ReencryptRun"); err != nil {
		return err
	}
	if progress != nil {
		progress(f.ProgressTotal/2, f.ProgressTotal)
		progress(f.ProgressTotal, f.ProgressTotal)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	// a completed pass clears the requirement flags
	f.Flags[device] = 0
	return nil
}

func (f *FakeEngine) Activate(device, name, passphrase, header string) error {
	return f.record("Activate")
}

func (f *FakeEngine) Deactivate(name string) error {
	return f.record("Deactivate")
}

func (f *FakeEngine) HeaderBackup(device, path string) error {
	return f.record("HeaderBackup")
}

func (f *FakeEngine) HeaderRestore(device, path string) error {
	return f.record("HeaderRestore")
}

func (f *FakeEngine) PersistentFlags(device string) (RequirementFlags, error) {
	if err := f.record("PersistentFlags"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Flags[device], nil
}

func (f *FakeEngine) Tokens(device string) (map[int]string, error) {
	if err := f.record("Tokens"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[int]string{}
	for k, v := range f.Tok[device] {
		out[k] = v
	}
	return out, nil
}

func (f *FakeEngine) TokenSet(device string, index int, tokenJSON string) error {
	if err := f.record("TokenSet"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Tok[device] == nil {
		f.Tok[device] = map[int]string{}
	}
	if index < 0 {
		for i := 0; ; i++ {
			if _, used := f.Tok[device][i]; !used {
				index = i
				break
			}
		}
	}
	f.Tok[device][index] = tokenJSON
	return nil
}

func (f *FakeEngine) SetLabel(device, label string) error {
	if err := f.record("SetLabel"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Labels[device] = label
	return nil
}
