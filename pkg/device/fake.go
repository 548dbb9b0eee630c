package device

import "fmt"

// FakeMonitor is an in-memory Monitor for tests.
type FakeMonitor struct {
	Devices []Info
	Props   map[string]Properties
	Mounted map[string]bool
	Blocks  map[string]bool
}

func NewFakeMonitor() *FakeMonitor {
	return &FakeMonitor{
		Props:   map[string]Properties{},
		Mounted: map[string]bool{},
		Blocks:  map[string]bool{},
	}
}

var _ Monitor = &FakeMonitor{}

func (f *FakeMonitor) List() ([]Info, error) {
	return f.Devices, nil
}

func (f *FakeMonitor) Resolve(source string) (Info, error) {
	for _, d := range f.Devices {
		if d.Path == source || "UUID="+d.UUID == source {
			return d, nil
		}
	}
	return Info{}, fmt.Errorf("no device matches %q", source)
}

func (f *FakeMonitor) IsBlockDevice(path string) (bool, error) {
	return f.Blocks[path], nil
}

func (f *FakeMonitor) IsMounted(device string) (bool, error) {
	return f.Mounted[device], nil
}

func (f *FakeMonitor) IsEncrypted(device string) (bool, error) {
	return f.Props[device].IDType == "crypto_LUKS", nil
}

func (f *FakeMonitor) Properties(device string) (Properties, error) {
	return f.Props[device], nil
}
