package disk

import (
	errors "github.com/Laisky/errors/v2"
)

// Manager resolves logical names to configured disks.
type Manager struct {
	disks map[Name]Disk
}

// NewManager registers disks by their names. Each name may appear once.
func NewManager(disks ...Disk) (*Manager, error) {
	m := &Manager{disks: make(map[Name]Disk, len(disks))}
	for _, d := range disks {
		if d == nil {
			return nil, errors.New("disk is nil")
		}
		if _, err := ParseName(string(d.Name())); err != nil {
			return nil, errors.WithStack(err)
		}
		if _, ok := m.disks[d.Name()]; ok {
			return nil, errors.Errorf("disk %q registered twice", d.Name())
		}
		m.disks[d.Name()] = d
	}

	return m, nil
}

// Disk returns the disk registered under name.
func (m *Manager) Disk(name Name) (Disk, error) {
	d, ok := m.disks[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownName, "%q is not configured", name)
	}
	return d, nil
}

// Names returns the configured disk names in display order.
func (m *Manager) Names() []Name {
	names := make([]Name, 0, len(m.disks))
	for _, name := range Names() {
		if _, ok := m.disks[name]; ok {
			names = append(names, name)
		}
	}
	return names
}
