package access

import (
	"context"
	"sync"
	"testing"

	errors "github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"

	"github.com/Laisky/campus-portal/internal/storage/disk"
	"github.com/Laisky/campus-portal/internal/storage/registry"
)

type memoryRecords map[string]*registry.FileRecord

func (m memoryRecords) Find(_ context.Context, diskName disk.Name, filename string) (*registry.FileRecord, error) {
	rec, ok := m[string(diskName)+"/"+filename]
	if !ok {
		return nil, errors.Wrap(registry.ErrNotFound, filename)
	}
	return rec, nil
}

type failingRecords struct{}

func (failingRecords) Find(context.Context, disk.Name, string) (*registry.FileRecord, error) {
	return nil, errors.New("database down")
}

// memoryMembership maps organizations to members and activities to organizations.
type memoryMembership struct {
	members    map[uint64][]uint64
	activities map[uint64]uint64
	err        error
}

func (m *memoryMembership) IsOrganizationMember(_ context.Context, userID, organizationID uint64) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	for _, id := range m.members[organizationID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryMembership) ActivityOrganization(_ context.Context, activityID uint64) (uint64, bool, error) {
	if m.err != nil {
		return 0, false, m.err
	}
	orgID, ok := m.activities[activityID]
	return orgID, ok, nil
}

func id(v uint64) *uint64 {
	return &v
}

func newTestGate(t *testing.T) (*Gate, *memoryMembership) {
	t.Helper()
	records := memoryRecords{
		"organizations/org.png":    {Filename: "org.png", Disk: disk.Organizations, Context: registry.ContextOrganization, ContextID: id(10), UploadedBy: 1},
		"organizations/orphan.png": {Filename: "orphan.png", Disk: disk.Organizations, Context: registry.ContextOrganization, UploadedBy: 1},
		"activities/act.png":       {Filename: "act.png", Disk: disk.Activities, Context: registry.ContextActivity, ContextID: id(20), UploadedBy: 1},
		"activities/gone.png":      {Filename: "gone.png", Disk: disk.Activities, Context: registry.ContextActivity, ContextID: id(21), UploadedBy: 1},
		"news/news.png":            {Filename: "news.png", Disk: disk.News, Context: registry.ContextNews, UploadedBy: 1},
		"announcements/notice.pdf": {Filename: "notice.pdf", Disk: disk.Announcements, Context: registry.ContextAnnouncement, UploadedBy: 1},
		"announcements/loose.pdf":  {Filename: "loose.pdf", Disk: disk.Announcements, Context: registry.ContextNone, UploadedBy: 1},
	}
	membership := &memoryMembership{
		members:    map[uint64][]uint64{10: {2}},
		activities: map[uint64]uint64{20: 10},
	}
	gate, err := NewGate(records, membership, nil)
	require.NoError(t, err)
	return gate, membership
}

func TestAuthorizeDecisionTable(t *testing.T) {
	gate, _ := newTestGate(t)
	admin := &Principal{UserID: 99, Admin: true}
	uploader := &Principal{UserID: 1}
	member := &Principal{UserID: 2}
	stranger := &Principal{UserID: 3}

	cases := []struct {
		name      string
		disk      disk.Name
		filename  string
		principal *Principal
		outcome   Outcome
		reason    Reason
	}{
		{"admin any file", disk.Organizations, "org.png", admin, Allow, ReasonAdmin},
		{"admin unknown context", disk.Announcements, "loose.pdf", admin, Allow, ReasonAdmin},
		{"uploader own file", disk.Organizations, "org.png", uploader, Allow, ReasonUploader},
		{"member of organization", disk.Organizations, "org.png", member, Allow, ReasonMember},
		{"non member of organization", disk.Organizations, "org.png", stranger, Deny, ReasonNotMember},
		{"organization without id", disk.Organizations, "orphan.png", stranger, Deny, ReasonMissingContextID},
		{"member of activity organization", disk.Activities, "act.png", member, Allow, ReasonMember},
		{"non member of activity organization", disk.Activities, "act.png", stranger, Deny, ReasonNotMember},
		{"activity deleted", disk.Activities, "gone.png", member, Deny, ReasonNotMember},
		{"news any principal", disk.News, "news.png", stranger, Allow, ReasonPublicContext},
		{"announcement any principal", disk.Announcements, "notice.pdf", stranger, Allow, ReasonPublicContext},
		{"no context", disk.Announcements, "loose.pdf", stranger, Deny, ReasonUnknownContext},
		{"unauthenticated news", disk.News, "news.png", nil, Deny, ReasonUnauthenticated},
		{"unauthenticated organization", disk.Organizations, "org.png", nil, Deny, ReasonUnauthenticated},
		{"not registered", disk.News, "missing.png", member, NotFound, ReasonNotRegistered},
		{"registered on another disk", disk.News, "org.png", admin, NotFound, ReasonNotRegistered},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := gate.Authorize(context.Background(), tc.disk, tc.filename, tc.principal)
			require.NoError(t, err)
			require.Equal(t, tc.outcome, decision.Outcome)
			require.Equal(t, tc.reason, decision.Reason)
			require.Equal(t, tc.outcome == Allow, decision.Allowed())
			if tc.outcome == NotFound {
				require.Nil(t, decision.Record)
			} else {
				require.Equal(t, tc.filename, decision.Record.Filename)
			}
		})
	}
}

func TestAuthorizeSurfacesLookupErrors(t *testing.T) {
	gate, membership := newTestGate(t)
	membership.err = errors.New("directory down")

	_, err := gate.Authorize(context.Background(), disk.Organizations, "org.png", &Principal{UserID: 3})
	require.Error(t, err)

	gate, err = NewGate(failingRecords{}, membership, nil)
	require.NoError(t, err)
	_, err = gate.Authorize(context.Background(), disk.News, "news.png", &Principal{UserID: 3})
	require.Error(t, err)
}

func TestAuthorizeConcurrent(t *testing.T) {
	gate, _ := newTestGate(t)

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := gate.Authorize(context.Background(), disk.Organizations, "org.png", &Principal{UserID: uint64(i%4) + 1})
			require.NoError(t, err)
			require.Equal(t, i%4 <= 1, decision.Allowed())
		}()
	}
	wg.Wait()
}

func TestNewGateRequiresDependencies(t *testing.T) {
	_, err := NewGate(nil, &memoryMembership{}, nil)
	require.Error(t, err)
	_, err = NewGate(memoryRecords{}, nil, nil)
	require.Error(t, err)
}
