package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Laisky/campus-portal/internal/storage/disk"
	"github.com/Laisky/campus-portal/internal/storage/registry"
)

// fakeOwners records which domain entities exist.
type fakeOwners struct {
	mu       sync.Mutex
	existing map[string]bool
	err      error
}

func newFakeOwners() *fakeOwners {
	return &fakeOwners{existing: map[string]bool{}}
}

func (f *fakeOwners) set(c registry.Context, id uint64, exists bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existing[fmt.Sprintf("%s/%d", c, id)] = exists
}

// OwnerExists reports the configured state; unknown owners do not exist.
func (f *fakeOwners) OwnerExists(_ context.Context, c registry.Context, id uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	return f.existing[fmt.Sprintf("%s/%d", c, id)], nil
}

// flakyRegistry fails the next Create calls with the queued errors.
type flakyRegistry struct {
	FileRegistry
	createErrs []error
}

func (f *flakyRegistry) Create(ctx context.Context, rec *registry.FileRecord) error {
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return err
		}
	}
	return f.FileRegistry.Create(ctx, rec)
}

// flakyDeleteRegistry fails the next deleteFails Delete calls.
type flakyDeleteRegistry struct {
	FileRegistry
	mu          sync.Mutex
	deleteFails int
}

func (f *flakyDeleteRegistry) Delete(ctx context.Context, id uint64) error {
	f.mu.Lock()
	failing := f.deleteFails > 0
	if failing {
		f.deleteFails--
	}
	f.mu.Unlock()
	if failing {
		return errors.New("database is locked")
	}
	return f.FileRegistry.Delete(ctx, id)
}

// failingDeleteDisk refuses to delete the filenames in fail.
type failingDeleteDisk struct {
	*disk.LocalDisk
	mu   sync.Mutex
	fail map[string]bool
}

func (d *failingDeleteDisk) Delete(ctx context.Context, filename string) (bool, error) {
	d.mu.Lock()
	failing := d.fail[filename]
	d.mu.Unlock()
	if failing {
		return false, &disk.Error{Kind: disk.ErrUnavailable, Disk: d.Name(), Filename: filename}
	}
	return d.LocalDisk.Delete(ctx, filename)
}

type testEnv struct {
	svc    *Service
	reg    *registry.Registry
	owners *fakeOwners
	disks  map[disk.Name]*disk.LocalDisk
}

// newTestDB creates an in-memory sqlite database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s-%d?mode=memory&cache=shared", name, time.Now().UTC().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	return db
}

// newTestEnv wires a service over local disks in a temp dir and a sqlite registry.
// wrap may replace individual disks before they are registered.
func newTestEnv(t *testing.T, wrap func(*disk.LocalDisk) disk.Disk) *testEnv {
	t.Helper()
	root := t.TempDir()
	settings := DefaultSettings(root)

	env := &testEnv{
		owners: newFakeOwners(),
		disks:  map[disk.Name]*disk.LocalDisk{},
	}
	var all []disk.Disk
	for _, name := range disk.Names() {
		ds := settings.Disks[name]
		local, err := disk.NewLocalDisk(name, ds.Root, ds.URL)
		require.NoError(t, err)
		env.disks[name] = local

		var d disk.Disk = local
		if wrap != nil {
			d = wrap(local)
		}
		all = append(all, d)
	}
	manager, err := disk.NewManager(all...)
	require.NoError(t, err)

	env.reg, err = registry.New(newTestDB(t))
	require.NoError(t, err)
	require.NoError(t, env.reg.Migrate(context.Background()))

	env.svc, err = NewService(manager, env.reg, env.owners, settings, nil, nil)
	require.NoError(t, err)
	return env
}

// putAged writes an object directly to the disk and backdates it.
func (e *testEnv) putAged(t *testing.T, name disk.Name, filename, content string, age time.Duration) {
	t.Helper()
	local := e.disks[name]
	_, err := local.Put(context.Background(), filename, strings.NewReader(content), "")
	require.NoError(t, err)

	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(filepath.Join(local.Root(), filename), mtime, mtime))
}

// register creates a registry row without touching the disk.
func (e *testEnv) register(t *testing.T, name disk.Name, filename string, c registry.Context, contextID *uint64) *registry.FileRecord {
	t.Helper()
	rec := &registry.FileRecord{
		Filename:     filename,
		OriginalName: filename,
		MimeType:     "image/png",
		Path:         filename,
		Disk:         name,
		Context:      c,
		ContextID:    contextID,
		UploadedBy:   1,
	}
	require.NoError(t, e.reg.Create(context.Background(), rec))
	return rec
}

// registerAged creates a registry row dated age ago without touching the disk.
func (e *testEnv) registerAged(t *testing.T, name disk.Name, filename string, age time.Duration) *registry.FileRecord {
	t.Helper()
	rec := &registry.FileRecord{
		Filename:     filename,
		OriginalName: filename,
		MimeType:     "image/png",
		Path:         filename,
		Disk:         name,
		Context:      registry.ContextNone,
		UploadedBy:   1,
		CreatedAt:    time.Now().Add(-age),
	}
	require.NoError(t, e.reg.Create(context.Background(), rec))
	return rec
}

// listNames returns the filenames currently on a disk.
func (e *testEnv) listNames(t *testing.T, name disk.Name) []string {
	t.Helper()
	var names []string
	for obj, err := range e.disks[name].List(context.Background()) {
		require.NoError(t, err)
		names = append(names, obj.Filename)
	}
	return names
}

// sequenceNames returns a filename generator that yields names in order and then repeats the last one.
func sequenceNames(names ...string) func(string) string {
	var mu sync.Mutex
	i := 0
	return func(string) string {
		mu.Lock()
		defer mu.Unlock()
		name := names[i]
		if i < len(names)-1 {
			i++
		}
		return name
	}
}

func uint64Ptr(v uint64) *uint64 {
	return &v
}

func removeAll(path string) error {
	return os.RemoveAll(path)
}
