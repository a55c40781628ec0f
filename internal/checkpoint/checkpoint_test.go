package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/ising/internal/anneal"
)

func testSnapshot(next int) anneal.Snapshot {
	return anneal.Snapshot{
		Width:        3,
		Height:       2,
		Temperatures: []float64{3, 2.5, 2},
		NextIndex:    next,
		Last:         []bool{true, false, true, true, false, false},
		RNG:          []byte{0, 0, 0, 0, 0, 0, 0x30, 0x39, 1, 2, 3},
	}
}

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName(time.Unix(0, 0), 1))
	created := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	want := &Checkpoint{
		CreatedAt:  created,
		RunID:      7,
		Seed:       12345,
		ConfigYAML: "lattice:\n  size: 3\n",
		Snapshot:   testSnapshot(1),
	}

	require.NoError(t, Write(path, want))

	got, err := Read(path)
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.Equal(t, want.RunID, got.RunID)
	assert.Equal(t, want.Seed, got.Seed)
	assert.Equal(t, want.ConfigYAML, got.ConfigYAML)
	assert.Equal(t, want.Snapshot, got.Snapshot)

	h, err := ReadHeader(path)
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, h.Version)
	assert.Equal(t, 3, h.Width)
	assert.Equal(t, 2, h.Height)
	assert.Equal(t, 1, h.NextIndex)
	assert.Equal(t, 3, h.Temperatures)
	assert.True(t, h.Compressed)
	assert.Contains(t, h.Checksum, "sha256:")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestVerifyChecksum_Corrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName(time.Unix(0, 0), 2))
	require.NoError(t, Write(path, &Checkpoint{Snapshot: testSnapshot(2)}))
	require.NoError(t, VerifyChecksum(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0600))

	assert.ErrorIs(t, VerifyChecksum(path), ErrChecksumMismatch)
	_, err = Read(path)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestReadHeader_BadVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckpt-bad.ckpt")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":99}`+"\n"), 0600))

	_, err := ReadHeader(path)
	assert.ErrorContains(t, err, "unsupported checkpoint version 99")
}

func TestFileName_SortsNewestFirst(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	older := FileName(base, 9)
	newer := FileName(base.Add(time.Second), 1)
	sameSecondLater := FileName(base, 10)

	assert.Equal(t, "ckpt-20260102-030405-t0009.ckpt", older)
	assert.Greater(t, newer, older)
	assert.Greater(t, sameSecondLater, older)
	assert.True(t, IsCheckpointFile(older))
	assert.False(t, IsCheckpointFile("notes.txt"))
}

func TestCheckpointer_SaveAndRotate(t *testing.T) {
	root := t.TempDir()
	clock := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	c := NewCheckpointer(root,
		WithRun(3, 99),
		WithConfigYAML("x: 1\n"),
		WithKeep(2),
		WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}))

	for next := 1; next <= 4; next++ {
		require.NoError(t, c.SaveSnapshot(context.Background(), testSnapshot(next)))
	}

	infos, err := List(Dir(root))
	require.NoError(t, err)
	require.Len(t, infos, 2)
	require.NotNil(t, infos[0].Header)
	assert.Equal(t, 4, infos[0].Header.NextIndex)
	assert.Equal(t, 3, infos[1].Header.NextIndex)
	assert.Equal(t, infos[0].Path, c.Last())

	got, path, err := Latest(root)
	require.NoError(t, err)
	assert.Equal(t, c.Last(), path)
	assert.Equal(t, int64(3), got.RunID)
	assert.Equal(t, uint64(99), got.Seed)
	assert.Equal(t, 4, got.Snapshot.NextIndex)

	loaded, err := Load(root, path)
	require.NoError(t, err)
	assert.Equal(t, got.Snapshot, loaded.Snapshot)
}

func TestCheckpointer_CanceledContext(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewCheckpointer(root).SaveSnapshot(ctx, testSnapshot(1))
	assert.ErrorIs(t, err, context.Canceled)

	infos, err := List(Dir(root))
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestLoad_OutsideCheckpointDir(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(t.TempDir(), FileName(time.Unix(0, 0), 1))
	require.NoError(t, Write(outside, &Checkpoint{Snapshot: testSnapshot(1)}))

	_, err := Load(root, outside)
	assert.ErrorIs(t, err, ErrOutsideDir)
}

func TestResolve(t *testing.T) {
	root := t.TempDir()
	dir := Dir(root)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0700))
	name := FileName(time.Unix(0, 0), 2)

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"inside", filepath.Join(dir, name), nil},
		{"redundant separators", dir + string(os.PathSeparator) + string(os.PathSeparator) + name, nil},
		{"dot-dot back into the directory", filepath.Join(dir, "nested", "..", name), nil},
		{"nested directory", filepath.Join(dir, "nested", name), ErrOutsideDir},
		{"output root", filepath.Join(root, name), ErrOutsideDir},
		{"escape with dot-dot", filepath.Join(dir, "..", "..", name), ErrOutsideDir},
		{"empty", "", ErrOutsideDir},
		{"null byte", filepath.Join(dir, "ckpt-\x00.ckpt"), ErrOutsideDir},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(root, tt.path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, name, filepath.Base(got))
		})
	}
}

func TestResolve_NotACheckpointName(t *testing.T) {
	root := t.TempDir()
	_, err := Resolve(root, filepath.Join(Dir(root), "notes.txt"))
	assert.ErrorContains(t, err, "not a checkpoint file name")
}

func TestResolve_SymlinkedDirectory(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on Windows")
	}
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(Dir(root), 0700))
	name := FileName(time.Unix(0, 0), 1)

	// A link to the checkpoint directory resolves into it.
	inLink := filepath.Join(t.TempDir(), "ckpts")
	require.NoError(t, os.Symlink(Dir(root), inLink))
	_, err := Resolve(root, filepath.Join(inLink, name))
	assert.NoError(t, err)

	// A link inside the checkpoint directory that points elsewhere does not.
	outLink := filepath.Join(Dir(root), "elsewhere")
	require.NoError(t, os.Symlink(t.TempDir(), outLink))
	_, err = Resolve(root, filepath.Join(outLink, name))
	assert.ErrorIs(t, err, ErrOutsideDir)
}

func TestLatest_Empty(t *testing.T) {
	_, _, err := Latest(t.TempDir())
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestLatest_SkipsCorrupt(t *testing.T) {
	root := t.TempDir()
	dir := Dir(root)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	good := filepath.Join(dir, FileName(base, 1))
	require.NoError(t, Write(good, &Checkpoint{Snapshot: testSnapshot(1)}))

	bad := filepath.Join(dir, FileName(base.Add(time.Hour), 2))
	require.NoError(t, os.WriteFile(bad, []byte("garbage\n"), 0600))

	_, path, err := Latest(root)
	require.NoError(t, err)
	assert.Equal(t, good, path)
}

func TestPolicies(t *testing.T) {
	now := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	infos := []Info{
		{Path: "a", Size: 100, CreatedAt: now.Add(-1 * time.Hour)},
		{Path: "b", Size: 100, CreatedAt: now.Add(-48 * time.Hour)},
		{Path: "c", Size: 100, CreatedAt: now.Add(-30 * 24 * time.Hour)},
	}
	paths := func(in []Info) []string {
		var out []string
		for _, i := range in {
			out = append(out, i.Path)
		}
		return out
	}

	assert.Equal(t, []string{"a"}, paths((&CountPolicy{MaxCount: 1}).Apply(infos)))
	assert.Equal(t, []string{"a", "b", "c"}, paths((&CountPolicy{MaxCount: -1}).Apply(infos)))

	age := &AgePolicy{MaxAge: 72 * time.Hour, Now: func() time.Time { return now }}
	assert.Equal(t, []string{"a", "b"}, paths(age.Apply(infos)))

	assert.Equal(t, []string{"a", "b"}, paths((&SizePolicy{MaxTotalBytes: 250}).Apply(infos)))
	assert.Equal(t, []string{"a"}, paths((&SizePolicy{MaxTotalBytes: 10}).Apply(infos)))

	composite := &CompositePolicy{Policies: []RetentionPolicy{
		&CountPolicy{MaxCount: 1},
		&AgePolicy{MaxAge: 24 * 60 * time.Hour, Now: func() time.Time { return now }},
	}}
	assert.Equal(t, []string{"a", "b", "c"}, paths(composite.Apply(infos)))
}

func TestApplyRetention(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 5, 5, 5, 5, 5, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		p := filepath.Join(dir, FileName(base, i))
		require.NoError(t, Write(p, &Checkpoint{Snapshot: testSnapshot(i)}))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0600))

	deleted, err := ApplyRetention(dir, &CountPolicy{MaxCount: 1})
	require.NoError(t, err)
	assert.Len(t, deleted, 2)

	infos, err := List(dir)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, FileName(base, 3), filepath.Base(infos[0].Path))

	_, err = os.Stat(filepath.Join(dir, "other.txt"))
	assert.NoError(t, err)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"720h", 720 * time.Hour, false},
		{"30d", 30 * 24 * time.Hour, false},
		{"2w", 14 * 24 * time.Hour, false},
		{"", 0, true},
		{"x", 0, true},
		{"5y", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSize(t *testing.T) {
	n, err := ParseSize("1 MB")
	require.NoError(t, err)
	assert.Equal(t, int64(1000*1000), n)

	n, err = ParseSize("2KiB")
	require.NoError(t, err)
	assert.Equal(t, int64(2048), n)

	_, err = ParseSize("")
	assert.Error(t, err)
	_, err = ParseSize("lots")
	assert.Error(t, err)
}
