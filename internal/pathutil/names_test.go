package pathutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAcceptableRoot(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"_tmp", ""},
		{">out", ""},
		{"|x", ""},
		{"runs", "runs"},
		{"/data/runs", "/data/runs"},
	}
	for _, tt := range tests {
		if got := AcceptableRoot(tt.input); got != tt.want {
			t.Errorf("AcceptableRoot(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		name          string
		kind          Kind
		width, height int
		temp          float64
		suffix        string
		binary        bool
		want          string
	}{
		{"stat binary", KindStat, 16, 16, 2.26918531421, "", true, "stat(L=16,T=2.2692).bin"},
		{"spin text", KindSpin, 8, 8, 3, "_a", false, "spin(L=8,T=3.0000)_a.dat"},
		{"energy", KindEnergy, 4, 4, 1.5, "", false, "EM(L=4,T=1.5000).dat"},
		{"redirect suffix", KindStat, 4, 4, 1.5, ">x", true, "stat(L=4,T=1.5000)0.bin"},
		{"rectangular", KindStat, 8, 4, 2, "", false, "stat(L=8x4,T=2.0000).dat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FileName(tt.kind, tt.width, tt.height, tt.temp, tt.suffix, tt.binary)
			if got != tt.want {
				t.Errorf("FileName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFilePath(t *testing.T) {
	got := FilePath("out", KindSpin, 3, 3, 3, "", true)
	want := filepath.Join("out", "config-files", "L=3", "spin(L=3,T=3.0000).bin")
	if got != want {
		t.Errorf("FilePath() = %q, want %q", got, want)
	}

	got = FilePath("_ignored", KindEnergy, 3, 3, 3, "", false)
	want = filepath.Join("energy-files", "L=3", "EM(L=3,T=3.0000).dat")
	if got != want {
		t.Errorf("FilePath() with unacceptable root = %q, want %q", got, want)
	}
}

func TestEnsureDirs(t *testing.T) {
	root := t.TempDir()
	if err := EnsureDirs(root, 5, 5, KindStat, KindSpin, KindEnergy); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	for _, dir := range []string{"stat-files", "config-files", "energy-files"} {
		info, err := os.Stat(filepath.Join(root, dir, "L=5"))
		if err != nil || !info.IsDir() {
			t.Errorf("expected directory %s/L=5: %v", dir, err)
		}
	}
}

func TestRedactPath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"stat(L=3,T=3.0000).bin", "stat(L=3,T=3.0000).bin"},
		{"/stat.bin", "stat.bin"},
		{"/data/runs/stat-files/L=3/stat(L=3,T=3.0000).bin", ".../L=3/stat(L=3,T=3.0000).bin"},
		{"runs/checkpoints/", ".../runs/checkpoints"},
	}
	for _, tt := range tests {
		if got := RedactPath(tt.input); got != tt.want {
			t.Errorf("RedactPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
