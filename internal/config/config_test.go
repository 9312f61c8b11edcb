package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// clearEnv blanks every nutver variable so ambient shell state cannot
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvForced, EnvForcedSemver, EnvDefault, EnvPreferGit,
		EnvTrunk, EnvAllTags, EnvAlwaysDesc, EnvWebsite, EnvQuery,
		EnvSrcDir, EnvBuildDir,
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile(%s) failed: %v", path, err)
	}
}

func TestResolveHardcodedFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvSrcDir, t.TempDir())

	s, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}

	if s.DefaultVersion != FallbackVersion {
		t.Errorf("DefaultVersion = %q, want %q", s.DefaultVersion, FallbackVersion)
	}
	if s.PreferGit {
		t.Error("PreferGit = true without a .git marker")
	}
	if s.Website != DefaultWebsite {
		t.Errorf("Website = %q, want %q", s.Website, DefaultWebsite)
	}
}

func TestResolveDirDefaults(t *testing.T) {
	clearEnv(t)

	s, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if s.SrcDir != "." {
		t.Errorf("SrcDir = %q, want %q", s.SrcDir, ".")
	}
	if s.BuildDir != s.SrcDir {
		t.Errorf("BuildDir = %q, want SrcDir %q", s.BuildDir, s.SrcDir)
	}
}

func TestResolveEnvWinsOverFiles(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv(EnvSrcDir, dir)
	writeFile(t, filepath.Join(dir, FileDefault), "NUT_VERSION_DEFAULT='1.0.0'\n")
	t.Setenv(EnvDefault, "9.8.7")

	s, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if s.DefaultVersion != "9.8.7" {
		t.Errorf("DefaultVersion = %q, want %q", s.DefaultVersion, "9.8.7")
	}
}

func TestResolveBuildDirBeatsSrcDir(t *testing.T) {
	clearEnv(t)
	srcdir := t.TempDir()
	builddir := t.TempDir()
	t.Setenv(EnvSrcDir, srcdir)
	t.Setenv(EnvBuildDir, builddir)
	writeFile(t, filepath.Join(srcdir, FileDefault), "NUT_VERSION_DEFAULT='1.1.1'\n")
	writeFile(t, filepath.Join(builddir, FileDefault), "NUT_VERSION_DEFAULT='2.2.2'\n")

	s, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if s.DefaultVersion != "2.2.2" {
		t.Errorf("DefaultVersion = %q, want build dir value %q", s.DefaultVersion, "2.2.2")
	}
}

func TestResolveForcedDisablesGit(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv(EnvSrcDir, dir)
	// A .git marker would normally enable git derivation.
	if err := os.Mkdir(filepath.Join(dir, ".git"), 0755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	writeFile(t, filepath.Join(dir, FileForced), "NUT_VERSION_FORCED='3.2.1'\n")

	s, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if s.Forced != "3.2.1" {
		t.Errorf("Forced = %q, want %q", s.Forced, "3.2.1")
	}
	if s.DefaultVersion != "3.2.1" {
		t.Errorf("DefaultVersion = %q, want forced %q", s.DefaultVersion, "3.2.1")
	}
	if s.PreferGit {
		t.Error("PreferGit = true, forced version must disable git derivation")
	}
}

func TestResolveForcedFileMayCarrySemver(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv(EnvSrcDir, dir)
	writeFile(t, filepath.Join(dir, FileForced),
		"NUT_VERSION_FORCED='3.2.1'\nNUT_VERSION_FORCED_SEMVER='3.2.1'\n")

	s, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if s.ForcedSemver != "3.2.1" {
		t.Errorf("ForcedSemver = %q, want %q", s.ForcedSemver, "3.2.1")
	}
}

func TestResolveForcedSemverFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv(EnvSrcDir, dir)
	writeFile(t, filepath.Join(dir, FileForcedSemver), "NUT_VERSION_FORCED_SEMVER='9.9.9'\n")

	s, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if s.ForcedSemver != "9.9.9" {
		t.Errorf("ForcedSemver = %q, want %q", s.ForcedSemver, "9.9.9")
	}
	if s.Forced != "" {
		t.Errorf("Forced = %q, want empty: forced semver alone must not force the version", s.Forced)
	}
}

func TestResolvePreferGit(t *testing.T) {
	tests := []struct {
		name   string
		env    string
		gitDir bool
		want   bool
	}{
		{"unset with .git", "", true, true},
		{"unset without .git", "", false, false},
		{"explicit false with .git", "false", true, false},
		{"explicit no with .git", "no", true, false},
		{"explicit true without .git", "true", false, false},
		{"explicit true with .git", "true", true, true},
		{"garbage treated as unset", "maybe", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			dir := t.TempDir()
			t.Setenv(EnvSrcDir, dir)
			t.Setenv(EnvPreferGit, tt.env)
			if tt.gitDir {
				if err := os.Mkdir(filepath.Join(dir, ".git"), 0755); err != nil {
					t.Fatalf("Mkdir failed: %v", err)
				}
			}

			s, err := Resolve()
			if err != nil {
				t.Fatalf("Resolve() failed: %v", err)
			}
			if s.PreferGit != tt.want {
				t.Errorf("PreferGit = %v, want %v", s.PreferGit, tt.want)
			}
		})
	}
}

func TestResolveTOMLLayer(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv(EnvSrcDir, dir)
	writeFile(t, filepath.Join(dir, FileTOML),
		"default_version = \"5.4.3\"\ntrunk = \"origin/master\"\nwebsite = \"https://example.org/ups\"\n")

	s, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if s.DefaultVersion != "5.4.3" {
		t.Errorf("DefaultVersion = %q, want toml value %q", s.DefaultVersion, "5.4.3")
	}
	if s.Trunk != "origin/master" {
		t.Errorf("Trunk = %q, want %q", s.Trunk, "origin/master")
	}
	if s.Website != "https://example.org/ups/" {
		t.Errorf("Website = %q, want slash-terminated toml value", s.Website)
	}
}

func TestResolveCachedFileBeatsTOML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv(EnvSrcDir, dir)
	writeFile(t, filepath.Join(dir, FileTOML), "default_version = \"5.4.3\"\n")
	writeFile(t, filepath.Join(dir, FileDefault), "NUT_VERSION_DEFAULT='1.2.3'\n")

	s, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if s.DefaultVersion != "1.2.3" {
		t.Errorf("DefaultVersion = %q, want cached file value %q", s.DefaultVersion, "1.2.3")
	}
}

func TestResolveMalformedSourceIsFatal(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv(EnvSrcDir, dir)
	writeFile(t, filepath.Join(dir, FileForced), "this is not an assignment\n")

	_, err := Resolve()
	if err == nil {
		t.Fatal("Resolve() succeeded on malformed VERSION_FORCED")
	}
	if !IsSourceError(err) {
		t.Errorf("error = %v, want a *SourceError", err)
	}
	var se *SourceError
	if errors.As(err, &se) && se.Path != filepath.Join(dir, FileForced) {
		t.Errorf("SourceError.Path = %q, want the VERSION_FORCED path", se.Path)
	}
}

func TestLoadAssignments(t *testing.T) {
	tests := []struct {
		name    string
		content string
		key     string
		want    string
		wantErr bool
	}{
		{"single quoted", "NUT_VERSION_DEFAULT='2.8.2'\n", EnvDefault, "2.8.2", false},
		{"double quoted", "NUT_VERSION_DEFAULT=\"2.8.2\"\n", EnvDefault, "2.8.2", false},
		{"bare value", "NUT_VERSION_DEFAULT=2.8.2\n", EnvDefault, "2.8.2", false},
		{"comments and blanks skipped", "# header\n\nNUT_VERSION_DEFAULT='2.8.2'\n", EnvDefault, "2.8.2", false},
		{"empty value", "NUT_VERSION_DEFAULT=''\n", EnvDefault, "", false},
		{"command substitution rejected", "NUT_VERSION_DEFAULT=$(rm -rf /)\n", "", "", true},
		{"free text rejected", "hello world\n", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileDefault)
			writeFile(t, path, tt.content)

			vals, err := loadAssignments(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("loadAssignments() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && vals[tt.key] != tt.want {
				t.Errorf("vals[%q] = %q, want %q", tt.key, vals[tt.key], tt.want)
			}
		})
	}
}

func TestLoadAssignmentsMissingFile(t *testing.T) {
	vals, err := loadAssignments(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("loadAssignments() on missing file failed: %v", err)
	}
	if len(vals) != 0 {
		t.Errorf("vals = %v, want empty map", vals)
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in    string
		value bool
		ok    bool
	}{
		{"true", true, true},
		{"TRUE", true, true},
		{"yes", true, true},
		{"on", true, true},
		{"1", true, true},
		{"false", false, true},
		{"No", false, true},
		{"off", false, true},
		{"0", false, true},
		{"", false, false},
		{"maybe", false, false},
	}

	for _, tt := range tests {
		value, ok := parseBool(tt.in)
		if value != tt.value || ok != tt.ok {
			t.Errorf("parseBool(%q) = (%v, %v), want (%v, %v)", tt.in, value, ok, tt.value, tt.ok)
		}
	}
}
