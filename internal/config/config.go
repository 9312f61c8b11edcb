// Package config resolves nutver's layered configuration into an
// immutable Settings struct.
//
// Every setting can come from several sources. Precedence, highest
// first: environment variables, override files at the source root
// (VERSION_FORCED, VERSION_FORCED_SEMVER), cached VERSION_DEFAULT
// files at the build root then the source root, an optional
// nutver.toml at the source root, and finally hardcoded defaults.
// Each source short-circuits the ones below it per setting.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/nut-tools/nutver/internal/log"
)

// Environment variables consumed by nutver.
const (
	// EnvForced forces the exact project version and disables git
	// derivation.
	EnvForced = "NUT_VERSION_FORCED"

	// EnvForcedSemver forces just the reported 3-component semantic
	// version, independent of the derivation path.
	EnvForcedSemver = "NUT_VERSION_FORCED_SEMVER"

	// EnvDefault sets the fallback version used when git derivation
	// is skipped or fails.
	EnvDefault = "NUT_VERSION_DEFAULT"

	// EnvPreferGit enables or disables git-based derivation. An
	// explicit false always wins; otherwise git is preferred only
	// when the source root contains a .git marker.
	EnvPreferGit = "NUT_VERSION_PREFER_GIT"

	// EnvTrunk names the mainline branch reference. When empty the
	// trunk is discovered from local and remote master branches.
	EnvTrunk = "NUT_VERSION_GIT_TRUNK"

	// EnvAllTags makes git-describe consider lightweight tags too.
	EnvAllTags = "NUT_VERSION_GIT_ALL_TAGS"

	// EnvAlwaysDesc makes git-describe fall back to a bare commit
	// hash when no tag matches.
	EnvAlwaysDesc = "NUT_VERSION_GIT_ALWAYS_DESC"

	// EnvWebsite overrides the project website used for URL output.
	EnvWebsite = "NUT_WEBSITE"

	// EnvQuery selects which field of the version record to report.
	EnvQuery = "NUT_VERSION_QUERY"

	// EnvSrcDir and EnvBuildDir are the autotools-style tree
	// locations; lowercase names are part of the build-system
	// contract.
	EnvSrcDir   = "abs_top_srcdir"
	EnvBuildDir = "abs_top_builddir"
)

// File names read from (and written to) the project tree.
const (
	// FileForced holds a forced full version at the source root.
	FileForced = "VERSION_FORCED"

	// FileForcedSemver holds a forced semver triplet at the source root.
	FileForcedSemver = "VERSION_FORCED_SEMVER"

	// FileDefault is the cached default version file, read at both
	// the build and source roots and rewritten by the UPDATE_FILE query.
	FileDefault = "VERSION_DEFAULT"

	// FileTOML is the optional declarative config at the source root.
	FileTOML = "nutver.toml"
)

// FallbackVersion is used when no source provides a default version.
const FallbackVersion = "2.8.2.1"

// DefaultWebsite is the project website used for URL output when
// NUT_WEBSITE is not set.
const DefaultWebsite = "https://www.networkupstools.org/"

// Settings is the fully resolved, immutable configuration for one
// invocation.
type Settings struct {
	// SrcDir is the source tree root; "." when unset.
	SrcDir string

	// BuildDir is the build output root; equals SrcDir when unset.
	BuildDir string

	// DefaultVersion is the resolved fallback version string. Never
	// empty: the hardcoded fallback backstops every other source.
	DefaultVersion string

	// Forced is the forced full version, or empty. A non-empty value
	// implies PreferGit=false and DefaultVersion=Forced.
	Forced string

	// ForcedSemver overrides the reported SEMVER field, or empty.
	ForcedSemver string

	// PreferGit reports whether git-based derivation should be
	// attempted.
	PreferGit bool

	// Trunk is the configured mainline reference, or empty for
	// discovery.
	Trunk string

	// AllTags includes lightweight tags in describe queries.
	AllTags bool

	// AlwaysDesc lets describe fall back to a bare commit hash.
	AlwaysDesc bool

	// Website is the base URL for URL output, always slash-terminated.
	Website string

	// Query is the requested output selector (may be empty).
	Query string
}

// SourceError reports a malformed configuration file. Unlike git
// derivation errors it is fatal: a broken override file must abort
// the invocation rather than silently fall back.
type SourceError struct {
	Path string
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("config source %s: %v", e.Path, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// tomlConfig mirrors the optional nutver.toml file. Pointer fields
// distinguish "absent" from zero values.
type tomlConfig struct {
	DefaultVersion string `toml:"default_version"`
	Forced         string `toml:"forced"`
	ForcedSemver   string `toml:"forced_semver"`
	PreferGit      *bool  `toml:"prefer_git"`
	Trunk          string `toml:"trunk"`
	Website        string `toml:"website"`
}

// assignmentRe matches one shell-style KEY='VALUE' line. The override
// files predate nutver and are still sourced by shell consumers, so
// the format stays as plain assignments.
var assignmentRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)=('([^']*)'|"([^"]*)"|([^'"\s]*))$`)

// Resolve builds Settings from the environment and the project tree.
// A malformed override file yields a *SourceError; missing files are
// never an error.
func Resolve() (*Settings, error) {
	logger := log.Default()

	s := &Settings{}

	s.SrcDir = os.Getenv(EnvSrcDir)
	if s.SrcDir == "" {
		s.SrcDir = "."
	}
	s.BuildDir = os.Getenv(EnvBuildDir)
	if s.BuildDir == "" {
		s.BuildDir = s.SrcDir
	}

	fileCfg, err := loadTOML(filepath.Join(s.SrcDir, FileTOML))
	if err != nil {
		return nil, err
	}

	forcedFile, err := loadAssignments(filepath.Join(s.SrcDir, FileForced))
	if err != nil {
		return nil, err
	}
	forcedSemverFile, err := loadAssignments(filepath.Join(s.SrcDir, FileForcedSemver))
	if err != nil {
		return nil, err
	}

	s.Forced = firstNonEmpty(
		os.Getenv(EnvForced),
		forcedFile[EnvForced],
		fileCfg.Forced,
	)

	// The VERSION_FORCED file is sourced as a whole, so it may also
	// carry a forced semver alongside the forced version.
	s.ForcedSemver = firstNonEmpty(
		os.Getenv(EnvForcedSemver),
		forcedSemverFile[EnvForcedSemver],
		forcedFile[EnvForcedSemver],
		fileCfg.ForcedSemver,
	)

	if s.Forced != "" {
		s.DefaultVersion = s.Forced
	} else {
		s.DefaultVersion, err = s.resolveDefault(fileCfg)
		if err != nil {
			return nil, err
		}
	}

	s.PreferGit = s.resolvePreferGit(fileCfg)
	if s.Forced != "" {
		s.PreferGit = false
	}

	s.Trunk = firstNonEmpty(os.Getenv(EnvTrunk), fileCfg.Trunk)
	s.AllTags, _ = parseBool(os.Getenv(EnvAllTags))
	s.AlwaysDesc, _ = parseBool(os.Getenv(EnvAlwaysDesc))

	s.Website = firstNonEmpty(os.Getenv(EnvWebsite), fileCfg.Website, DefaultWebsite)
	if !strings.HasSuffix(s.Website, "/") {
		s.Website += "/"
	}

	s.Query = os.Getenv(EnvQuery)

	logger.Debug("configuration resolved",
		"srcdir", s.SrcDir,
		"builddir", s.BuildDir,
		"default", s.DefaultVersion,
		"forced", s.Forced,
		"forced_semver", s.ForcedSemver,
		"prefer_git", s.PreferGit,
		"trunk", s.Trunk,
	)

	return s, nil
}

// DefaultFilePath returns the VERSION_DEFAULT path at the build root,
// the target of the UPDATE_FILE query.
func (s *Settings) DefaultFilePath() string {
	return filepath.Join(s.BuildDir, FileDefault)
}

// SourceDefaultFilePath returns the VERSION_DEFAULT path at the
// source root.
func (s *Settings) SourceDefaultFilePath() string {
	return filepath.Join(s.SrcDir, FileDefault)
}

func (s *Settings) resolveDefault(fileCfg *tomlConfig) (string, error) {
	if v := os.Getenv(EnvDefault); v != "" {
		return v, nil
	}

	for _, path := range []string{s.DefaultFilePath(), s.SourceDefaultFilePath()} {
		vals, err := loadAssignments(path)
		if err != nil {
			return "", err
		}
		if v := vals[EnvDefault]; v != "" {
			return v, nil
		}
	}

	if fileCfg.DefaultVersion != "" {
		return fileCfg.DefaultVersion, nil
	}
	return FallbackVersion, nil
}

// resolvePreferGit applies the prefer-git precedence: an explicit
// false always wins, and even an explicit true still requires a .git
// marker at the source root.
func (s *Settings) resolvePreferGit(fileCfg *tomlConfig) bool {
	if v, ok := parseBool(os.Getenv(EnvPreferGit)); ok {
		if !v {
			return false
		}
	} else if fileCfg.PreferGit != nil && !*fileCfg.PreferGit {
		return false
	}

	_, err := os.Stat(filepath.Join(s.SrcDir, ".git"))
	return err == nil
}

// loadAssignments parses a shell-style assignment file into a key to
// value map. A missing file returns an empty map; a line that is not
// blank, a comment, or a well-formed assignment is a *SourceError.
func loadAssignments(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, &SourceError{Path: path, Err: err}
	}

	vals := make(map[string]string)
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := assignmentRe.FindStringSubmatch(line)
		if m == nil {
			return nil, &SourceError{
				Path: path,
				Err:  fmt.Errorf("line %d: not a KEY='VALUE' assignment: %q", i+1, line),
			}
		}
		// One of the three value alternatives matched; the others
		// are empty.
		vals[m[1]] = firstNonEmpty(m[3], m[4], m[5])
	}
	return vals, nil
}

// loadTOML reads the optional nutver.toml. Missing file is fine;
// undecodable content is a *SourceError.
func loadTOML(path string) (*tomlConfig, error) {
	var cfg tomlConfig

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &cfg, nil
	}
	if err != nil {
		return nil, &SourceError{Path: path, Err: err}
	}

	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, &SourceError{Path: path, Err: err}
	}
	return &cfg, nil
}

// parseBool reads the loose boolean vocabulary build systems pass
// around. The second result reports whether the value was recognized;
// unrecognized values count as unset.
func parseBool(v string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "on", "1":
		return true, true
	case "false", "no", "off", "0":
		return false, true
	default:
		return false, false
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// IsSourceError reports whether err is a configuration source
// failure, which callers must treat as fatal.
func IsSourceError(err error) bool {
	var se *SourceError
	return errors.As(err, &se)
}
