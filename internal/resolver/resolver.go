// Package resolver derives the canonical project version record from
// git repository metadata or the configured default version, and
// reports the field selected by a query.
package resolver

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/nut-tools/nutver/internal/config"
	"github.com/nut-tools/nutver/internal/gitrepo"
	"github.com/nut-tools/nutver/internal/log"
)

// Record is the immutable version descriptor computed once per
// invocation. Desc5 and Desc50 are always Ver5 and Ver50 with Suffix
// appended; no other derivation path exists for them.
type Record struct {
	// Tag is the nearest preceding release tag, always v-prefixed,
	// e.g. "v2.8.2".
	Tag string

	// Suffix is the git descriptor suffix "-<count>-g<hash>" when
	// HEAD is not exactly the tag, else empty.
	Suffix string

	// Ver5 is the 5-component version
	// MAJOR.MINOR.PATCH.TRUNK_COMMITS.BRANCH_COMMITS.
	Ver5 string

	// Ver50 is Ver5 with up to two trailing ".0" components stripped.
	Ver50 string

	// Desc5 is Ver5 + Suffix.
	Desc5 string

	// Desc50 is Ver50 + Suffix; this is the value most callers want.
	Desc50 string

	// Semver is the MAJOR.MINOR.PATCH triplet, or a forced override.
	Semver string

	// Base is the merge-base commit of HEAD and trunk, empty when
	// derived without git.
	Base string

	// IsRelease is true iff Semver equals Ver50.
	IsRelease bool
}

// releaseTagRe matches the only tag shape version arithmetic accepts.
var releaseTagRe = regexp.MustCompile(`^v(\d+)\.(\d+)\.(\d+)$`)

// describeSuffixRe matches the trailing "-<count>-g<hash>" piece of a
// describe descriptor.
var describeSuffixRe = regexp.MustCompile(`-(\d+)-g([0-9a-f]+)$`)

// tagMatchPattern is the glob handed to git-describe for candidate
// release tags.
const tagMatchPattern = "v[0-9]*.[0-9]*.[0-9]*"

// excludedTagMarkers disqualify a tag when they appear anywhere in it,
// as literal case-sensitive substrings. The primary describe call gets
// them as globs; the fallback path applies them as post-filters.
var excludedTagMarkers = []string{"-signed", "rc", "alpha", "beta", "Windows", "IPM"}

// Resolver computes version records for one configured tree.
type Resolver struct {
	settings *config.Settings
	git      gitrepo.Client
	logger   log.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithGitClient sets the git client used for repository queries.
// Without one, only default-based derivation runs.
func WithGitClient(c gitrepo.Client) Option {
	return func(r *Resolver) { r.git = c }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l log.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New creates a Resolver for the given settings.
func New(settings *config.Settings, opts ...Option) *Resolver {
	r := &Resolver{
		settings: settings,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve computes the version record. Exactly one derivation path is
// used: git-based when preferred and usable, otherwise default-based.
// Git failures are absorbed by the default path and never surface as
// errors.
func (r *Resolver) Resolve(ctx context.Context) *Record {
	r.checkForcedSemver()

	if r.settings.PreferGit && r.git != nil && r.git.InsideWorkTree(ctx) {
		rec, err := r.deriveGit(ctx)
		if err == nil {
			r.logRecord("derived version from git", rec)
			return rec
		}
		r.logger.Warn("git derivation failed, falling back to default version", "error", err)
	}

	rec := r.deriveDefault()
	r.logRecord("derived version from default", rec)
	return rec
}

// checkForcedSemver warns when a forced semver override does not look
// like a strict MAJOR.MINOR.PATCH triplet. Arbitrary overrides remain
// legal; the warning just flags likely typos.
func (r *Resolver) checkForcedSemver() {
	forced := r.settings.ForcedSemver
	if forced == "" {
		return
	}
	if _, err := semver.StrictNewVersion(forced); err != nil {
		r.logger.Warn("forced semver is not a strict MAJOR.MINOR.PATCH triplet",
			"forced_semver", forced, "error", err)
	}
}

func (r *Resolver) logRecord(msg string, rec *Record) {
	r.logger.Debug(msg,
		"tag", rec.Tag,
		"suffix", rec.Suffix,
		"ver5", rec.Ver5,
		"ver50", rec.Ver50,
		"desc5", rec.Desc5,
		"desc50", rec.Desc50,
		"semver", rec.Semver,
		"base", rec.Base,
		"is_release", rec.IsRelease,
	)
}

// deriveGit builds the record from repository metadata. Every failure
// is classified and recoverable: the caller falls back to the default
// derivation.
func (r *Resolver) deriveGit(ctx context.Context) (*Record, error) {
	trunk := r.settings.Trunk
	if trunk == "" {
		var err error
		trunk, err = r.discoverTrunk(ctx)
		if err != nil {
			return nil, err
		}
		r.logger.Info("discovered trunk reference", "trunk", trunk)
	}

	desc, err := r.describe(ctx)
	if err != nil {
		return nil, err
	}

	base, err := r.git.MergeBase(ctx, "HEAD", trunk)
	if err != nil {
		e := &Error{Kind: ErrKindMergeBase,
			Message: fmt.Sprintf("cannot compute merge-base of HEAD and %s", trunk), Err: err}
		r.logger.Error("merge-base computation failed", "trunk", trunk, "error", err)
		return nil, e
	}

	tag, suffix := splitDescribe(desc)
	m := releaseTagRe.FindStringSubmatch(tag)
	if m == nil {
		return nil, &Error{Kind: ErrKindDescribe,
			Message: fmt.Sprintf("described tag %q is not a vMAJOR.MINOR.PATCH release tag", tag)}
	}

	trunkCommits, err := r.git.CommitCount(ctx, tag+".."+base)
	if err != nil {
		return nil, &Error{Kind: ErrKindDescribe,
			Message: fmt.Sprintf("cannot count commits between %s and merge-base", tag), Err: err}
	}
	branchCommits, err := r.git.CommitCount(ctx, trunk+"..HEAD")
	if err != nil {
		return nil, &Error{Kind: ErrKindDescribe,
			Message: fmt.Sprintf("cannot count commits between %s and HEAD", trunk), Err: err}
	}

	ver5 := fmt.Sprintf("%s.%s.%s.%d.%d", m[1], m[2], m[3], trunkCommits, branchCommits)
	ver50 := stripTrailingZeros(ver5, 2)

	sem := r.settings.ForcedSemver
	if sem == "" {
		sem = firstComponents(ver5, 3)
	}

	return &Record{
		Tag:       tag,
		Suffix:    suffix,
		Ver5:      ver5,
		Ver50:     ver50,
		Desc5:     ver5 + suffix,
		Desc50:    ver50 + suffix,
		Semver:    sem,
		Base:      base,
		IsRelease: sem == ver50,
	}, nil
}

// discoverTrunk scans local "master" and remote-tracking ".../master"
// branches and picks the one that is a descendant of every other
// viable candidate.
func (r *Resolver) discoverTrunk(ctx context.Context) (string, error) {
	branches, err := r.git.Branches(ctx)
	if err != nil {
		return "", &Error{Kind: ErrKindTrunkDiscovery,
			Message: "cannot list branches", Err: err}
	}

	best := ""
	for _, b := range branches {
		if b != "master" && !strings.HasSuffix(b, "/master") {
			continue
		}
		if !r.git.HasCommits(ctx, b) {
			r.logger.Debug("skipping trunk candidate without log history", "candidate", b)
			continue
		}
		if best == "" || r.git.IsAncestor(ctx, best, b) {
			best = b
		}
	}

	if best == "" {
		return "", &Error{Kind: ErrKindTrunkDiscovery,
			Message: "no viable master branch found among local and remote candidates"}
	}
	return best, nil
}

// describe runs the tag query: first the narrow release-tag match,
// then a broader describe whose output is vetted against the same
// exclusion markers.
func (r *Resolver) describe(ctx context.Context) (string, error) {
	globs := make([]string, len(excludedTagMarkers))
	for i, marker := range excludedTagMarkers {
		globs[i] = "*" + marker + "*"
	}

	desc, err := r.git.Describe(ctx, gitrepo.DescribeOptions{
		Match:   tagMatchPattern,
		Exclude: globs,
		Tags:    r.settings.AllTags,
		Always:  r.settings.AlwaysDesc,
	})
	if err == nil && desc != "" {
		return desc, nil
	}
	r.logger.Debug("narrow describe found nothing, trying broad describe", "error", err)

	desc, err = r.git.Describe(ctx, gitrepo.DescribeOptions{
		Tags:   r.settings.AllTags,
		Always: true,
	})
	if err != nil || desc == "" {
		return "", &Error{Kind: ErrKindDescribe,
			Message: "no tag found by either describe strategy", Err: err}
	}
	if marker := excludedMarkerIn(desc); marker != "" {
		return "", &Error{Kind: ErrKindDescribe,
			Message: fmt.Sprintf("descriptor %q contains excluded marker %q", desc, marker)}
	}
	return desc, nil
}

// deriveDefault builds the record from the resolved default version
// string, without touching git.
func (r *Resolver) deriveDefault() *Record {
	def := r.settings.DefaultVersion

	ver5 := padComponents(def, 5)
	triplet := normalizeTriplet(def)

	sem := r.settings.ForcedSemver
	if sem == "" {
		sem = triplet
	}

	return &Record{
		Tag:       "v" + triplet,
		Suffix:    "",
		Ver5:      ver5,
		Ver50:     def,
		Desc5:     ver5,
		Desc50:    def,
		Semver:    sem,
		Base:      "",
		IsRelease: sem == def,
	}
}

// splitDescribe separates a describe descriptor into the release tag
// and the "-<count>-g<hash>" suffix, which is empty when HEAD sits
// exactly on the tag.
func splitDescribe(desc string) (tag, suffix string) {
	loc := describeSuffixRe.FindStringIndex(desc)
	if loc == nil {
		return desc, ""
	}
	return desc[:loc[0]], desc[loc[0]:]
}

// excludedMarkerIn returns the first excluded marker appearing in s as
// a literal substring, or "".
func excludedMarkerIn(s string) string {
	for _, marker := range excludedTagMarkers {
		if strings.Contains(s, marker) {
			return marker
		}
	}
	return ""
}

// padComponents appends ".0" until s has at least n dot-separated
// components.
func padComponents(s string, n int) string {
	count := strings.Count(s, ".") + 1
	for ; count < n; count++ {
		s += ".0"
	}
	return s
}

// normalizeTriplet pads or right-truncates s to exactly three
// dot-separated components.
func normalizeTriplet(s string) string {
	parts := strings.Split(s, ".")
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	return strings.Join(parts[:3], ".")
}

// firstComponents returns the first n dot-separated components of s.
func firstComponents(s string, n int) string {
	parts := strings.Split(s, ".")
	if len(parts) > n {
		parts = parts[:n]
	}
	return strings.Join(parts, ".")
}

// stripTrailingZeros removes a trailing ".0" at most max times, one
// component per pass.
func stripTrailingZeros(s string, max int) string {
	for i := 0; i < max; i++ {
		trimmed, found := strings.CutSuffix(s, ".0")
		if !found {
			break
		}
		s = trimmed
	}
	return s
}
