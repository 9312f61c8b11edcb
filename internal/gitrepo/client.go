// Package gitrepo wraps the git command line behind a small client
// interface, so version derivation can be tested without a repository
// and failure modes become errors instead of parsed exit codes.
package gitrepo

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// DescribeOptions control a describe query.
type DescribeOptions struct {
	// Match restricts candidate tags to a glob pattern, e.g.
	// "v[0-9]*.[0-9]*.[0-9]*".
	Match string

	// Exclude lists glob patterns for tags that must not be used.
	Exclude []string

	// Tags includes lightweight (unannotated) tags.
	Tags bool

	// Always falls back to a bare abbreviated commit hash when no
	// tag matches.
	Always bool
}

// Client is the set of git queries version derivation needs.
type Client interface {
	// InsideWorkTree reports whether the working directory is part
	// of a git working tree.
	InsideWorkTree(ctx context.Context) bool

	// Branches lists local and remote-tracking branch names in short
	// form, e.g. "master", "origin/master".
	Branches(ctx context.Context) ([]string, error)

	// HasCommits reports whether ref names a commit with retrievable
	// log history.
	HasCommits(ctx context.Context, ref string) bool

	// IsAncestor reports whether ancestor is an ancestor of ref.
	IsAncestor(ctx context.Context, ancestor, ref string) bool

	// Describe returns the nearest-tag descriptor for HEAD, e.g.
	// "v2.8.2" or "v2.8.2-42-g1a2b3c4d".
	Describe(ctx context.Context, opts DescribeOptions) (string, error)

	// MergeBase returns the most recent common ancestor commit hash
	// of two references.
	MergeBase(ctx context.Context, a, b string) (string, error)

	// CommitCount counts commits in a revision range such as
	// "v2.8.2..abc123" or "master..HEAD".
	CommitCount(ctx context.Context, revRange string) (int, error)
}

// ExecClient implements Client by running the git binary.
type ExecClient struct {
	dir     string
	gitPath string
}

// NewExecClient returns an ExecClient running git inside dir.
// Fails when no git executable is on PATH.
func NewExecClient(dir string) (*ExecClient, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git executable not found: %w", err)
	}
	return &ExecClient{dir: dir, gitPath: gitPath}, nil
}

// run executes one git subcommand and returns trimmed stdout.
// Failures carry the command line and captured stderr.
func (c *ExecClient) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, c.gitPath, args...)
	cmd.Dir = c.dir

	var stderr strings.Builder
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, msg)
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *ExecClient) InsideWorkTree(ctx context.Context) bool {
	out, err := c.run(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

func (c *ExecClient) Branches(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "branch", "-a", "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}

	var branches []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		// Symbolic entries like "origin/HEAD" do not name a real
		// branch tip.
		if line == "" || strings.HasSuffix(line, "/HEAD") {
			continue
		}
		branches = append(branches, line)
	}
	return branches, nil
}

func (c *ExecClient) HasCommits(ctx context.Context, ref string) bool {
	_, err := c.run(ctx, "log", "-1", "--oneline", ref, "--")
	return err == nil
}

func (c *ExecClient) IsAncestor(ctx context.Context, ancestor, ref string) bool {
	cmd := exec.CommandContext(ctx, c.gitPath, "merge-base", "--is-ancestor", ancestor, ref)
	cmd.Dir = c.dir
	return cmd.Run() == nil
}

func (c *ExecClient) Describe(ctx context.Context, opts DescribeOptions) (string, error) {
	args := []string{"describe"}
	if opts.Tags {
		args = append(args, "--tags")
	}
	if opts.Always {
		args = append(args, "--always")
	}
	if opts.Match != "" {
		args = append(args, "--match", opts.Match)
	}
	for _, pattern := range opts.Exclude {
		args = append(args, "--exclude", pattern)
	}
	return c.run(ctx, args...)
}

func (c *ExecClient) MergeBase(ctx context.Context, a, b string) (string, error) {
	return c.run(ctx, "merge-base", a, b)
}

func (c *ExecClient) CommitCount(ctx context.Context, revRange string) (int, error) {
	out, err := c.run(ctx, "rev-list", "--count", revRange)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(out)
	if err != nil {
		return 0, fmt.Errorf("git rev-list --count %s: unexpected output %q", revRange, out)
	}
	return n, nil
}
