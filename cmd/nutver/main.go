// Command nutver reports the project version derived from git
// repository metadata or the VERSION_DEFAULT fallback file.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nut-tools/nutver/internal/buildinfo"
	"github.com/nut-tools/nutver/internal/config"
	"github.com/nut-tools/nutver/internal/gitrepo"
	"github.com/nut-tools/nutver/internal/log"
	"github.com/nut-tools/nutver/internal/resolver"
)

var (
	flagDebug bool
	flagQuiet bool
)

var rootCmd = &cobra.Command{
	Use:   "nutver [query]",
	Short: "Report the project version derived from git or VERSION_DEFAULT",
	Long: `nutver computes the project version from git tags and commit counts,
falling back to the VERSION_DEFAULT file when no repository is usable,
and prints the field selected by the query.

Queries: DESC5, DESC50, VER5, VER50, SEMVER, IS_RELEASE, TAG, SUFFIX,
BASE, URL, UPDATE_FILE. Anything else prints DESC50. The query can be
given as an argument or via NUT_VERSION_QUERY; use UPDATE_FILE to
synchronize the VERSION_DEFAULT file in the build tree.

Configuration is environment-driven (NUT_VERSION_*, NUT_WEBSITE,
abs_top_srcdir, abs_top_builddir) so build systems can call nutver
without flags. The requested value is the only output on stdout;
diagnostics go to stderr.`,
	Args:          cobra.MaximumNArgs(1),
	Version:       buildinfo.Version(),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "log derivation details to stderr")
	rootCmd.PersistentFlags().BoolVar(&flagQuiet, "quiet", false, "log errors only")
}

func run(cmd *cobra.Command, args []string) error {
	level := slog.LevelWarn
	if flagDebug {
		level = slog.LevelDebug
	}
	if flagQuiet {
		level = slog.LevelError
	}
	log.SetDefault(log.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	logger := log.Default()

	settings, err := config.Resolve()
	if err != nil {
		return err
	}

	opts := []resolver.Option{resolver.WithLogger(logger)}
	if settings.PreferGit {
		client, err := gitrepo.NewExecClient(settings.SrcDir)
		if err != nil {
			logger.Warn("git not usable, using default version", "error", err)
		} else {
			opts = append(opts, resolver.WithGitClient(client))
		}
	}

	rec := resolver.New(settings, opts...).Resolve(cmd.Context())

	query := settings.Query
	if len(args) > 0 {
		query = args[0]
	}

	if err := resolver.Report(cmd.OutOrStdout(), rec, settings, query); err != nil {
		return err
	}

	if rec.Desc50 == "" {
		return fmt.Errorf("computed version is empty")
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
