package resolver

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nut-tools/nutver/internal/config"
)

// Query selectors accepted by Report. Anything else, including an
// empty query, reports DESC50.
const (
	QueryDesc5      = "DESC5"
	QueryDesc50     = "DESC50"
	QueryVer5       = "VER5"
	QueryVer50      = "VER50"
	QuerySemver     = "SEMVER"
	QueryIsRelease  = "IS_RELEASE"
	QueryTag        = "TAG"
	QuerySuffix     = "SUFFIX"
	QueryBase       = "BASE"
	QueryURL        = "URL"
	QueryUpdateFile = "UPDATE_FILE"
)

// Report writes the field of rec selected by query to w as plain
// text. QueryUpdateFile additionally synchronizes the VERSION_DEFAULT
// cache file; its failure is the only error Report can return.
func Report(w io.Writer, rec *Record, settings *config.Settings, query string) error {
	switch query {
	case QueryDesc5:
		fmt.Fprintln(w, rec.Desc5)
	case QueryVer5:
		fmt.Fprintln(w, rec.Ver5)
	case QueryVer50:
		fmt.Fprintln(w, rec.Ver50)
	case QuerySemver:
		fmt.Fprintln(w, rec.Semver)
	case QueryIsRelease:
		fmt.Fprintf(w, "%t\n", rec.IsRelease)
	case QueryTag:
		fmt.Fprintln(w, rec.Tag)
	case QuerySuffix:
		fmt.Fprintln(w, rec.Suffix)
	case QueryBase:
		fmt.Fprintln(w, rec.Base)
	case QueryURL:
		fmt.Fprintln(w, rec.URL(settings.Website))
	case QueryUpdateFile:
		content, err := UpdateFile(rec, settings)
		if err != nil {
			return err
		}
		fmt.Fprint(w, content)
	default:
		fmt.Fprintln(w, rec.Desc50)
	}
	return nil
}

// URL returns the canonical project URL for this version: the
// versioned historic page for releases, the site root otherwise.
// website must be slash-terminated.
func (rec *Record) URL(website string) string {
	if rec.Semver == rec.Ver50 {
		return website + "historic/" + rec.Semver + ".html"
	}
	return website
}

// UpdateFile synchronizes the VERSION_DEFAULT file at the build root
// with rec.Desc50 and returns the file's resulting contents.
//
// When the file exists at the source root but not yet at a distinct
// build root, it is copied over first. The new value is then written
// to a temp file and renamed over the target only when it differs
// byte-for-byte from the current content, so an unchanged version
// never touches the file's timestamp.
func UpdateFile(rec *Record, settings *config.Settings) (string, error) {
	target := settings.DefaultFilePath()
	source := settings.SourceDefaultFilePath()

	if target != source {
		if _, err := os.Stat(target); os.IsNotExist(err) {
			if data, err := os.ReadFile(source); err == nil {
				if err := os.WriteFile(target, data, 0644); err != nil {
					return "", &Error{Kind: ErrKindCacheWrite,
						Message: fmt.Sprintf("cannot seed %s from source tree", target), Err: err}
				}
			}
		}
	}

	content := fmt.Sprintf("%s='%s'\n", config.EnvDefault, rec.Desc50)

	existing, err := os.ReadFile(target)
	if err == nil && bytes.Equal(existing, []byte(content)) {
		return content, nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), config.FileDefault+".tmp.*")
	if err != nil {
		return "", &Error{Kind: ErrKindCacheWrite,
			Message: "cannot create temp file", Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", &Error{Kind: ErrKindCacheWrite,
			Message: fmt.Sprintf("cannot write %s", tmpName), Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", &Error{Kind: ErrKindCacheWrite,
			Message: fmt.Sprintf("cannot close %s", tmpName), Err: err}
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", &Error{Kind: ErrKindCacheWrite,
			Message: fmt.Sprintf("cannot replace %s", target), Err: err}
	}

	return content, nil
}
