package archive

import (
	"regexp"
	"strings"
)

// fallbackBindName is used when a bind path has no safe characters at all.
const fallbackBindName = "bind_path"

var unsafeRun = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeBindPath turns a host path into a file name fragment. Each run of
// characters outside [A-Za-z0-9._-] becomes a single "_", and leading and
// trailing underscores are trimmed.
//
//	/data/my app!  ->  data_my_app
//	/              ->  bind_path
func SanitizeBindPath(path string) string {
	safe := strings.Trim(unsafeRun.ReplaceAllString(path, "_"), "_")
	if safe == "" {
		return fallbackBindName
	}
	return safe
}
