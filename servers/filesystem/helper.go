package filesystem

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// underRoot reports whether path, already cleaned and absolute, stays
// inside root. The root itself counts as inside.
func underRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	escape := ".." + string(filepath.Separator)
	return rel != ".." && !strings.HasPrefix(rel, escape)
}

// normalizeNewlines rewrites CRLF and bare CR line endings to LF so edit
// matching and diffing see one convention.
func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// diffPreview renders the change from original to modified as a git-style
// patch labelled with the file's relative path. Semantic cleanup keeps
// changed words whole instead of splitting them into single characters.
func diffPreview(original, modified, path string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(original, modified, true))
	patches := dmp.PatchMake(diffs)

	var out strings.Builder
	fmt.Fprintf(&out, "--- %s (original)\n", path)
	fmt.Fprintf(&out, "+++ %s (modified)\n", path)
	for _, patch := range patches {
		out.WriteString(dmp.PatchToText([]diffmatchpatch.Patch{patch}))
	}
	return out.String()
}
