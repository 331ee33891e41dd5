package monitor

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffExcerpt renders the inserted and removed text between two cleaned
// snapshots as "+ added" / "- removed" lines, cut at max runes.
func DiffExcerpt(before, after string, max int) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(before, after, false))

	var b strings.Builder
	for _, d := range diffs {
		text := strings.Join(strings.Fields(d.Text), " ")
		if text == "" {
			continue
		}
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			b.WriteString("+ ")
		case diffmatchpatch.DiffDelete:
			b.WriteString("- ")
		default:
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}

	out := strings.TrimRight(b.String(), "\n")
	if r := []rune(out); max > 0 && len(r) > max {
		out = string(r[:max]) + "…"
	}
	return out
}
