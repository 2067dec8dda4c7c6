package hierarchy

import (
	"strings"

	"github.com/agentic-research/tarim/api"
)

// PathSeparator joins breadcrumb segments.
const PathSeparator = " > "

// Path renders chain as a breadcrumb such as "Live animals > Horses".
// Records without a name in lang are skipped rather than leaving an empty
// segment; the result is empty when no record in the chain is named.
func (s *Store) Path(chain []int64, lang api.Lang) string {
	names := make([]string, 0, len(chain))
	for _, id := range chain {
		r, ok := s.byID[id]
		if !ok {
			continue
		}
		if name := strings.TrimSpace(r.I18n.Get(lang).Name); name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, PathSeparator)
}
