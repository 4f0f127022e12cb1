package ids

import "github.com/oklog/ulid/v2"

// New returns a lexicographically sortable identifier suitable for storage
// keys. ULIDs keep account rows roughly insertion-ordered on disk.
func New() string {
	return ulid.Make().String()
}
