package image

import "strings"

// DefaultTag is used when a user-supplied image string carries no ":tag".
const DefaultTag = "latest"

// Ref is a parsed (name, tag) pair. It is formed from a user string by
// splitting on the first ':'; no further normalization is performed.
type Ref struct {
	Name string
	Tag  string
}

// ParseRef splits s on the first ':'. If no ':' is present, Tag defaults to
// "latest".
func ParseRef(s string) Ref {
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return Ref{Name: s[:i], Tag: s[i+1:]}
	}
	return Ref{Name: s, Tag: DefaultTag}
}

// String renders the canonical "name:tag" form.
func (r Ref) String() string {
	return r.Name + ":" + r.Tag
}

// dirName is the on-disk directory name for this ref, identical to String
// but kept distinct so callers don't assume the two always coincide if the
// on-disk layout ever needs escaping of ':' on non-POSIX hosts.
func (r Ref) dirName() string {
	return r.Name + ":" + r.Tag
}
