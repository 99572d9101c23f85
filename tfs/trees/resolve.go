package trees

import "strings"

// Separator delimits path components.
const Separator = "/"

// SplitPath splits p on the separator and drops the empty components that
// leading, trailing or repeated separators produce. The root path yields
// no components.
func SplitPath(p string) []string {
	parts := strings.Split(p, Separator)
	out := make([]string, 0, len(parts))
	for _, s := range parts {
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// JoinPath is the canonical absolute form of a component list, the
// inverse of SplitPath.
func JoinPath(components []string) string {
	return Separator + strings.Join(components, Separator)
}

// Resolve walks path from root. It fails as soon as a component is
// missing or a file would have to be descended into.
func Resolve(root *Directory, path string) (Node, bool) {
	if root == nil {
		return nil, false
	}
	if path == Separator {
		return root, true
	}

	var current Node = root
	for _, component := range SplitPath(path) {
		dir, ok := current.(*Directory)
		if !ok {
			return nil, false
		}
		next, found := dir.FindChild(component)
		if !found {
			return nil, false
		}
		current = next
	}
	return current, true
}
