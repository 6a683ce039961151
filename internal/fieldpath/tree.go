package fieldpath

import "strconv"

// Get reads the value at p. The second return reports whether every segment
// resolved against a container of the matching shape.
func Get(tree map[string]any, p Path) (any, bool) {
	if len(p) == 0 {
		return tree, tree != nil
	}
	var cur any = tree
	for _, seg := range p {
		if seg.IsIndex {
			arr, ok := cur.([]any)
			if !ok || seg.Index < 0 || seg.Index >= len(arr) {
				return nil, false
			}
			cur = arr[seg.Index]
			continue
		}
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[seg.Name]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// GetString reads the value at p as text; non-string values read as "".
func GetString(tree map[string]any, p Path) string {
	v, ok := Get(tree, p)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Set writes v at p, creating intermediate containers on demand. At each
// level the container shape follows the segment kind (array for indices,
// object for names); an incompatible existing node is replaced, discarding
// its prior data. Set never fails.
func Set(tree map[string]any, p Path, v any) map[string]any {
	if len(p) == 0 {
		return tree
	}
	if p[0].IsIndex {
		// The root of a value tree is always an object keyed by field id;
		// a stray leading index addresses it by its decimal name.
		p = append(Path{Field(strconv.Itoa(p[0].Index))}, p[1:]...)
	}
	root, _ := setIn(tree, p, v).(map[string]any)
	return root
}

func setIn(c any, p Path, v any) any {
	seg := p[0]
	if seg.IsIndex {
		arr, _ := c.([]any)
		if seg.Index < 0 {
			return arr
		}
		for len(arr) <= seg.Index {
			arr = append(arr, nil)
		}
		if len(p) == 1 {
			arr[seg.Index] = v
		} else {
			arr[seg.Index] = setIn(arr[seg.Index], p[1:], v)
		}
		return arr
	}
	obj, ok := c.(map[string]any)
	if !ok || obj == nil {
		obj = map[string]any{}
	}
	if len(p) == 1 {
		obj[seg.Name] = v
	} else {
		obj[seg.Name] = setIn(obj[seg.Name], p[1:], v)
	}
	return obj
}

// Remove deletes the value at p: object keys are deleted, array entries are
// spliced out. Paths that do not resolve are a no-op. Remove never fails.
func Remove(tree map[string]any, p Path) map[string]any {
	if tree == nil || len(p) == 0 {
		return tree
	}
	root, _ := removeIn(tree, p).(map[string]any)
	return root
}

func removeIn(c any, p Path) any {
	seg := p[0]
	if seg.IsIndex {
		arr, ok := c.([]any)
		if !ok || seg.Index < 0 || seg.Index >= len(arr) {
			return c
		}
		if len(p) == 1 {
			return append(arr[:seg.Index], arr[seg.Index+1:]...)
		}
		arr[seg.Index] = removeIn(arr[seg.Index], p[1:])
		return arr
	}
	obj, ok := c.(map[string]any)
	if !ok {
		return c
	}
	if len(p) == 1 {
		delete(obj, seg.Name)
		return obj
	}
	if child, exists := obj[seg.Name]; exists {
		obj[seg.Name] = removeIn(child, p[1:])
	}
	return obj
}
