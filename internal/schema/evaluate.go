package schema

import (
	"strings"

	"freightline/internal/fieldpath"
)

// Context carries the per-step facts the evaluator needs beyond the value
// tree itself: which step it is walking (file tokens embed the step id) and
// the set of attached document-type tokens.
type Context struct {
	StepID    string
	Documents DocSet
}

// HasDocument reports whether a document is attached for the file field at p.
func (c Context) HasDocument(p fieldpath.Path) bool {
	if c.Documents == nil {
		return false
	}
	_, ok := c.Documents[Token(c.StepID, p)]
	return ok
}

// HasAnyValue reports whether any leaf under fields holds an answer: a
// non-empty text value, a truthy boolean, or an attached document for a file
// field. Groups recurse into every repeated row and choices into every
// branch. The walk descends the schema tree only, so it terminates for any
// value shape.
func HasAnyValue(fields []Field, values any, ctx Context) bool {
	return hasAny(fields, values, ctx, nil)
}

func hasAny(fields []Field, values any, ctx Context, prefix fieldpath.Path) bool {
	obj, _ := values.(map[string]any)
	for _, f := range fields {
		fp := prefix.With(fieldpath.Field(f.ID))
		var v any
		if obj != nil {
			v = obj[f.ID]
		}
		switch f.Type {
		case TypeGroup:
			if f.Repeatable {
				items, _ := v.([]any)
				for i, item := range items {
					if hasAny(f.Fields, item, ctx, fp.With(fieldpath.Index(i))) {
						return true
					}
				}
				continue
			}
			if hasAny(f.Fields, v, ctx, fp) {
				return true
			}
		case TypeChoice:
			branches, _ := v.(map[string]any)
			for _, opt := range f.Options {
				var bv any
				if branches != nil {
					bv = branches[opt.ID]
				}
				if hasAny(opt.Fields, bv, ctx, fp.With(fieldpath.Field(opt.ID))) {
					return true
				}
			}
		case TypeFile:
			if ctx.HasDocument(fp) {
				return true
			}
		case TypeBoolean:
			if Truthy(leafText(v)) {
				return true
			}
		default:
			if strings.TrimSpace(leafText(v)) != "" {
				return true
			}
		}
	}
	return false
}

// CollectMissing walks fields against the value tree and returns the set of
// encoded paths of required-but-unanswered fields.
//
// Conditional rules: an unanswered optional group reports nothing inside
// itself; a repeatable group validates only rows that carry any value; and
// once a choice's final option is answered, only that branch is validated —
// the sibling branches' requirements are suppressed. A required choice with
// no complete option (answered with zero missing fields) reports the choice
// path itself.
func CollectMissing(fields []Field, values any, ctx Context) map[string]struct{} {
	out := map[string]struct{}{}
	collectMissing(fields, values, ctx, nil, out)
	return out
}

func collectMissing(fields []Field, values any, ctx Context, prefix fieldpath.Path, out map[string]struct{}) {
	obj, _ := values.(map[string]any)
	for _, f := range fields {
		fp := prefix.With(fieldpath.Field(f.ID))
		var v any
		if obj != nil {
			v = obj[f.ID]
		}
		switch f.Type {
		case TypeGroup:
			if f.Repeatable {
				items, _ := v.([]any)
				answered := 0
				for i, item := range items {
					ip := fp.With(fieldpath.Index(i))
					if !hasAny(f.Fields, item, ctx, ip) {
						continue
					}
					answered++
					collectMissing(f.Fields, item, ctx, ip, out)
				}
				if f.Required && answered == 0 {
					out[fieldpath.Encode(fp)] = struct{}{}
				}
				continue
			}
			if hasAny(f.Fields, v, ctx, fp) {
				collectMissing(f.Fields, v, ctx, fp, out)
			} else if f.Required {
				out[fieldpath.Encode(fp)] = struct{}{}
			}
		case TypeChoice:
			branches, _ := v.(map[string]any)
			branch := func(opt Option) any {
				if branches == nil {
					return nil
				}
				return branches[opt.ID]
			}
			anyComplete := false
			validate := func(opt Option) {
				op := fp.With(fieldpath.Field(opt.ID))
				sub := map[string]struct{}{}
				collectMissing(opt.Fields, branch(opt), ctx, op, sub)
				for k := range sub {
					out[k] = struct{}{}
				}
				if len(sub) == 0 {
					anyComplete = true
				}
			}
			final := f.FinalOption()
			if final != nil && hasAny(final.Fields, branch(*final), ctx, fp.With(fieldpath.Field(final.ID))) {
				validate(*final)
			} else {
				for _, opt := range f.Options {
					if hasAny(opt.Fields, branch(opt), ctx, fp.With(fieldpath.Field(opt.ID))) {
						validate(opt)
					}
				}
			}
			if f.Required && !anyComplete {
				out[fieldpath.Encode(fp)] = struct{}{}
			}
		case TypeFile:
			if f.Required && !ctx.HasDocument(fp) {
				out[fieldpath.Encode(fp)] = struct{}{}
			}
		case TypeBoolean:
			if f.Required && !Truthy(leafText(v)) {
				out[fieldpath.Encode(fp)] = struct{}{}
			}
		default:
			if f.Required && strings.TrimSpace(leafText(v)) == "" {
				out[fieldpath.Encode(fp)] = struct{}{}
			}
		}
	}
}

func leafText(v any) string {
	s, _ := v.(string)
	return s
}
