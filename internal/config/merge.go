package config

// Merge overlays documents left to right onto a copy of base.
//
// Nested objects merge key by key. Arrays and scalars from a later document
// replace earlier ones whole: pattern lists are authored as complete sets,
// so a project can drop a default pattern by omitting it. Absent keys and
// JSON null never override a defined value.
func Merge(base Document, overlays ...Document) Document {
	out := base.Clone()
	if out == nil {
		out = Document{}
	}
	for _, o := range overlays {
		mergeInto(out, o)
	}
	return out
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		if v == nil {
			continue
		}
		srcObj, srcIsObj := asObject(v)
		dstObj, dstIsObj := asObject(dst[k])
		if srcIsObj && dstIsObj {
			mergeInto(dstObj, srcObj)
			continue
		}
		if srcIsObj {
			fresh := map[string]any{}
			mergeInto(fresh, srcObj)
			dst[k] = fresh
			continue
		}
		dst[k] = cloneValue(v)
	}
}

func asObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Document:
		return t, true
	}
	return nil, false
}
