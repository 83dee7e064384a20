package foxytools

import (
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// CacheKey canonicalizes key parts into a stable, filesystem safe string.
// Mappings are flattened into sorted path=value pairs, so two option maps
// holding the same data produce the same key whatever their insertion
// order. Sequences keep their order. Path segments and values are escaped
// so that '.', '=', '[', ']', '/' and '%' only ever appear as separators.
func CacheKey(parts any) string {
	var pairs []string
	flattenKey("", parts, &pairs)
	sort.Strings(pairs)
	return strings.Join(pairs, "/")
}

func flattenKey(prefix string, v any, pairs *[]string) {
	if m, ok := asMap(v); ok {
		if len(m) == 0 && prefix != "" {
			*pairs = append(*pairs, prefix+"={}")
		}
		for k, e := range m {
			flattenKey(joinKey(prefix, k), e, pairs)
		}
		return
	}

	switch x := v.(type) {
	case url.Values:
		for k, vs := range x {
			flattenKey(joinKey(prefix, k), vs, pairs)
		}
		return
	case http.Header:
		for k, vs := range x {
			flattenKey(joinKey(prefix, k), vs, pairs)
		}
		return
	case nil:
		*pairs = append(*pairs, prefix+"=")
		return
	}

	rv := reflect.ValueOf(v)
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
		for i := 0; i < rv.Len(); i++ {
			flattenKey(prefix+"["+strconv.Itoa(i)+"]", rv.Index(i).Interface(), pairs)
		}
		return
	}

	*pairs = append(*pairs, prefix+"="+url.QueryEscape(scalarString(v)))
}

func joinKey(prefix, k string) string {
	if prefix == "" {
		return escapeSegment(k)
	}
	return prefix + "." + escapeSegment(k)
}

// escapeSegment escapes one mapping key. QueryEscape leaves '.' alone.
func escapeSegment(k string) string {
	return strings.ReplaceAll(url.QueryEscape(k), ".", "%2E")
}

func scalarString(v any) string {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	default:
		return fmt.Sprint(x)
	}
}
