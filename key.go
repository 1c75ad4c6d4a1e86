package swrcache

import (
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxKeyLen = 0xFFFF

// KeyOf builds the canonical key for a resource:
//
//	KeyOf("holdings", "42", map[string]string{"sort": "value", "asset": "etf"})
//	// holdings:42?asset=etf&sort=value
//
// Params are sorted by name and escaped, so logically equal requests always
// produce equal keys. An empty id or nil params are omitted.
func KeyOf(kind, id string, params map[string]string) string {
	var b strings.Builder
	b.WriteString(kind)
	if id != "" {
		b.WriteByte(':')
		b.WriteString(url.PathEscape(id))
	}
	if len(params) > 0 {
		q := make(url.Values, len(params))
		for k, v := range params {
			q.Set(k, v)
		}
		b.WriteByte('?')
		b.WriteString(q.Encode()) // Encode sorts by name
	}
	return b.String()
}

// ParseKey splits a key produced by KeyOf. Keys that were not built by KeyOf
// still parse: everything before the first ':' is the kind.
func ParseKey(key string) (kind, id string, params url.Values, err error) {
	if err := ValidateKey(key); err != nil {
		return "", "", nil, err
	}
	head, query, hasQuery := strings.Cut(key, "?")
	kind, rawID, _ := strings.Cut(head, ":")
	if kind == "" {
		return "", "", nil, &InvalidKeyError{Key: key, Reason: "empty kind"}
	}
	if id, err = url.PathUnescape(rawID); err != nil {
		return "", "", nil, &InvalidKeyError{Key: key, Reason: "bad id escape"}
	}
	if hasQuery {
		if params, err = url.ParseQuery(query); err != nil {
			return "", "", nil, &InvalidKeyError{Key: key, Reason: "bad params"}
		}
	}
	return kind, id, params, nil
}

// ValidateKey rejects keys the cache refuses to track.
func ValidateKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return &InvalidKeyError{Key: key, Reason: "empty"}
	case len(key) > maxKeyLen:
		return &InvalidKeyError{Key: key[:32] + "...", Reason: "too long"}
	case !utf8.ValidString(key):
		return &InvalidKeyError{Key: key, Reason: "not utf-8"}
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return &InvalidKeyError{Key: key, Reason: "control character"}
		}
	}
	return nil
}
