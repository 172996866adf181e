// Package cachekey canonicalizes API requests into stable cache keys.
//
// A key is built from the request URL and its parameter map. Parameters are
// sorted before serialization, so two requests that differ only in parameter
// insertion order always produce the same key. Keys are prefix-ordered by
// URL, which is what pattern invalidation relies on: every key for a URL
// under /api/tasks starts with Prefix("/api/tasks").
package cachekey

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Namespace is prepended to every generated key so cache entries can be
// distinguished from other data sharing the durable store.
const Namespace = "frende"

// Key identifies a single cacheable request.
type Key struct {
	// URL is the request path (e.g. "/api/tasks/42").
	URL string

	// Params are the request parameters (query or body-derived).
	Params map[string]string
}

// String generates the deterministic cache key string.
// Format: frende:api/tasks/42:param1=val1:param2=val2
func (k Key) String() string {
	parts := []string{Namespace}

	path := strings.Trim(k.URL, "/")
	if path != "" {
		parts = append(parts, path)
	}

	if len(k.Params) > 0 {
		names := make([]string, 0, len(k.Params))
		for name := range k.Params {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, k.Params[name]))
		}
	}

	return strings.Join(parts, ":")
}

// Prefix returns the key prefix covering every cached entry whose URL
// starts with the given path. Used for pattern invalidation.
func Prefix(urlPrefix string) string {
	path := strings.Trim(urlPrefix, "/")
	if path == "" {
		return Namespace + ":"
	}
	return Namespace + ":" + path
}

// FromValues builds a Key from url.Values, keeping only the first value
// of each parameter.
func FromValues(rawURL string, values url.Values) Key {
	if len(values) == 0 {
		return Key{URL: rawURL}
	}
	params := make(map[string]string, len(values))
	for name := range values {
		params[name] = values.Get(name)
	}
	return Key{URL: rawURL, Params: params}
}
