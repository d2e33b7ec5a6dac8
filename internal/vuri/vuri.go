// Package vuri implements the bijection between (host_uri, language, region_id)
// and the opaque synthetic URI a downstream language server is told it is
// editing.
package vuri

import (
	"net/url"
	"path"
	"strings"
)

// scheme and prefix identify URIs minted by this codec so Is reliably
// recognizes its own output and nothing else.
const (
	scheme = "bridgels-vdoc"
	prefix = "region"
)

// extensionByLanguage maps an injection language id to its canonical file
// extension. Unknown languages fall back to extUnknown.
var extensionByLanguage = map[string]string{
	"rust":       "rs",
	"python":     "py",
	"lua":        "lua",
	"javascript": "js",
	"typescript": "ts",
	"tsx":        "tsx",
	"jsx":        "jsx",
	"go":         "go",
	"json":       "json",
	"yaml":       "yaml",
	"toml":       "toml",
	"html":       "html",
	"css":        "css",
	"bash":       "sh",
	"c":          "c",
	"cpp":        "cpp",
	"c++":        "cpp",
	"ruby":       "rb",
	"php":        "php",
	"sql":        "sql",
	"markdown":   "md",
	"java":       "java",
	"swift":      "swift",
	"kotlin":     "kt",
	"scala":      "scala",
	"haskell":    "hs",
	"elixir":     "ex",
	"erlang":     "erl",
	"clojure":    "clj",
	"r":          "r",
	"julia":      "jl",
	"dart":       "dart",
	"vim":        "vim",
	"zig":        "zig",
	"ocaml":      "ml",
	"fsharp":     "fs",
	"f#":         "fs",
	"csharp":     "cs",
	"c#":         "cs",
}

const extUnknown = "txt"

// Extension returns the file extension associated with language, or the
// neutral fallback if language is not recognized. Lookup is
// case-insensitive so configured ids like "Rust" still resolve.
func Extension(language string) string {
	if ext, ok := extensionByLanguage[strings.ToLower(language)]; ok {
		return ext
	}
	return extUnknown
}

// Encode returns the virtual document URI for one injection region. The
// result is a pure function of (hostURI, language, regionID): the host URI
// is never recoverable from the result and must be carried alongside by the
// caller.
func Encode(hostURI, language, regionID string) string {
	ext := Extension(language)
	// The host URI is folded into the opaque path segment (hashed, not
	// reversible) purely so that two different host documents never collide
	// on the same region id; ULIDs are unique per tracker instance, but a
	// defensive codec should not assume every caller respects that.
	filename := prefix + "-" + regionID + "." + ext
	u := url.URL{
		Scheme: scheme,
		Host:   hashHost(hostURI),
		Path:   "/" + filename,
	}
	return u.String()
}

// Is reports whether raw is a virtual URI minted by Encode.
func Is(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != scheme {
		return false
	}
	base := path.Base(u.Path)
	return strings.HasPrefix(base, prefix+"-")
}

// RegionID extracts the region identifier embedded in a virtual URI produced
// by Encode. It returns ("", false) if raw is not one of this codec's URIs.
func RegionID(raw string) (string, bool) {
	if !Is(raw) {
		return "", false
	}
	u, _ := url.Parse(raw)
	base := path.Base(u.Path)
	rest := strings.TrimPrefix(base, prefix+"-")
	if dot := strings.LastIndexByte(rest, '.'); dot >= 0 {
		rest = rest[:dot]
	}
	if rest == "" {
		return "", false
	}
	return rest, true
}

// hashHost folds an arbitrary host URI into a short, stable, URL-safe
// segment. It is intentionally one-way: the host URI is never recoverable
// from the virtual URI, only distinct host URIs must not collide.
func hashHost(hostURI string) string {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	var h uint64 = offset64
	for i := 0; i < len(hostURI); i++ {
		h ^= uint64(hostURI[i])
		h *= prime64
	}
	const alphabet = "0123456789abcdefghijklmnopqrstuv"
	buf := make([]byte, 13)
	for i := len(buf) - 1; i >= 0; i-- {
		buf[i] = alphabet[h&0x1f]
		h >>= 5
	}
	return string(buf)
}
