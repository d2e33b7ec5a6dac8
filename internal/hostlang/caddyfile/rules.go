package caddyfile

import (
	"regexp"
	"sort"
)

// The validity rules are derived from the documentation tables instead of
// being maintained as parallel hand-written sets: every documented directive
// whose doc text carries a "*(parent)*" marker is a subdirective of that
// parent, and everything else is valid at site level. Keeping one source of
// truth means hover docs, completion candidates, and diagnostics can never
// disagree about which directives exist.

var parentMarker = regexp.MustCompile(`\*\(([a-z_]+)\)\*`)

var (
	siteDirectives map[string]bool            // valid at site-block level
	parentOf       map[string]string          // subdirective -> documented parent
	subsOf         map[string]map[string]bool // parent -> its subdirectives
)

// containerDirectives hold site-level directives in their body rather than a
// fixed subdirective set.
var containerDirectives = map[string]bool{
	"handle":        true,
	"handle_errors": true,
	"handle_path":   true,
	"route":         true,
}

// freeformDirectives have user-defined bodies (credential pairs, header
// field operations, map cases) that cannot be validated against a name set.
var freeformDirectives = map[string]bool{
	"basicauth":      true,
	"header":         true,
	"request_header": true,
	"map":            true,
	"respond":        true,
	"vars":           true,
	"try_files":      true,
	"push":           true,
	"import":         true,
	"intercept":      true,
}

// extraSubdirectives lists names accepted under parents beyond the one their
// documentation entry points at (a doc entry can only name one parent).
var extraSubdirectives = map[string][]string{
	"forward_auth": {"uri", "header_up", "header_down"},
	"php_fastcgi":  {"root", "index", "try_files", "split", "env"},
	"tls":          {"key_type", "issuer", "load"},
	"file_server":  {"root", "fs", "status"},
	"acme_server":  {"ca", "resolvers"},
	"log":          {"hostnames", "no_hostname"},
	"encode":       {"match"},
	"reverse_proxy": {
		"lb_retry_match", "fail_duration", "health_passes", "health_fails",
		"dynamic", "stream_timeout", "stream_close_delay",
	},
}

// globalOptions is the set of directives valid inside the global options
// block. These are not site directives, so they cannot be derived from the
// directive docs.
var globalOptions = map[string]bool{
	"debug":              true,
	"admin":              true,
	"email":              true,
	"auto_https":         true,
	"default_bind":       true,
	"http_port":          true,
	"https_port":         true,
	"grace_period":       true,
	"shutdown_delay":     true,
	"storage":            true,
	"acme_ca":            true,
	"acme_ca_root":       true,
	"acme_dns":           true,
	"acme_eab":           true,
	"cert_issuer":        true,
	"skip_install_trust": true,
	"key_type":           true,
	"local_certs":        true,
	"persist_config":     true,
	"preferred_chains":   true,
	"ocsp_stapling":      true,
	"ocsp_interval":      true,
	"on_demand_tls":      true,
	"metrics":            true,
	"tracing":            true,
	"servers":            true,
	"log":                true,
	"order":              true,
	"pki":                true,
	"import":             true,
}

func init() {
	siteDirectives = make(map[string]bool)
	parentOf = make(map[string]string)
	subsOf = make(map[string]map[string]bool)

	for _, table := range []map[string]string{directiveDocs, directiveDocsExtra} {
		for name, doc := range table {
			m := parentMarker.FindStringSubmatch(doc)
			if m == nil {
				siteDirectives[name] = true
				continue
			}
			parent := m[1]
			parentOf[name] = parent
			if subsOf[parent] == nil {
				subsOf[parent] = make(map[string]bool)
			}
			subsOf[parent][name] = true
		}
	}
	for parent, names := range extraSubdirectives {
		if subsOf[parent] == nil {
			subsOf[parent] = make(map[string]bool)
		}
		for _, name := range names {
			subsOf[parent][name] = true
		}
	}
}

// siteDirectiveNames returns the site-level directive set, sorted, for
// completion candidates.
func siteDirectiveNames() []string {
	names := make([]string, 0, len(siteDirectives))
	for name := range siteDirectives {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
