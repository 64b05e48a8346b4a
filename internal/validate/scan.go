package validate

import (
	"regexp"
	"strings"
)

type signature struct {
	name    string
	pattern *regexp.Regexp
}

var signatures = []signature{
	{"script_tag", regexp.MustCompile(`(?i)<\s*/?\s*script`)},
	{"iframe_tag", regexp.MustCompile(`(?i)<\s*/?\s*iframe`)},
	{"script_protocol", regexp.MustCompile(`(?i)(javascript|vbscript)\s*:`)},
	{"data_html", regexp.MustCompile(`(?i)data\s*:\s*text/html`)},
	{"event_handler", regexp.MustCompile(`(?i)\bon\w+\s*=`)},
	{"sql_ddl", regexp.MustCompile(`(?i)\b(drop|alter|truncate|create)\s+(table|database|schema)\b`)},
	{"sql_union", regexp.MustCompile(`(?i)\bunion\s+(all\s+)?select\b`)},
	{"sql_select", regexp.MustCompile(`(?i)\bselect\b.*\bfrom\b`)},
	{"sql_insert", regexp.MustCompile(`(?i)\binsert\s+into\b`)},
	{"sql_delete", regexp.MustCompile(`(?i)\bdelete\s+from\b`)},
	{"sql_update", regexp.MustCompile(`(?i)\bupdate\b.*\bset\b`)},
	{"sql_exec", regexp.MustCompile(`(?i)\b(exec|execute)\s*\(`)},
	{"sql_tautology", regexp.MustCompile(`(?i)'\s*(or|and)\s+'?\w+'?\s*=\s*'?\w+`)},
	{"sql_comment", regexp.MustCompile(`(;\s*--)|(/\*.*\*/)`)},
	{"path_traversal", regexp.MustCompile(`\.\.[/\\]`)},
	{"template", regexp.MustCompile(`\{\{|\}\}|\$\{|<%|%>|\{%|%\}`)},
	{"percent_encoding", regexp.MustCompile(`%[0-9a-fA-F]{2}`)},
	{"hex_escape", regexp.MustCompile(`(?i)\\x[0-9a-f]{2}`)},
	{"unicode_escape", regexp.MustCompile(`(?i)\\u[0-9a-f]{4}`)},
	{"html_entity", regexp.MustCompile(`(?i)&(#x?[0-9a-f]+|[a-z]+);`)},
}

// Scan tests the concatenated values against the malicious-input signatures
// and returns the names of every signature that matched. Values are joined
// by newlines so a match cannot span two fields.
func Scan(values ...string) []string {
	joined := strings.Join(values, "\n")
	var hits []string
	for _, sig := range signatures {
		if sig.pattern.MatchString(joined) {
			hits = append(hits, sig.name)
		}
	}
	return hits
}
