// internal/service/template_service.go
package service

import (
	"sort"
	"strings"
)

const (
	noteTemplate   = "Voice summary: {summary}"
	hotTaskSubject = "Follow up HOT lead today"
	optOutReply    = "You have been opted out. Reply START to opt in."
)

// RenderTemplate fills {key} placeholders in one pass. Substituted values are
// not rescanned, so a summary containing braces is copied verbatim. Unknown
// placeholders are left as they are.
func RenderTemplate(template string, data map[string]string) string {
	if len(data) == 0 {
		return template
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", data[k])
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
