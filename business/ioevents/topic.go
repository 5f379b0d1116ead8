// Package ioevents implements the topic-level-structure conventions of the
// IoM message bus: keyword-based segment extraction, template matching, and
// the bus clients (inbound subscription, outbound differential publish,
// request/response correlation) built on top of them.
package ioevents

import (
	"regexp"
	"strings"
)

// TopicLevelStructure is a parameterized topic pattern using '+' as a
// single-segment wildcard and '#' as a multi-segment wildcard, the same
// convention MQTT itself uses for subscriptions.
type TopicLevelStructure string

// Render substitutes {name} placeholders in the pattern with values from
// params, leaving any unmatched placeholder untouched.
func (t TopicLevelStructure) Render(params map[string]string) string {
	result := string(t)
	for key, value := range params {
		result = strings.ReplaceAll(result, "{"+key+"}", value)
	}
	return result
}

// Matches reports whether topic satisfies the pattern's '+'/'#' wildcards.
func (t TopicLevelStructure) Matches(topic string) bool {
	pattern := regexp.QuoteMeta(string(t))
	pattern = strings.ReplaceAll(pattern, `\+`, `[^/]+`)
	pattern = strings.ReplaceAll(pattern, `\#`, `.*`)
	re := regexp.MustCompile("^" + pattern + "$")
	return re.MatchString(topic)
}

// ValueAfter returns the topic segment immediately following the literal
// keyword segment (e.g. ValueAfter(topic, "Vehicle") on
// ".../Vehicle/1234/..." returns "1234"), the keyword-lookup extraction
// §6 describes for Vehicle/CorrelationId/DataVersion segments.
func ValueAfter(topic, keyword string) string {
	segments := strings.Split(topic, "/")
	for i, segment := range segments {
		if segment == keyword && i+1 < len(segments) {
			return segments[i+1]
		}
	}
	return ""
}
