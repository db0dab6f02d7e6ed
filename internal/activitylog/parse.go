package activitylog

import "regexp"

// Console line grammars, tried in order, first match wins:
//
//	[HH:MM:SS] [LEVEL] message
//	[HH:MM:SS] LEVEL: message
//	[HH:MM:SS] message        (level defaults to INFO)
//
// Raw executor output is best-effort diagnostic, so anything that matches
// none of the three is dropped silently.
var (
	reBracketLevel = regexp.MustCompile(`^\[(\d{2}:\d{2}:\d{2})\] \[([A-Z]+)\] (.+)$`)
	reColonLevel   = regexp.MustCompile(`^\[(\d{2}:\d{2}:\d{2})\] ([A-Z]+): (.+)$`)
	reBare         = regexp.MustCompile(`^\[(\d{2}:\d{2}:\d{2})\] (.+)$`)
)

// ConsoleLine is one parsed line of raw executor output. The source
// carries a time of day only, no date.
type ConsoleLine struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// ParseConsoleLine parses one raw console line. The second return value
// is false for unrecognized lines.
func ParseConsoleLine(line string) (ConsoleLine, bool) {
	if m := reBracketLevel.FindStringSubmatch(line); m != nil {
		return ConsoleLine{Timestamp: m[1], Level: m[2], Message: m[3]}, true
	}
	if m := reColonLevel.FindStringSubmatch(line); m != nil {
		return ConsoleLine{Timestamp: m[1], Level: m[2], Message: m[3]}, true
	}
	if m := reBare.FindStringSubmatch(line); m != nil {
		return ConsoleLine{Timestamp: m[1], Level: "INFO", Message: m[2]}, true
	}
	return ConsoleLine{}, false
}
