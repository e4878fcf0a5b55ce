package analysis

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var chapterLineRE = regexp.MustCompile(`(?m)^(\d+:(?:\d+:)?\d+)(.*?)$`)

// ParseTimestamp converts m:ss or h:mm:ss into seconds.
func ParseTimestamp(ts string) (int, error) {
	parts := strings.Split(ts, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("timestamp %q: want m:ss or h:mm:ss", ts)
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("timestamp %q: bad field %q", ts, p)
		}
		total = total*60 + n
	}
	return total, nil
}

// ProcessTimestamps prefixes every line that starts with a timestamp with
// its offset in seconds, e.g. "2:57 Intro" becomes "[ts 177] 2:57 Intro".
func ProcessTimestamps(description string) string {
	return chapterLineRE.ReplaceAllStringFunc(description, func(line string) string {
		m := chapterLineRE.FindStringSubmatch(line)
		secs, err := ParseTimestamp(m[1])
		if err != nil {
			return line
		}
		return fmt.Sprintf("[ts %d] %s%s", secs, m[1], m[2])
	})
}
