// Package analysis derives secondary artifacts from stored videos: the
// boilerplate-free description, an LLM metadata extraction and a cleaned
// transcript with chapter headings.
package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Threshold is the number of distinct videos of a channel a block must
// appear in before it counts as boilerplate.
const Threshold = 3

// Lines shorter than this many display characters are considered above
// the fold when they open a description.
const foldLength = 120

// A header line is at most this long; longer content below a separator
// makes it a header underline.
const headerLength = 60

// URLs are displayed shortened to this many characters.
const displayURLLength = 20

var (
	separatorRE   = regexp.MustCompile(`^[^a-zA-Z0-9]*$`)
	linkRE        = regexp.MustCompile(`https?://|@[\p{L}\p{N}_]+`)
	urlRE         = regexp.MustCompile(`https?://\S+`)
	timestampRE   = regexp.MustCompile(`(?m)^\d{1,2}:\d{2}`)
	hashtagLineRE = regexp.MustCompile(`^#\S+(?:\s+#\S+)*$`)
	blankRunRE    = regexp.MustCompile(`\n\n+`)
	newlineRunRE  = regexp.MustCompile(`\n+`)

	// lineBreaks maps every line boundary to "\n".
	lineBreaks = strings.NewReplacer(
		"\r\n", "\n", "\r", "\n", "\v", "\n", "\f", "\n",
		"\x1c", "\n", "\x1d", "\n", "\x1e", "\n",
		"\u0085", "\n", "\u2028", "\n", "\u2029", "\n",
	)
)

// SplitBlocks cuts a description into blocks. Blank lines separate
// blocks. In addition two short opening lines become blocks of their own,
// punctuation-only lines separate blocks unless they underline a header,
// and hashtag-only lines are isolated.
func SplitBlocks(text string) []string {
	lines := splitLines(text)

	if len(lines) >= 2 {
		first, second := strings.TrimSpace(lines[0]), strings.TrimSpace(lines[1])
		if first != "" && second != "" && DisplayLength(first) < foldLength && DisplayLength(second) < foldLength {
			lines = append([]string{lines[0], "", lines[1], ""}, lines[2:]...)
		}
	}

	isSep := make([]bool, len(lines))
	for i, line := range lines {
		isSep[i] = strings.TrimSpace(line) != "" && separatorRE.MatchString(line)
	}

	out := make([]string, 0, len(lines))
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		boundary := isSep[i] && !isUnderline(lines, isSep, i)
		hashtags := trimmed != "" && hashtagLineRE.MatchString(trimmed)
		if boundary || hashtags {
			out = append(out, "", line, "")
		} else {
			out = append(out, line)
		}
	}

	var blocks []string
	for _, b := range blankRunRE.Split(strings.Join(out, "\n"), -1) {
		if b = strings.TrimSpace(b); b != "" {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

// isUnderline reports whether the separator at i underlines a header:
// exactly one short line above it and more than one line, or a long
// line, below it, both counted up to the neighbouring separators.
func isUnderline(lines []string, isSep []bool, i int) bool {
	var above []string
	for j := i - 1; j >= 0 && !isSep[j]; j-- {
		if s := strings.TrimSpace(lines[j]); s != "" {
			above = append(above, s)
		}
	}
	if len(above) != 1 || utf8.RuneCountInString(above[0]) > headerLength {
		return false
	}

	below := 0
	long := false
	for j := i + 1; j < len(lines) && !isSep[j]; j++ {
		if s := strings.TrimSpace(lines[j]); s != "" {
			below++
			long = long || utf8.RuneCountInString(s) > headerLength
		}
	}
	return below > 1 || long
}

func splitLines(text string) []string {
	text = lineBreaks.Replace(text)
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// DisplayLength is the length of line in characters with every URL
// counted as at most 20.
func DisplayLength(line string) int {
	n, last := 0, 0
	for _, m := range urlRE.FindAllStringIndex(line, -1) {
		n += utf8.RuneCountInString(line[last:m[0]])
		n += min(utf8.RuneCountInString(line[m[0]:m[1]]), displayURLLength)
		last = m[1]
	}
	return n + utf8.RuneCountInString(line[last:])
}

// Checksum identifies a block by the SHA-256 of its text.
func Checksum(block string) string {
	sum := sha256.Sum256([]byte(block))
	return hex.EncodeToString(sum[:])
}

// HasLinks reports whether block contains a URL or an @handle.
func HasLinks(block string) bool { return linkRE.MatchString(block) }

// HasTimestamps reports whether any line of block starts with a m:ss
// timestamp.
func HasTimestamps(block string) bool { return timestampRE.MatchString(block) }

// IsHashtagBlock reports whether block consists of hashtags only.
func IsHashtagBlock(block string) bool {
	return hashtagLineRE.MatchString(strings.TrimSpace(block))
}

// IsSeparator reports whether block has no letters or digits.
func IsSeparator(block string) bool { return separatorRE.MatchString(block) }

// CleanTags drops the tags that contain, or are contained in, the channel
// title, ignoring case. An empty title keeps every tag.
func CleanTags(tags []string, channelTitle string) []string {
	title := strings.ToLower(channelTitle)
	out := []string{}
	if title == "" {
		return append(out, tags...)
	}
	for _, t := range tags {
		lt := strings.ToLower(t)
		if strings.Contains(title, lt) || strings.Contains(lt, title) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func checksums(blocks []string) []string {
	out := make([]string, len(blocks))
	for i, b := range blocks {
		out[i] = Checksum(b)
	}
	return out
}
