package analysis

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"ytarchive/catalog"
	"ytarchive/internal/filestore"
	"ytarchive/internal/llm"
	"ytarchive/storage"
	"ytarchive/youtube"
)

// Transcripts are sent to the model in overlapping windows of ChunkSize
// segments, one window every StepSize segments.
const (
	ChunkSize = 120
	StepSize  = 90
)

// FormatModel is the default formatting model.
const FormatModel = "gpt-4o"

const formatTemperature = 0.4

//go:embed prompts/format.txt
var formatPrompt string

// TranscriptSource returns the cached transcript of a video, nil when the
// video has none.
type TranscriptSource interface {
	Transcript(ctx context.Context, videoID string) (*youtube.Transcript, error)
}

// Heading is a chapter heading and the offset of the paragraph it
// introduces.
type Heading struct {
	Seconds int
	Title   string
}

// Formatter turns a raw transcript into readable paragraphs with chapter
// headings, one cached chunk at a time.
type Formatter struct {
	store       *filestore.Store
	llm         llm.Completer
	transcripts TranscriptSource
	model       string
	logger      *zap.Logger
}

// NewFormatter creates a Formatter. An empty model selects FormatModel.
func NewFormatter(store *filestore.Store, completer llm.Completer, transcripts TranscriptSource, model string, logger *zap.Logger) *Formatter {
	if model == "" {
		model = FormatModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Formatter{
		store:       store,
		llm:         completer,
		transcripts: transcripts,
		model:       model,
		logger:      logger.With(zap.String("component", "formatter")),
	}
}

// ChunkDir is where the formatted chunks of a video are cached.
func ChunkDir(videoID string) string {
	return path.Join(catalog.ProcessedDir(videoID), "transcript_chunks")
}

func chunkPath(videoID string, n int) string {
	return path.Join(ChunkDir(videoID), fmt.Sprintf("%03d.txt", n))
}

// ChunkCount is the number of windows needed to cover n segments.
func ChunkCount(n int) int {
	if n <= 0 {
		return 0
	}
	if n <= ChunkSize {
		return 1
	}
	return 1 + (n-ChunkSize+StepSize-1)/StepSize
}

// Get formats the transcript of videoID, running the model only for
// chunks that are not cached yet.
func (f *Formatter) Get(ctx context.Context, videoID string) (string, error) {
	t, err := f.transcripts.Transcript(ctx, videoID)
	if err != nil {
		return "", err
	}
	if t == nil {
		return "", fmt.Errorf("format %s: %w", videoID, youtube.ErrNoTranscript)
	}

	count := ChunkCount(len(t.Segments))
	chunks := make([]string, 0, count)
	for n := range count {
		text, err := f.chunk(ctx, videoID, t, n, chunks)
		if err != nil {
			return "", err
		}
		chunks = append(chunks, text)
	}

	text := MergeChunks(chunks)
	f.logger.Debug("formatted transcript", zap.String("video_id", videoID),
		zap.Int("chunks", count), zap.Int("headings", len(ExtractHeadings(text))))
	return text, nil
}

func (f *Formatter) chunk(ctx context.Context, videoID string, t *youtube.Transcript, n int, previous []string) (string, error) {
	rel := chunkPath(videoID, n)
	data, err := f.store.ReadFile(rel)
	if err == nil {
		return string(data), nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}

	segment := segmentText(t.Segments, n*StepSize)
	f.logger.Info("processing chunk", zap.String("video_id", videoID), zap.Int("chunk", n),
		zap.String("first_line", strings.SplitN(segment, "\n", 2)[0]))

	last := n == ChunkCount(len(t.Segments))-1
	var prev string
	if n > 0 {
		prev = previous[n-1]
	}
	text, err := f.llm.Complete(ctx, llm.Request{
		Prompt: formatPrompt,
		Params: map[string]string{
			"transcript_chunk":   segment,
			"extra_instructions": chunkInstructions(n, last, prev),
		},
		Model:       f.model,
		Temperature: formatTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("format %s chunk %d: %w", videoID, n, err)
	}
	if err := f.store.SaveText(rel, text); err != nil {
		return "", err
	}
	return text, nil
}

// segmentText renders up to ChunkSize segments from offset as
// "<start>: <text>" lines, start rounded to whole seconds.
func segmentText(segments []youtube.Segment, offset int) string {
	var b strings.Builder
	end := min(offset+ChunkSize, len(segments))
	for _, s := range segments[offset:end] {
		fmt.Fprintf(&b, "%d: %s\n", int(math.RoundToEven(s.Start)), s.Text)
	}
	return b.String()
}

func chunkInstructions(n int, last bool, previous string) string {
	switch {
	case n == 0 && last:
		return "This is the *whole* of the transcript"
	case n == 0:
		return "This is the *beginning* of the transcript.\n" +
			"Start new paragraphs and chapters naturally.\n" +
			"Don't assume prior context.\n" +
			"The end is probably incomplete.\n"
	}

	order := "This is a middle chunk."
	if last {
		order = "This is the *end* of the transcript."
	}
	paras := LastParagraphs(previous, 2)
	for len(paras) < 2 {
		paras = append([]string{""}, paras...)
	}
	return order + "\n" +
		"The first lines will repeat the end of the previous chunk.\n" +
		"Skip them and begin at the first *new* paragraph.\n" +
		"If the previous paragraph was incomplete you may *recreate and complete* it here,\n" +
		"using the *exact same timestamp*.\n" +
		"\n" +
		"Previous context:\n" +
		"## [Paragraph -2]\n" +
		paras[0] + "\n" +
		"\n" +
		"## [Paragraph -1, probably incomplete]\n" +
		paras[1] + "\n"
}

var (
	paragraphRE   = regexp.MustCompile(`^\d+:\s`)
	headingLineRE = regexp.MustCompile(`(?m)^## (.+?)$`)
	offsetLineRE  = regexp.MustCompile(`(?m)^(\d+):\s`)
	headingSpecRE = regexp.MustCompile(`^(\d+) ## (.+)$`)
)

// LastParagraphs returns the last count lines of text that start with a
// "<seconds>: " offset.
func LastParagraphs(text string, count int) []string {
	paras := []string{}
	for _, line := range splitLines(text) {
		if paragraphRE.MatchString(line) {
			paras = append(paras, line)
		}
	}
	if len(paras) > count {
		paras = paras[len(paras)-count:]
	}
	return paras
}

// lineOffset parses the "<seconds>:" prefix of a paragraph line. Heading
// lines have none.
func lineOffset(line string) (int, bool) {
	if strings.HasPrefix(line, "##") {
		return 0, false
	}
	head, _, found := strings.Cut(line, ":")
	if !found {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(head))
	return n, err == nil
}

func firstOffset(chunk string) (int, bool) {
	for _, line := range strings.Split(strings.TrimSpace(chunk), "\n") {
		if n, ok := lineOffset(line); ok {
			return n, true
		}
	}
	return 0, false
}

// MergeChunks joins formatted chunks. Each chunk is cut where the next
// one starts, by offset; a chunk without offsets is kept whole.
func MergeChunks(chunks []string) string {
	switch len(chunks) {
	case 0:
		return ""
	case 1:
		return chunks[0]
	}

	var parts []string
	prev := chunks[0]
	for _, cur := range chunks[1:] {
		if start, ok := firstOffset(cur); ok {
			lines := strings.Split(strings.TrimSpace(prev), "\n")
			cut := len(lines)
			for i, line := range lines {
				if n, ok := lineOffset(line); ok && n >= start {
					cut = i
					break
				}
			}
			parts = append(parts, strings.Join(lines[:cut], "\n"))
		} else {
			parts = append(parts, prev)
		}
		prev = cur
	}
	parts = append(parts, prev)

	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}

// ExtractHeadings pairs every "## " heading with the first paragraph
// offset after it. A heading repeating the previous one is dropped.
func ExtractHeadings(text string) []Heading {
	headings := headingLineRE.FindAllStringSubmatchIndex(text, -1)
	offsets := offsetLineRE.FindAllStringSubmatchIndex(text, -1)
	if len(headings) == 0 || len(offsets) == 0 {
		return nil
	}

	var out []Heading
	j := 0
	for _, h := range headings {
		for j < len(offsets) && offsets[j][0] <= h[0] {
			j++
		}
		if j == len(offsets) {
			break
		}
		title := text[h[2]:h[3]]
		if len(out) > 0 && out[len(out)-1].Title == title {
			continue
		}
		secs, _ := strconv.Atoi(text[offsets[j][2]:offsets[j][3]])
		out = append(out, Heading{Seconds: secs, Title: title})
	}
	return out
}

// InsertHeadings places headings, given as "<seconds> ## <title>" lines,
// before the first paragraph at or after their offset. Headings past the
// last paragraph are appended.
func InsertHeadings(transcript, headings string) string {
	var hs []Heading
	for _, line := range splitLines(headings) {
		m := headingSpecRE.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		secs, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		hs = append(hs, Heading{Seconds: secs, Title: m[2]})
	}
	sort.SliceStable(hs, func(i, j int) bool { return hs[i].Seconds < hs[j].Seconds })

	var out []string
	emit := func(h Heading) { out = append(out, "", "## "+h.Title) }
	for _, line := range strings.Split(transcript, "\n") {
		if n, ok := lineOffset(line); ok {
			for len(hs) > 0 && hs[0].Seconds <= n {
				emit(hs[0])
				hs = hs[1:]
			}
		}
		out = append(out, line)
	}
	for _, h := range hs {
		emit(h)
	}
	return strings.TrimLeft(strings.Join(out, "\n"), "\n")
}
