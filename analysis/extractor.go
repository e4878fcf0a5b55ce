package analysis

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"ytarchive/catalog"
	"ytarchive/internal/batch"
	"ytarchive/internal/filestore"
	"ytarchive/internal/llm"
	"ytarchive/storage"
)

// PromptVersion identifies extractPrompt. Cached extractions written
// under another version are redone.
const PromptVersion = 1

// ExtractModel is the default extraction model.
const ExtractModel = "gpt-4.1"

const extractTemperature = 0.8

//go:embed prompts/extract.txt
var extractPrompt string

// Extraction is the cached result of a metadata extraction.
type Extraction struct {
	ExtractedAt      string `json:"extracted_at"`
	VideoID          string `json:"video_id"`
	VideoLastUpdated string `json:"video_last_updated"`
	PromptVersion    int    `json:"prompt_version"`
	Text             string `json:"text"`
}

// Chapter is one entry of the TIMESTAMPS section of an extraction.
type Chapter struct {
	Seconds     int
	Description string
}

// Extractor asks an LLM for structured metadata about a video.
type Extractor struct {
	store  *filestore.Store
	llm    llm.Completer
	model  string
	batch  batch.Context
	logger *zap.Logger
}

// NewExtractor creates an Extractor. An empty model selects ExtractModel.
func NewExtractor(store *filestore.Store, completer llm.Completer, model string, b batch.Context, logger *zap.Logger) *Extractor {
	if model == "" {
		model = ExtractModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		store:  store,
		llm:    completer,
		model:  model,
		batch:  b,
		logger: logger.With(zap.String("component", "extractor")),
	}
}

func extractionPath(videoID string) string {
	return path.Join(catalog.ProcessedDir(videoID), "ytapi_extracted.json")
}

// Get returns the cached extraction of v when it was made with the
// current prompt for the current version of v, and runs a new one
// otherwise. A cached file that is corrupt or lacks its version fields is
// an error.
func (e *Extractor) Get(ctx context.Context, v *catalog.Video) (*Extraction, error) {
	rel := extractionPath(v.VideoID)
	rec, err := e.store.Load(rel)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return e.Run(ctx, v)
	case err != nil:
		return nil, err
	}

	if missing := rec.Missing([]string{"prompt_version", "video_last_updated"}); len(missing) > 0 {
		return nil, &storage.StorageError{Op: "read", Entity: "extraction", ID: v.VideoID,
			Err: &storage.MissingFieldsError{Fields: missing}}
	}
	var cached Extraction
	if err := rec.Decode(&cached, false); err != nil {
		return nil, &storage.StorageError{Op: "read", Entity: "extraction", ID: v.VideoID,
			Err: fmt.Errorf("%w: %v", storage.ErrStorageCorrupt, err)}
	}
	if cached.PromptVersion == PromptVersion && cached.VideoLastUpdated == storage.FormatTime(v.LastUpdated) {
		return &cached, nil
	}
	return e.Run(ctx, v)
}

// Run extracts metadata for v and caches the result.
func (e *Extractor) Run(ctx context.Context, v *catalog.Video) (*Extraction, error) {
	tags := "No tags"
	if len(v.Tags) > 0 {
		tags = strings.Join(v.Tags, ", ")
	}
	text, err := e.llm.Complete(ctx, llm.Request{
		Prompt: extractPrompt,
		Params: map[string]string{
			"title":       v.Title,
			"description": ProcessTimestamps(v.Description),
			"date":        storage.FormatTime(v.PublishedAt),
			"length":      v.DurationFormatted(),
			"tags":        tags,
		},
		Model:       e.model,
		Temperature: extractTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", v.VideoID, err)
	}

	result := &Extraction{
		ExtractedAt:      storage.FormatTime(e.batch.Time),
		VideoID:          v.VideoID,
		VideoLastUpdated: storage.FormatTime(v.LastUpdated),
		PromptVersion:    PromptVersion,
		Text:             text,
	}
	if err := e.store.Save(extractionPath(v.VideoID), result); err != nil {
		return nil, err
	}
	e.logger.Info("wrote extraction", zap.String("video_id", v.VideoID))
	return result, nil
}

var (
	sectionEndRE   = regexp.MustCompile(`\n\s*\n`)
	chapterStartRE = regexp.MustCompile(`(\d+): `)
	chapterEndRE   = regexp.MustCompile(`\n\d+:`)
)

// Chapters returns the chapters listed in the TIMESTAMPS section of the
// extraction of v. Lines that do not start with an offset are folded
// into the preceding chapter.
func (e *Extractor) Chapters(ctx context.Context, v *catalog.Video) ([]Chapter, error) {
	x, err := e.Get(ctx, v)
	if err != nil {
		return nil, err
	}
	return ParseChapters(x.Text), nil
}

// ParseChapters reads the TIMESTAMPS section of an extraction text. The
// section ends at the first blank line.
func ParseChapters(text string) []Chapter {
	const header = "TIMESTAMPS:"
	i := strings.Index(text, header)
	if i < 0 {
		return nil
	}
	section := text[i+len(header):]
	if loc := sectionEndRE.FindStringIndex(section); loc != nil {
		section = section[:loc[0]]
	}

	var out []Chapter
	pos := 0
	for {
		m := chapterStartRE.FindStringSubmatchIndex(section[pos:])
		if m == nil {
			return out
		}
		secs, err := strconv.Atoi(section[pos+m[2] : pos+m[3]])
		start := pos + m[1]
		end := len(section)
		if loc := chapterEndRE.FindStringIndex(section[start:]); loc != nil {
			end = start + loc[0]
		}
		if err == nil {
			out = append(out, Chapter{Seconds: secs, Description: strings.TrimSpace(section[start:end])})
		}
		pos = end
	}
}
