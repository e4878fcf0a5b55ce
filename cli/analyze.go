package cli

import (
	"context"
	"errors"
	"fmt"
	"path"

	"go.uber.org/zap"

	"ytarchive/analysis"
	"ytarchive/catalog"
	"ytarchive/youtube"
)

// formattedTranscriptName is the merged output of the transcript
// formatter inside a video's processed directory.
const formattedTranscriptName = "transcript.md"

// Execute implements the go-flags Commander interface.
func (c *DescriptionsCommand) Execute([]string) error {
	return execute(c.globals, "descriptions", accessPublic, c.run)
}

func (c *DescriptionsCommand) run(ctx context.Context, a *app) error {
	if len(c.Video) == 0 && len(c.Args.IDs) == 0 {
		return errors.New("descriptions: give channel ids or --video")
	}
	f := a.filter()

	videoErr := a.each(ctx, "description", c.Video, func(id string) error {
		v, err := a.catalog.Videos.Get(ctx, id)
		if err != nil {
			return err
		}
		_, err = f.Get(ctx, v)
		return err
	})
	channelErr := a.each(ctx, "channel", c.Args.IDs, func(id string) error {
		n, err := f.ProcessChannel(ctx, id)
		if err != nil {
			return err
		}
		a.logger.Info("processed descriptions", zap.String("channel_id", id), zap.Int("videos", n))
		return nil
	})
	return errors.Join(videoErr, channelErr)
}

// Execute implements the go-flags Commander interface.
func (c *BlocksStatsCommand) Execute([]string) error {
	return execute(c.globals, "blocks-stats", accessNone, c.run)
}

func (c *BlocksStatsCommand) run(ctx context.Context, a *app) error {
	f := a.filter()
	return a.each(ctx, "channel", c.Args.IDs, func(id string) error {
		s, err := f.Stats(ctx, id)
		if err != nil {
			return err
		}
		if s == nil {
			fmt.Fprintf(a.out, "%s: no block index\n", id)
			return nil
		}
		fmt.Fprintf(a.out, "%s\n", id)
		fmt.Fprintf(a.out, "  videos:            %d\n", s.Videos)
		fmt.Fprintf(a.out, "  blocks:            %d\n", s.Blocks)
		fmt.Fprintf(a.out, "  unique blocks:     %d\n", s.Unique)
		fmt.Fprintf(a.out, "  boilerplate:       %d (%.1f%%)\n", s.Repeated, s.BoilerplateRatio())
		fmt.Fprintf(a.out, "  processed:         %d\n", s.Processed)
		fmt.Fprintf(a.out, "  avg unique length: %.1f\n", s.AvgUniqueLength)
		return nil
	})
}

// Execute implements the go-flags Commander interface.
func (c *AnalyzeCommand) Execute([]string) error {
	return execute(c.globals, "analyze", accessPublic, c.run)
}

func (c *AnalyzeCommand) run(ctx context.Context, a *app) error {
	extract, format := c.Extract, c.Format
	if !extract && !format {
		extract, format = true, true
	}
	extractor := analysis.NewExtractor(a.store, a.llm, a.cfg.LLM.ExtractModel, a.batch, a.logger)
	formatter := analysis.NewFormatter(a.store, a.llm, a.catalog.Videos, a.cfg.LLM.FormatModel, a.logger)

	return a.each(ctx, "analysis", c.Args.IDs, func(id string) error {
		v, err := a.catalog.Videos.Get(ctx, id)
		if err != nil {
			return err
		}
		if extract {
			chapters, err := extractor.Chapters(ctx, v)
			if err != nil {
				return err
			}
			a.logger.Info("extracted metadata", zap.String("video_id", id), zap.Int("chapters", len(chapters)))
		}
		if format {
			return formatTranscript(ctx, a, formatter, v)
		}
		return nil
	})
}

func formatTranscript(ctx context.Context, a *app, f *analysis.Formatter, v *catalog.Video) error {
	text, err := f.Get(ctx, v.VideoID)
	if errors.Is(err, youtube.ErrNoTranscript) {
		a.logger.Info("skipped transcript", zap.String("video_id", v.VideoID), zap.String("reason", "no transcript"))
		return nil
	}
	if err != nil {
		return err
	}
	rel := path.Join(catalog.ProcessedDir(v.VideoID), formattedTranscriptName)
	if err := a.store.SaveText(rel, text); err != nil {
		return err
	}
	a.logger.Info("wrote transcript", zap.String("video_id", v.VideoID),
		zap.Int("headings", len(analysis.ExtractHeadings(text))))
	return nil
}
