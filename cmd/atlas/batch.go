package main

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yegors/atlas/internal/intent"
	"github.com/yegors/atlas/internal/parser"
	"github.com/yegors/atlas/pkg/logger"
)

// batchItem is one input row. Rows are either JSON objects or plain text.
type batchItem struct {
	ID        string `json:"id"`
	Utterance string `json:"utterance"`
	Text      string `json:"text"`
	Speaker   string `json:"speaker"`
}

func (b batchItem) text() string {
	if b.Utterance != "" {
		return b.Utterance
	}
	return b.Text
}

func batchCmd(opts *rootOptions) *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "batch [file]",
		Short: "Parse many independent utterances concurrently",
		Long: `Parse one utterance per line. A line starting with "{" is decoded as a JSON
object with "id", "utterance" (or "text") and "speaker"; any other line is
taken as the utterance itself. Results are written in input order, one JSON
object per line.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := readBatch(cmd, args)
			if err != nil {
				return err
			}
			return withApp(opts, func(a *app) error {
				results, err := parseBatch(cmd.Context(), a.pipeline, items, workers, a.logger)
				if err != nil {
					return err
				}
				if opts.format == formatTable {
					renderBatch(cmd.OutOrStdout(), results)
					return nil
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, result := range results {
					if err := enc.Encode(result); err != nil {
						return fmt.Errorf("failed to write result: %w", err)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "j", runtime.NumCPU(), "number of concurrent parses")
	return cmd
}

func readBatch(cmd *cobra.Command, args []string) ([]batchItem, error) {
	var items []batchItem
	err := scanInput(cmd, args, func(lineNo int, line string) error {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			return nil
		}
		item := batchItem{Text: trimmed}
		if strings.HasPrefix(trimmed, "{") {
			item = batchItem{}
			if err := json.Unmarshal([]byte(trimmed), &item); err != nil {
				return fmt.Errorf("line %d: failed to decode record: %w", lineNo, err)
			}
			if strings.TrimSpace(item.text()) == "" {
				return fmt.Errorf("line %d: record has no utterance", lineNo)
			}
		}
		if item.ID == "" {
			item.ID = fmt.Sprintf("line-%d", lineNo)
		}
		items = append(items, item)
		return nil
	})
	return items, err
}

// parseBatch parses items with at most workers concurrent parses. Each result
// lands at its item's index so the output keeps input order.
func parseBatch(ctx context.Context, pipeline *parser.Pipeline, items []batchItem, workers int, log *logger.Logger) ([]*intent.ParseResult, error) {
	if workers <= 0 {
		workers = 1
	}
	results := make([]*intent.ParseResult, len(items))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, item := range items {
		if egCtx.Err() != nil {
			break
		}
		i, item := i, item
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			results[i] = pipeline.Parse(item.text(), parser.Options{
				Speaker:     item.Speaker,
				UtteranceID: item.ID,
			})
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("batch interrupted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("batch interrupted: %w", err)
	}

	log.Named("batch").Debug("Batch parsed",
		logger.Int("items", len(items)),
		logger.Int("workers", workers))
	return results, nil
}
