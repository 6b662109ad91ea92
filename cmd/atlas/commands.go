package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yegors/atlas/internal/parser"
	"github.com/yegors/atlas/internal/readback"
	"github.com/yegors/atlas/internal/sequence"
)

// maxLineBytes bounds one utterance line read from a file or stdin
const maxLineBytes = 1 << 20

func parseCmd(opts *rootOptions) *cobra.Command {
	var speaker, utteranceID string
	var noHybrid, withTrace bool
	cmd := &cobra.Command{
		Use:   "parse [text...]",
		Short: "Parse one utterance",
		Long:  "Parse one utterance given as arguments, or read it from stdin when no arguments are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := utteranceText(cmd, args)
			if err != nil {
				return err
			}
			return withApp(opts, func(a *app) error {
				result := a.pipeline.Parse(text, parser.Options{
					Speaker:       speaker,
					UtteranceID:   utteranceID,
					DisableHybrid: noHybrid,
					IncludeTrace:  withTrace,
				})
				if opts.format == formatTable {
					renderResult(cmd.OutOrStdout(), result)
					return nil
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().StringVar(&speaker, "speaker", "", "speaker label (default ATC)")
	cmd.Flags().StringVar(&utteranceID, "id", "", "utterance id")
	cmd.Flags().BoolVar(&noHybrid, "no-hybrid", false, "disable hybrid disambiguation")
	cmd.Flags().BoolVar(&withTrace, "trace", false, "include the stage trace in the result")
	return cmd
}

func sequenceCmd(opts *rootOptions) *cobra.Command {
	var speaker string
	cmd := &cobra.Command{
		Use:   "sequence [file]",
		Short: "Parse a sequence of utterances with per-callsign state",
		Long: `Parse utterances in order, one per line, carrying the active clearance of
each callsign from one transmission to the next. Lines are read from the file
argument, or from stdin when it is omitted or "-". Blank lines are skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := inputLines(cmd, args)
			if err != nil {
				return err
			}
			return withApp(opts, func(a *app) error {
				tracker := sequence.NewTracker(a.pipeline, a.logger)
				seq := tracker.RunSequence(lines, parser.Options{Speaker: speaker})
				if opts.format == formatTable {
					renderSequence(cmd.OutOrStdout(), seq)
					return nil
				}
				return printJSON(cmd.OutOrStdout(), seq)
			})
		},
	}
	cmd.Flags().StringVar(&speaker, "speaker", "", "speaker label applied to every turn")
	return cmd
}

func readbackCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "readback <atc> <pilot>",
		Short: "Compare a pilot readback with the ATC instruction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				result := readback.NewComparator(a.pipeline).Compare(args[0], args[1])
				if opts.format == formatTable {
					renderReadback(cmd.OutOrStdout(), result)
					return nil
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	return cmd
}

// utteranceText joins the arguments, or reads all of stdin when there are none
func utteranceText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxLineBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("no utterance given")
	}
	return text, nil
}

// inputLines reads the non-blank lines of the named file, or of stdin
func inputLines(cmd *cobra.Command, args []string) ([]string, error) {
	var lines []string
	err := scanInput(cmd, args, func(_ int, line string) error {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
		return nil
	})
	return lines, err
}

// scanInput calls fn for every line of the named file, or of stdin when no
// file or "-" is given. Line numbers start at 1.
func scanInput(cmd *cobra.Command, args []string, fn func(lineNo int, line string) error) error {
	var r io.Reader = cmd.InOrStdin()
	name := "stdin"
	if len(args) > 0 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
		name = args[0]
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := fn(lineNo, scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	return nil
}
