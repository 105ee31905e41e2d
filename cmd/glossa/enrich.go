package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/glossa-app/glossa/pkg/coordinator"
	"github.com/glossa-app/glossa/pkg/models"
)

func newEnrichCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Run one enrichment on text given as arguments or on stdin",
	}
	cmd.AddCommand(
		newLanguageCmd(g),
		newSummarizeCmd(g),
		newRewriteCmd(g),
		newTranslateCmd(g),
		newVocabularyCmd(g),
	)
	return cmd
}

// readText joins args, or reads all of stdin when there are none.
func readText(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// runEnrich reads the input text and runs fn against a fresh coordinator.
func runEnrich(cmd *cobra.Command, g *globals, args []string, fn func(ctx context.Context, c *coordinator.Coordinator, text string) error) error {
	text, err := readText(args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	coord, _, cleanup, err := g.openCoordinator(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(ctx, coord, text)
}

func newLanguageCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "language [text]",
		Short: "Detect the language of text",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnrich(cmd, g, args, func(ctx context.Context, c *coordinator.Coordinator, text string) error {
				code, err := c.DetectLanguage(ctx, text)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), code)
				return nil
			})
		},
	}
}

func newSummarizeCmd(g *globals) *cobra.Command {
	var (
		maxLength int
		bullets   bool
	)

	cmd := &cobra.Command{
		Use:   "summarize [text]",
		Short: "Summarize text",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := models.SummaryOptions{MaxLength: maxLength, Format: models.SummaryParagraph}
			if bullets {
				opts.Format = models.SummaryBullets
			}
			return runEnrich(cmd, g, args, func(ctx context.Context, c *coordinator.Coordinator, text string) error {
				summary, err := c.Summarize(ctx, text, opts)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), summary)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&maxLength, "max-length", 0, "target summary length in words (0 lets the model decide)")
	cmd.Flags().BoolVar(&bullets, "bullets", false, "summarize as a bulleted list")
	return cmd
}

func newRewriteCmd(g *globals) *cobra.Command {
	var difficulty int

	cmd := &cobra.Command{
		Use:   "rewrite [text]",
		Short: "Rewrite text at a reading difficulty from 1 to 10",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnrich(cmd, g, args, func(ctx context.Context, c *coordinator.Coordinator, text string) error {
				out, err := c.Rewrite(ctx, text, difficulty)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&difficulty, "difficulty", "d", 5, "target difficulty (1-10)")
	return cmd
}

func newTranslateCmd(g *globals) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "translate [text]",
		Short: "Translate text between languages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnrich(cmd, g, args, func(ctx context.Context, c *coordinator.Coordinator, text string) error {
				out, err := c.Translate(ctx, text, from, to)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "source language code")
	cmd.Flags().StringVar(&to, "to", "", "target language code")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newVocabularyCmd(g *globals) *cobra.Command {
	var words []string

	cmd := &cobra.Command{
		Use:   "vocabulary [context]",
		Short: "Rate the difficulty of words as used in a passage",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(words) == 0 {
				return fmt.Errorf("--words is required")
			}
			return runEnrich(cmd, g, args, func(ctx context.Context, c *coordinator.Coordinator, passage string) error {
				items, err := c.AnalyzeVocabulary(ctx, words, passage)
				if err != nil {
					return err
				}
				return printVocabulary(cmd.OutOrStdout(), items)
			})
		},
	}

	cmd.Flags().StringSliceVar(&words, "words", nil, "comma-separated words to analyze")
	return cmd
}

func printVocabulary(out io.Writer, items []models.VocabularyAnalysis) error {
	if len(items) == 0 {
		fmt.Fprintln(out, "No words to report.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WORD\tDIFFICULTY\tTECHNICAL\tDEFINITION")
	for _, it := range items {
		technical := "-"
		if it.IsTechnicalTerm {
			technical = "yes"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", it.Word, it.Difficulty, technical, it.Definition)
	}
	return w.Flush()
}
