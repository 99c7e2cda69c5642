package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/brunobiangulo/aiworkflows"
	"github.com/spf13/cobra"
)

func newMarkdownCmd(g *globalFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "markdown <file>",
		Short: "Convert a document to Markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, err := g.converter()
			if err != nil {
				return err
			}
			defer conv.Close()

			res, err := conv.ConvertToMarkdown(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := writeOutput(cmd, output, res.Markdown+"\n"); err != nil {
				return err
			}
			formatMarkdownSummary(cmd.ErrOrStderr(), args[0], res)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write Markdown to this file instead of stdout")
	return cmd
}

func newJSONCmd(g *globalFlags) *cobra.Command {
	var (
		spec          specFlags
		markdownFirst bool
		merged        bool
	)
	cmd := &cobra.Command{
		Use:   "json <file>",
		Short: "Extract JSON from a document",
		Long: `Extract JSON from a document. Small page-oriented documents are sent to the
model page by page; larger ones are converted to Markdown first. Use
--markdown-first to force either path.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			js, opts, err := spec.resolve()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("markdown-first") {
				opts = append(opts, aiworkflows.WithMarkdownFirst(markdownFirst))
			}
			conv, err := g.converter()
			if err != nil {
				return err
			}
			defer conv.Close()

			res, err := conv.ConvertToJSON(cmd.Context(), args[0], js, opts...)
			if err != nil {
				return err
			}
			if err := printJSONResult(cmd, res, merged); err != nil {
				return err
			}
			formatJSONSummary(cmd.ErrOrStderr(), args[0], res)
			return nil
		},
	}
	spec.bind(cmd)
	cmd.Flags().BoolVar(&markdownFirst, "markdown-first", false, "Convert to Markdown before extracting (default: decided per document)")
	cmd.Flags().BoolVar(&merged, "merged", false, "Print only the merged object")
	return cmd
}

func newMarkdownJSONCmd(g *globalFlags) *cobra.Command {
	var (
		spec      specFlags
		maxTokens int
		merged    bool
	)
	cmd := &cobra.Command{
		Use:   "md2json <file|->",
		Short: "Extract JSON from Markdown, chunking it to fit the model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			js, opts, err := spec.resolve()
			if err != nil {
				return err
			}
			md, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			conv, err := g.converter()
			if err != nil {
				return err
			}
			defer conv.Close()

			res, err := conv.MarkdownToJSON(cmd.Context(), md, js, maxTokens, opts...)
			if err != nil {
				return err
			}
			if err := printJSONResult(cmd, res, merged); err != nil {
				return err
			}
			formatJSONSummary(cmd.ErrOrStderr(), args[0], res)
			return nil
		},
	}
	spec.bind(cmd)
	cmd.Flags().IntVar(&maxTokens, "max-chunk-tokens", 0, "Maximum tokens per chunk (0 uses the configured budget)")
	cmd.Flags().BoolVar(&merged, "merged", false, "Print only the merged object")
	return cmd
}

func newPromptCmd(g *globalFlags) *cobra.Command {
	var validation, schema string
	cmd := &cobra.Command{
		Use:   "prompt <prompt|@file>",
		Short: "Send one prompt and print the JSON object the model answers with",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readArg(args[0])
			if err != nil {
				return err
			}
			if validation, err = readArg(validation); err != nil {
				return err
			}
			var opts []aiworkflows.JSONOption
			if schema != "" {
				s, err := readArg(schema)
				if err != nil {
					return err
				}
				opts = append(opts, aiworkflows.WithSchema(s))
			}
			conv, err := g.converter()
			if err != nil {
				return err
			}
			defer conv.Close()

			resp, err := conv.GetJSONResponse(cmd.Context(), prompt, validation, opts...)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, resp.Object); err != nil {
				return err
			}
			formatPromptSummary(cmd.ErrOrStderr(), resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&validation, "validation", "", "Expected output format, added to the prompt (text or @file)")
	cmd.Flags().StringVar(&schema, "schema", "", "JSON Schema the answer must satisfy (text or @file)")
	return cmd
}

func newStrategyCmd(g *globalFlags) *cobra.Command {
	var (
		target        string
		markdownFirst bool
		asJSON        bool
	)
	cmd := &cobra.Command{
		Use:     "strategy <file>",
		Aliases: []string{"plan"},
		Short:   "Show the conversion strategy for a document without converting it",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []aiworkflows.JSONOption
			if cmd.Flags().Changed("markdown-first") {
				opts = append(opts, aiworkflows.WithMarkdownFirst(markdownFirst))
			}
			conv, err := g.converter()
			if err != nil {
				return err
			}
			defer conv.Close()

			plan, err := conv.Plan(cmd.Context(), args[0], aiworkflows.Target(target), opts...)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, plan)
			}
			formatPlan(cmd.OutOrStdout(), plan)
			return nil
		},
	}
	cmd.Flags().StringVarP(&target, "target", "t", string(aiworkflows.TargetMarkdown), "Conversion target (markdown, json)")
	cmd.Flags().BoolVar(&markdownFirst, "markdown-first", false, "Plan a Markdown-first JSON conversion")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the plan as JSON")
	return cmd
}

func newTokensCmd() *cobra.Command {
	var maxTokens int
	cmd := &cobra.Command{
		Use:   "tokens <file|->",
		Short: "Estimate token count, optionally truncating to a budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			if maxTokens > 0 {
				_, err := fmt.Fprint(cmd.OutOrStdout(), aiworkflows.EnforceMaxTokens(text, maxTokens))
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), aiworkflows.CountTokens(text))
			return err
		},
	}
	cmd.Flags().IntVar(&maxTokens, "max", 0, "Truncate the text to this many tokens and print it")
	return cmd
}

func printJSONResult(cmd *cobra.Command, res *aiworkflows.JSONResult, merged bool) error {
	if merged {
		return printJSON(cmd, res.Merge())
	}
	return printJSON(cmd, res)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeOutput(cmd *cobra.Command, path, content string) error {
	if path == "" {
		_, err := fmt.Fprint(cmd.OutOrStdout(), content)
		return err
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
