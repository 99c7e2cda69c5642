package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/brunobiangulo/aiworkflows"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	verbose    bool
	cache      bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "aiworkflows",
		Short: "Convert documents to Markdown and JSON",
		Long: `aiworkflows converts PDF, office, HTML, CSV and text documents to Markdown,
and extracts JSON from them with an LLM. The conversion strategy is chosen per
document from its format, size and visual content.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(cmd.ErrOrStderr(), g.verbose)
		},
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", os.Getenv("AIWORKFLOWS_CONFIG"), "Path to config file (YAML or JSON)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Log debug output to stderr")
	root.PersistentFlags().BoolVar(&g.cache, "cache", false, "Cache conversions in the local SQLite database")

	root.AddCommand(
		newMarkdownCmd(g),
		newJSONCmd(g),
		newMarkdownJSONCmd(g),
		newPromptCmd(g),
		newStrategyCmd(g),
		newTokensCmd(),
		newCacheCmd(g),
	)
	return root
}

func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func (g *globalFlags) config() (aiworkflows.Config, error) {
	cfg, err := aiworkflows.LoadConfig(g.configPath)
	if err != nil {
		return cfg, err
	}
	if g.cache {
		cfg.Cache = true
	}
	return cfg, nil
}

func (g *globalFlags) converter() (aiworkflows.Converter, error) {
	cfg, err := g.config()
	if err != nil {
		return nil, err
	}
	return aiworkflows.New(cfg)
}

// specFlags are the natural-language extraction instructions shared by the
// JSON commands. Each may be given inline or as @file.
type specFlags struct {
	context    string
	job        string
	outputSpec string
	schema     string
}

func (s *specFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.context, "context", "", "What the document is (text or @file)")
	cmd.Flags().StringVar(&s.job, "job", "", "What to extract (text or @file)")
	cmd.Flags().StringVar(&s.outputSpec, "output-spec", "", "Shape of the JSON to return (text or @file)")
	cmd.Flags().StringVar(&s.schema, "schema", "", "JSON Schema every object must satisfy (text or @file)")
}

func (s *specFlags) resolve() (aiworkflows.JSONSpec, []aiworkflows.JSONOption, error) {
	var spec aiworkflows.JSONSpec
	var err error
	if spec.Context, err = readArg(s.context); err != nil {
		return spec, nil, err
	}
	if spec.Job, err = readArg(s.job); err != nil {
		return spec, nil, err
	}
	if spec.OutputSpec, err = readArg(s.outputSpec); err != nil {
		return spec, nil, err
	}
	schema, err := readArg(s.schema)
	if err != nil {
		return spec, nil, err
	}
	var opts []aiworkflows.JSONOption
	if schema != "" {
		opts = append(opts, aiworkflows.WithSchema(schema))
	}
	return spec, opts, nil
}

// readArg returns v, or the contents of the file when v is @path.
func readArg(v string) (string, error) {
	path, ok := strings.CutPrefix(v, "@")
	if !ok {
		return v, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

// readInput reads a file argument, or stdin for "-".
func readInput(cmd *cobra.Command, arg string) (string, error) {
	if arg == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		return string(data), err
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
