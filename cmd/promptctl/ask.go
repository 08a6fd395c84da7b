package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/HsiangNianian/promptrelay/internal/client"
	"github.com/HsiangNianian/promptrelay/internal/protocol"
	"github.com/spf13/cobra"
)

func askCmd(a *app) *cobra.Command {
	var (
		prompt       string
		outputFormat string
		timeout      time.Duration
		retries      int
		ensureTab    bool
	)
	cmd := &cobra.Command{
		Use:   "ask [prompt...]",
		Short: "Send a prompt and print the reply",
		Example: `  promptctl ask "What is the capital of France?"
  promptctl ask --prompt "Summarize this" --output-format raw`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt == "" {
				prompt = strings.Join(args, " ")
			}
			if strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("a prompt is required")
			}
			switch outputFormat {
			case "json", "html", "raw":
			default:
				return fmt.Errorf("unknown output format %q (want json, html or raw)", outputFormat)
			}

			ctx := cmd.Context()
			if ensureTab {
				if _, err := a.tabManager().EnsureFocused(ctx); err != nil {
					return err
				}
			}

			r := a.retry()
			if retries > 0 {
				r.MaxAttempts = retries
			}

			var res *client.Result
			err := r.Do(ctx, func(attempt int) error {
				a.logger.Printf("ask attempt %d", attempt)
				var err error
				res, err = withProgress(ctx, a.stderr, a.client, "Waiting for reply", func() (*client.Result, error) {
					return a.client.Submit(ctx, client.Request{
						Kind:         protocol.KindInject,
						Message:      prompt,
						OutputFormat: outputFormat,
					}, timeout)
				})
				return err
			})
			if err != nil {
				return err
			}
			return writeAnswer(a.stdout, outputFormat, prompt, res.Response, time.Now())
		},
	}
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Prompt text (default: positional arguments)")
	cmd.Flags().StringVarP(&outputFormat, "output-format", "o", "json", "Output format: json, html or raw")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Client deadline (default from config)")
	cmd.Flags().IntVar(&retries, "retries", 0, "Max attempts for transient failures (default from config)")
	cmd.Flags().BoolVar(&ensureTab, "ensure-tab", false, "Make sure a chat tab is open and focused first")
	return cmd
}

// answer is the json output of ask.
type answer struct {
	Provider  string `json:"provider"`
	Method    string `json:"method"`
	Timestamp string `json:"timestamp"`
	Prompt    string `json:"prompt"`
	Response  string `json:"response"`
	HTML      string `json:"html"`
}

func writeAnswer(w io.Writer, format, prompt string, r *protocol.Response, now time.Time) error {
	switch format {
	case "html":
		out := r.HTML
		if strings.HasPrefix(strings.TrimSpace(r.Response), "<") {
			out = r.Response
		}
		_, err := fmt.Fprintln(w, out)
		return err
	case "raw":
		_, err := fmt.Fprintln(w, r.Response)
		return err
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(answer{
			Provider:  "chatgpt",
			Method:    "extension",
			Timestamp: now.UTC().Format(time.RFC3339),
			Prompt:    prompt,
			Response:  r.Response,
			HTML:      r.HTML,
		})
	}
}
