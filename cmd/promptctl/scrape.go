package main

import (
	"fmt"
	"io"
	"os"

	"github.com/HsiangNianian/promptrelay/internal/scrape"
	"github.com/spf13/cobra"
)

func scrapeCmd(a *app) *cobra.Command {
	var key, file string
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Extract a field from JSON-line output (stdin or --file)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var r io.Reader = cmd.InOrStdin()
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			data, err := io.ReadAll(r)
			if err != nil {
				return err
			}
			v, err := scrape.Field(string(data), key)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.stdout, v)
			return err
		},
	}
	cmd.Flags().StringVarP(&key, "key", "k", "response", "Field to extract")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read from file instead of stdin")
	return cmd
}
