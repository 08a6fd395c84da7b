package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/HsiangNianian/promptrelay/internal/host"
	"github.com/HsiangNianian/promptrelay/internal/protocol"
	"github.com/HsiangNianian/promptrelay/internal/tabs"
	"github.com/spf13/cobra"
)

func tabsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tabs",
		Short: "Inspect and focus browser tabs",
	}

	var all bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the tabs the extension can see",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m := a.tabManager()
			list, err := m.List(cmd.Context())
			if err != nil {
				return err
			}
			if !all {
				list = m.Filter(list)
			}
			return writeTabs(a.stdout, list)
		},
	}
	listCmd.Flags().BoolVar(&all, "all", false, "Show every tab, not only chat pages")

	focusCmd := &cobra.Command{
		Use:   "focus",
		Short: "Bring the chat tab to the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ok, reason, err := a.client.FocusTab(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", tabs.ErrFocusRejected, reason)
			}
			_, err = fmt.Fprintln(a.stdout, "focused")
			return err
		},
	}

	ensureCmd := &cobra.Command{
		Use:   "ensure",
		Short: "Open the chat page if needed and focus it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tab, err := a.tabManager().EnsureFocused(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.stdout, "focused tab %d: %s\n", tab.ID, tab.URL)
			return err
		},
	}

	cmd.AddCommand(listCmd, focusCmd, ensureCmd)
	return cmd
}

func (a *app) tabManager() *tabs.Manager {
	m := tabs.NewManager(a.client, host.New(a.cfg.Tabs), a.cfg.Tabs)
	m.SetLogger(a.logger)
	return m
}

func writeTabs(w io.Writer, list []protocol.Tab) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tACTIVE\tTITLE\tURL")
	for _, t := range list {
		active := ""
		if t.Active {
			active = "*"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", t.ID, active, t.Title, t.URL)
	}
	return tw.Flush()
}
