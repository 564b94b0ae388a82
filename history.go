package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"findit/session"
)

func historyCmd() *cobra.Command {
	var clearHistory bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show or clear the saved tab history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if clearHistory {
				if err := session.Clear(cfg.Session.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
					return err
				}
				fmt.Fprintln(out, "history cleared")
				return nil
			}

			snap, err := session.Load(cfg.Session.Path)
			if errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintln(out, "no saved history")
				return nil
			}
			if err != nil {
				return err
			}

			h := session.New()
			h.Restore(*snap)
			cur, _ := h.Current()
			for i, e := range h.Entries() {
				mark := " "
				if e.ID == cur.ID {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %2d %s\n", mark, i, e.URL)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&clearHistory, "clear", false, "delete the saved history")

	return cmd
}
