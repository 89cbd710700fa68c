package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dgnsrekt/speakstream/internal/cache"
)

var (
	phonemizeCmd = &cobra.Command{
		Use:   "phonemize [TEXT|FILE|-]",
		Short: "Print the phonemes for text",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := inspectInput(cmd, args)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			fmt.Fprintln(cmd.OutOrStdout(), a.synth.Phonemize(text))
			return nil
		},
	}

	tokenizeCmd = &cobra.Command{
		Use:   "tokenize [TEXT|FILE|-]",
		Short: "Print the model tokens for text",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := inspectInput(cmd, args)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			res := a.synth.Tokenize(text)
			ids := make([]string, len(res.Tokens))
			for i, t := range res.Tokens {
				ids[i] = fmt.Sprint(t)
			}

			w := cmd.OutOrStdout()
			field(w, "Phonemes", res.Phonemes)
			field(w, "Tokens", strings.Join(ids, " "))
			field(w, "Count", len(res.Tokens))
			if len(res.Dropped) > 0 {
				field(w, "Dropped", string(res.Dropped))
			}
			if res.Truncated {
				field(w, "Truncated", "yes")
			}
			return nil
		},
	}

	voicesCmd = &cobra.Command{
		Use:   "voices",
		Short: "List available voices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			ids, err := a.voices.List()
			if err != nil {
				return fmt.Errorf("unable to list voices in %s: %w", cfg.Voices.Dir, err)
			}
			w := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(w, dimStyle.Render("no voices in "+cfg.Voices.Dir))
				return nil
			}
			for _, id := range ids {
				if id == cfg.Voices.Default {
					fmt.Fprintln(w, chunkStyle.Render(id+" (default)"))
					continue
				}
				fmt.Fprintln(w, id)
			}
			return nil
		},
	}

	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Show clip cache usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := cache.NewManager(cfg.ToCacheConfig())
			if err != nil {
				return err
			}
			defer m.Close() //nolint:errcheck

			if wipe, _ := cmd.Flags().GetBool("clear"); wipe {
				if err := m.Clear(); err != nil {
					return fmt.Errorf("unable to clear cache: %w", err)
				}
			}
			if prune, _ := cmd.Flags().GetBool("prune"); prune {
				field(cmd.OutOrStdout(), "Expired", m.Cleanup())
			}

			s := m.Detailed()
			w := cmd.OutOrStdout()
			field(w, "Directory", cfg.Cache.Dir)
			field(w, "Clips", s.Disk.Items)
			field(w, "Size", fmt.Sprintf("%s of %s", formatBytes(s.Disk.Size), formatBytes(s.Disk.Capacity)))
			field(w, "Evictions", s.Disk.Evictions)
			return nil
		},
	}
)

func init() {
	phonemizeCmd.Flags().BoolP("markdown", "m", false, "treat input as markdown")
	tokenizeCmd.Flags().BoolP("markdown", "m", false, "treat input as markdown")
	cacheCmd.Flags().Bool("clear", false, "remove every cached clip")
	cacheCmd.Flags().Bool("prune", false, "remove clips older than cache.ttl")
}

// inspectInput reads text the same way speak does, without markdown
// handling unless --markdown is given.
func inspectInput(cmd *cobra.Command, args []string) (string, error) {
	in, err := readInput(args, cmd.InOrStdin(), term.IsTerminal(int(os.Stdin.Fd())))
	if err != nil {
		return "", err
	}
	md, _ := cmd.Flags().GetBool("markdown")
	return prose(in, md, markdownOptions()), nil
}
