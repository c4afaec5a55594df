package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ledgerloom/ledgerloom/internal/cli"
	"github.com/ledgerloom/ledgerloom/internal/normalize"
	"github.com/ledgerloom/ledgerloom/internal/rule"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect the active ruleset",
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesCheckCmd())

	return cmd
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the rules in priority order",
		RunE: func(_ *cobra.Command, _ []string) error {
			set, err := loadRuleset()
			if err != nil {
				return err
			}
			matcher, err := rule.NewMatcher(set)
			if err != nil {
				return err
			}

			fmt.Println(cli.FormatTitle(fmt.Sprintf("Ruleset %s (%d rules)", matcher.Version(), len(set.Rules))))
			header := fmt.Sprintf("%-4s %-24s %-32s %-20s %s", "PRI", "NAME", "PATTERN", "ACCOUNT", "CONF")
			fmt.Println(cli.TableHeaderStyle.Render(header))
			for _, r := range set.Rules {
				pattern := r.Pattern
				if r.IsRegex {
					pattern = "/" + pattern + "/"
				}
				fmt.Printf("%-4d %-24s %-32s %-20s %.2f\n", r.Priority, r.Name, pattern, r.Account, r.Confidence)
			}
			return nil
		},
	}
}

func rulesCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <description>",
		Short: "Show which rule a description would match",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			raw := strings.Join(args, " ")
			normalized := normalize.Vendor(raw)

			set, err := loadRuleset()
			if err != nil {
				return err
			}
			matcher, err := rule.NewMatcher(set)
			if err != nil {
				return err
			}

			opinion, conflict := matcher.Match(normalized, raw)
			fmt.Printf("Normalized vendor: %s\n", cli.BoldStyle.Render(normalized))
			if opinion == nil {
				fmt.Println(cli.FormatInfo("No rule matches"))
				return nil
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Matched: %s → %s (%.2f)",
				opinion.Rationale, opinion.ProposedAccount, opinion.RawConfidence)))
			if conflict {
				fmt.Println(cli.FormatWarning("Rule conflict: another rule claims this vendor with a different account"))
			}
			return nil
		},
	}
}
