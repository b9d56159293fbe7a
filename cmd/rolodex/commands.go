package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Napageneral/rolodex/internal/accounts"
	"github.com/Napageneral/rolodex/internal/bus"
	"github.com/Napageneral/rolodex/internal/contacts"
	"github.com/Napageneral/rolodex/internal/engine"
	"github.com/Napageneral/rolodex/internal/importer"
	"github.com/Napageneral/rolodex/internal/live"
)

func newImportCmd() *cobra.Command {
	var googleAccount string
	cmd := &cobra.Command{
		Use:   "import [FILE]",
		Short: "Import contacts, groups and calls from a YAML file or Google Contacts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 1) == (googleAccount != "") {
				return fmt.Errorf("give either FILE or --google ACCOUNT")
			}

			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.close()

			ctx, cancel := signalContext()
			defer cancel()

			var res importer.Result
			if googleAccount != "" {
				src, err := importer.NewGoogleSource(googleAccount)
				if err != nil {
					return err
				}
				src.Logf = env.log.Warnf
				res, err = src.Pull(ctx, env.engine.Store)
			} else {
				res, err = importer.ImportFile(ctx, env.engine.Store, args[0])
			}
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}
			if jsonOutput {
				printJSON(res)
				return nil
			}
			green := color.New(color.FgGreen).SprintFunc()
			fmt.Printf("%s Imported %d contacts, %d raw records, %d fields, %d groups, %d stream items, %d calls in %s\n",
				green("✓"), res.Contacts, res.RawRecords, res.Fields, res.Groups, res.StreamItems, res.Calls,
				res.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVar(&googleAccount, "google", "", "Pull Google Contacts of this account through gogcli")
	return cmd
}

func newShowCmd() *cobra.Command {
	var noEnrich bool
	cmd := &cobra.Command{
		Use:   "show CONTACT",
		Short: "Show a contact by lookup key or id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.close()

			ctx, cancel := signalContext()
			defer cancel()

			opts := contacts.All()
			if noEnrich {
				opts = contacts.EnrichOptions{}
			}
			c, err := env.engine.Show(ctx, args[0], opts)
			if err != nil {
				return fmt.Errorf("failed to load contact: %w", err)
			}
			switch c.State {
			case contacts.StateNotFound:
				return fmt.Errorf("contact %q not found", args[0])
			case contacts.StateError:
				return fmt.Errorf("failed to load contact %q: %w", args[0], c.Err)
			}
			if jsonOutput {
				printJSON(c)
				return nil
			}
			printContact(c)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noEnrich, "no-enrich", false, "Skip groups, stream items and derived fields")
	return cmd
}

func printContact(c contacts.Contact) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("%s %s\n", cyan(c.DisplayName), gray(fmt.Sprintf("(id %d, %s)", c.ContactID, c.LookupKey)))
	for _, r := range c.RawRecords {
		fmt.Printf("\n  %s %s\n", r.DisplayName, gray(fmt.Sprintf("[%d %s:%s]", r.ID, r.AccountName, r.AccountType)))
		for _, f := range r.Fields {
			text := f.Value.Text
			if formatted, ok := c.FormattedPhones[f.ID]; ok {
				text = formatted
			}
			line := fmt.Sprintf("    %-16s %s", f.Value.Kind, text)
			if st, ok := c.Statuses[f.ID]; ok && st.Status != "" {
				line += gray(" (" + st.Status + ")")
			}
			fmt.Println(line)
		}
	}
	if len(c.Groups) > 0 {
		var titles []string
		for _, g := range c.Groups {
			titles = append(titles, g.Title)
		}
		fmt.Printf("\n  Groups: %s\n", strings.Join(titles, ", "))
	}
	if len(c.StreamItems) > 0 {
		fmt.Println("\n  Stream:")
		for _, it := range c.StreamItems {
			fmt.Printf("    %s %s\n", gray(it.Timestamp.Format("2006-01-02 15:04")), it.Text)
		}
	}
	if len(c.InvitableAccounts) > 0 {
		fmt.Printf("\n  Invitable: %s\n", strings.Join(c.InvitableAccounts, ", "))
	}
}

func newDupesCmd() *cobra.Command {
	var accountFlags []string
	cmd := &cobra.Command{
		Use:   "dupes",
		Short: "Find duplicate raw records within accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			var refs []accounts.Ref
			for _, a := range accountFlags {
				ref, err := accounts.ParseRef(a)
				if err != nil {
					return fmt.Errorf("invalid --account %q: %w", a, err)
				}
				refs = append(refs, ref)
			}

			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.close()

			ctx, cancel := signalContext()
			defer cancel()

			res, err := env.engine.FindDuplicates(ctx, refs)
			if err != nil {
				return fmt.Errorf("duplicate scan failed: %w", err)
			}
			if jsonOutput {
				printJSON(res)
				return nil
			}

			cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
			gray := color.New(color.FgHiBlack).SprintFunc()
			yellow := color.New(color.FgYellow).SprintFunc()
			for _, g := range res.Groups {
				fmt.Printf("%s %s\n", cyan(g.Members[0].DisplayName), gray(g.AccountName+":"+g.AccountType))
				for _, m := range g.Members {
					fmt.Printf("  %6d  %s  %s\n", m.RawRecordID, strings.Join(m.Phones, ", "), strings.Join(m.Emails, ", "))
				}
			}
			fmt.Printf("\n%d groups across %d accounts", len(res.Groups), res.AccountsScanned)
			if res.BucketsSkipped > 0 {
				fmt.Printf(", %s", yellow(fmt.Sprintf("%d skipped over capacity", res.BucketsSkipped)))
			}
			if res.Cancelled {
				fmt.Printf(" %s", yellow("(cancelled)"))
			}
			fmt.Println()
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&accountFlags, "account", nil, "Account to scan as name:type (repeatable, default all)")
	return cmd
}

func newMergeCmd() *cobra.Command {
	var apply, deleteDonors bool
	cmd := &cobra.Command{
		Use:   "merge TARGET DONOR...",
		Short: "Copy the unique facts of donor raw records onto a target",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, a := range args {
				id, err := strconv.ParseInt(a, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid raw record id %q", a)
				}
				ids = append(ids, id)
			}

			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.close()

			ctx, cancel := signalContext()
			defer cancel()

			plan, err := env.engine.Merge(ctx, ids[0], ids[1:], engine.MergeOptions{Apply: apply, DeleteDonors: deleteDonors})
			if err != nil {
				return fmt.Errorf("merge failed: %w", err)
			}
			if jsonOutput {
				printJSON(map[string]any{"applied": apply, "plan": plan})
				return nil
			}

			green := color.New(color.FgGreen).SprintFunc()
			yellow := color.New(color.FgYellow).SprintFunc()
			for _, op := range plan.Ops {
				fmt.Printf("  + %-16s %s\n", op.Value.Kind, op.Value.Text)
			}
			for _, d := range plan.SkippedDonors {
				fmt.Printf("  %s donor %d could not be read\n", yellow("!"), d)
			}
			switch {
			case apply:
				fmt.Printf("%s Applied %d inserts to %d\n", green("✓"), len(plan.Ops), plan.Target)
			case plan.Empty():
				fmt.Println("Nothing to merge")
			default:
				fmt.Printf("%d inserts planned; rerun with --apply to write them\n", len(plan.Ops))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "Write the plan")
	cmd.Flags().BoolVar(&deleteDonors, "delete-donors", false, "Mark donors deleted in the same transaction")
	return cmd
}

func newCallLogCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "calllog",
		Short: "Show the call log with repeated calls collapsed",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.close()

			ctx, cancel := signalContext()
			defer cancel()

			entries, err := env.engine.CallLog(ctx, limit)
			if err != nil {
				return fmt.Errorf("failed to read call log: %w", err)
			}
			if jsonOutput {
				printJSON(entries)
				return nil
			}
			gray := color.New(color.FgHiBlack).SprintFunc()
			for _, e := range entries {
				count := ""
				if e.Count > 1 {
					count = fmt.Sprintf(" (%d)", e.Count)
				}
				fmt.Printf("  %-10s %s%s\n", e.Type, e.Number, gray(count))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Number of calls to read (0 for all)")
	return cmd
}

func newEventsCmd() *cobra.Command {
	var after int64
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List engine events",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.close()

			events, err := bus.List(env.engine.Store.DB(), after, limit)
			if err != nil {
				return fmt.Errorf("failed to list events: %w", err)
			}
			if jsonOutput {
				printJSON(events)
				return nil
			}
			gray := color.New(color.FgHiBlack).SprintFunc()
			for _, e := range events {
				ts := time.Unix(e.CreatedAt, 0).Format("2006-01-02 15:04:05")
				payload := ""
				if e.Payload != nil {
					payload = *e.Payload
				}
				fmt.Printf("%5d %s %-14s %s\n", e.Seq, gray(ts), e.Type, payload)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&after, "after", 0, "Only events after this sequence number")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum events to list")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var status bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rescan for duplicates whenever the record store changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.close()

			if status {
				statuses := live.GetStatuses(env.engine.Store.DB())
				if jsonOutput {
					printJSON(statuses)
					return nil
				}
				for _, s := range statuses {
					fmt.Printf("%-10s %-8s restarts=%d %s\n", s.Watcher, s.Status, s.Restarts, s.LastError)
				}
				return nil
			}

			ctx, cancel := signalContext()
			defer cancel()

			m := live.NewManager(env.engine, env.cfg)
			m.Logf = env.log.Infof
			if err := m.Run(ctx); err != nil {
				return fmt.Errorf("watch failed: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "Print watcher status and exit")
	return cmd
}
