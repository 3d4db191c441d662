package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kingrea/kudos/internal/app"
)

type rootFlags struct {
	dir      string
	settings string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	book := newBookCmd(flags)
	root := &cobra.Command{
		Use:   "kudos",
		Short: "Book supervision slots and submit work to KuDoS",
		Long: `kudos lists the supervision groups you can still book, sets up a
working folder for the slot you pick, and compiles and uploads the
document in that folder when you come back to it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          book.RunE,
	}
	root.PersistentFlags().StringVar(&flags.dir, "dir", "", "project directory (default: current directory)")
	root.PersistentFlags().StringVar(&flags.settings, "config", "", "settings file (default: .kudos/config.yaml)")

	root.AddCommand(
		book,
		newReviewCmd(flags),
		newSubmitCmd(flags),
		newLoginCmd(flags),
		newHistoryCmd(flags),
		newConfigCmd(flags),
	)
	return root
}

// withApp loads the app for the command, optionally authenticates, and
// runs fn.
func withApp(cmd *cobra.Command, flags *rootFlags, authenticate bool, fn func(ctx context.Context, a *app.App) error) error {
	projectDir, err := resolveProjectDir(flags.dir)
	if err != nil {
		return err
	}
	a, err := app.New(projectDir, flags.settings, app.WithOutput(cmd.OutOrStdout()))
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if authenticate {
		if err := a.Authenticate(ctx); err != nil {
			return err
		}
	}
	return fn(ctx, a)
}

func newBookCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "book",
		Short: "Pick a slot and set up or submit its working folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, true, func(ctx context.Context, a *app.App) error {
				return a.Book(ctx)
			})
		},
	}
}

func newReviewCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "review",
		Short: "Open one of your recently marked submissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, true, func(ctx context.Context, a *app.App) error {
				return a.Review(ctx)
			})
		},
	}
}

func newSubmitCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <dir>",
		Short: "Compile and upload an existing slot folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, true, func(ctx context.Context, a *app.App) error {
				return a.Submit(ctx, args[0])
			})
		},
	}
}

func newLoginCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in through Raven and replace the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, false, func(ctx context.Context, a *app.App) error {
				return a.Login(ctx)
			})
		},
	}
}

func newHistoryCmd(flags *rootFlags) *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show what happened to your slot folders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, false, func(ctx context.Context, a *app.App) error {
				a.History(lines)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "number of entries to show")
	return cmd
}

func newConfigCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, false, func(ctx context.Context, a *app.App) error {
				return a.PrintConfig()
			})
		},
	}
}
