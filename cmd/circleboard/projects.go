package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/ethpandaops/circleboard/pkg/project"
	"github.com/ethpandaops/circleboard/pkg/service"
	"github.com/spf13/cobra"
)

var trackBranch string

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage tracked projects",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked projects in display order",
	Args:  cobra.NoArgs,
	RunE: withService(func(ctx context.Context, svc service.Service, _ []string) error {
		projects, err := svc.ListProjects(ctx)
		if err != nil {
			return err
		}

		printProjects(projects)

		return nil
	}),
}

var projectsDiscoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Track every followed CircleCI project that is not tracked yet",
	Args:  cobra.NoArgs,
	RunE: withService(func(ctx context.Context, svc service.Service, _ []string) error {
		added, err := svc.DiscoverProjects(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("%d project(s) added (disabled)\n", len(added))
		printProjects(added)

		return nil
	}),
}

var projectsTrackCmd = &cobra.Command{
	Use:   "track vcs/username/reponame",
	Short: "Track a project",
	Args:  cobra.ExactArgs(1),
	RunE: withProject(func(ctx context.Context, svc service.Service, id project.Identity) error {
		_, err := svc.TrackProject(ctx, id, trackBranch)

		return err
	}),
}

var projectsEnableCmd = &cobra.Command{
	Use:   "enable vcs/username/reponame",
	Short: "Enable synchronization of a project",
	Args:  cobra.ExactArgs(1),
	RunE: withProject(func(ctx context.Context, svc service.Service, id project.Identity) error {
		return svc.EnableProject(ctx, id)
	}),
}

var projectsDisableCmd = &cobra.Command{
	Use:   "disable vcs/username/reponame",
	Short: "Disable synchronization of a project",
	Args:  cobra.ExactArgs(1),
	RunE: withProject(func(ctx context.Context, svc service.Service, id project.Identity) error {
		return svc.DisableProject(ctx, id)
	}),
}

var projectsExcludeCmd = &cobra.Command{
	Use:   "exclude vcs/username/reponame",
	Short: "Exclude a project from the dashboard",
	Args:  cobra.ExactArgs(1),
	RunE: withProject(func(ctx context.Context, svc service.Service, id project.Identity) error {
		return svc.ExcludeProject(ctx, id)
	}),
}

func init() {
	rootCmd.AddCommand(projectsCmd)

	projectsTrackCmd.Flags().StringVar(&trackBranch, "branch", "",
		"branch to synchronize (empty for all branches)")

	projectsCmd.AddCommand(
		projectsListCmd,
		projectsDiscoverCmd,
		projectsTrackCmd,
		projectsEnableCmd,
		projectsDisableCmd,
		projectsExcludeCmd,
	)
}

// withService runs fn against a fully wired service.
func withService(
	fn func(ctx context.Context, svc service.Service, args []string) error,
) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		rt, err := newRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.close()

		return fn(ctx, rt.svc, args)
	}
}

// withProject parses the project argument before running fn.
func withProject(
	fn func(ctx context.Context, svc service.Service, id project.Identity) error,
) func(cmd *cobra.Command, args []string) error {
	return withService(func(ctx context.Context, svc service.Service, args []string) error {
		id, err := project.ParseIdentity(args[0])
		if err != nil {
			return err
		}

		if err := fn(ctx, svc, id); err != nil {
			return err
		}

		log.WithField("project", id.String()).Info("Project updated")

		return nil
	})
}

func printProjects(projects []project.TrackedProject) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROJECT\tBRANCH\tENABLED\tEXCLUDED")

	for _, p := range projects {
		branch := p.DefaultBranch
		if branch == "" {
			branch = "-"
		}

		fmt.Fprintf(tw, "%s\t%s\t%t\t%t\n", p.Identity, branch, p.Enabled, p.Excluded)
	}

	_ = tw.Flush()
}
