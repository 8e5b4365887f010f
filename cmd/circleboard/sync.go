package main

import (
	"context"
	"fmt"

	"github.com/ethpandaops/circleboard/pkg/project"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync [vcs/username/reponame]",
	Short: "Synchronize one project, or every enabled project",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	if len(args) == 0 {
		summary, err := rt.svc.SyncEnabled(ctx)
		if err != nil {
			return fmt.Errorf("synchronizing projects: %w", err)
		}

		log.WithFields(logrus.Fields{
			"synced": summary.Synced,
			"failed": summary.Failed,
		}).Info("Sync finished")

		if summary.Failed > 0 {
			return fmt.Errorf("%d project(s) failed to synchronize", summary.Failed)
		}

		return nil
	}

	id, err := project.ParseIdentity(args[0])
	if err != nil {
		return err
	}

	data, err := rt.svc.SyncProject(ctx, id)
	if err != nil {
		return fmt.Errorf("synchronizing %s: %w", id, err)
	}

	fmt.Printf("%s synced: %d workflow(s), pipeline hash %s\n",
		id, len(data.Workflows), data.PipelineHash)

	return nil
}
