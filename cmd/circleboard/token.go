package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ethpandaops/circleboard/pkg/service"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the stored CircleCI API token",
}

var tokenSetCmd = &cobra.Command{
	Use:   "set [token]",
	Short: "Store the CircleCI API token (read from stdin when omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: withService(func(ctx context.Context, svc service.Service, args []string) error {
		var token string

		if len(args) == 1 {
			token = args[0]
		} else {
			fmt.Print("CircleCI token: ")

			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading token: %w", err)
			}

			token = strings.TrimSpace(line)
		}

		if err := svc.SetToken(ctx, token); err != nil {
			return err
		}

		log.Info("Token stored")

		return nil
	}),
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenSetCmd)
}
