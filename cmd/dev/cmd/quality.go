package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

func TestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run tests",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := test.Test()
			if err != nil {
				return fmt.Errorf("failed to run tests: %w", err)
			}
			return nil
		},
	}
	return cmd
}

func LintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Run linting",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := test.Lint()
			if err != nil {
				return fmt.Errorf("failed to run linting: %w", err)
			}
			return nil
		},
	}
	return cmd
}

func IntegrationTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "integration-test",
		Short: "Run integration testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := test.Integ()
			if err != nil {
				return fmt.Errorf("failed to run integration testing: %w", err)
			}
			return nil
		},
	}
	return cmd
}

// SelftestCmd runs the cli loopback selftest. Without --adapter it runs
// against the simulated chip and needs no hardware.
func SelftestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Run the loopback selftest through the cli",
		RunE: func(cmd *cobra.Command, args []string) error {
			adapter, err := cmd.Flags().GetString("adapter")
			if err != nil {
				return fmt.Errorf("could not get adapter flag: %w", err)
			}
			runArgs := []string{"run", "./cmd/ethspi", "--adapter", adapter, "selftest"}
			if external, _ := cmd.Flags().GetBool("external"); external {
				runArgs = append(runArgs, "--external")
			}
			slog.Info("running selftest", "adapter", adapter)
			run := exec.CommandContext(cmd.Context(), "go", runArgs...)
			run.Stdout = os.Stdout
			run.Stderr = os.Stderr
			if err := run.Run(); err != nil {
				return fmt.Errorf("selftest failed: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().String("adapter", "mock", "spi transport passed to the cli")
	cmd.Flags().Bool("external", false, "the loop is outside the chip")
	return cmd
}
