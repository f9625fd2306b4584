package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AbdelilahOu/dbroute/internal/database"
	"github.com/AbdelilahOu/dbroute/internal/migrator"
)

func newHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe every connection with health_check enabled; exits non-zero when unhealthy",
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, _ := cmd.Flags().GetDuration("timeout")
			withMetrics, _ := cmd.Flags().GetBool("metrics")

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			report := current.manager.Report(ctx)
			if err := printJSON(report); err != nil {
				return err
			}
			if withMetrics {
				current.manager.WritePrometheus(os.Stdout)
			}
			if !report.Health.Healthy {
				return fmt.Errorf("%s", report.Health.Message)
			}
			return nil
		},
	}
	cmd.Flags().Duration("timeout", 30*time.Second, "Overall timeout for the report")
	cmd.Flags().Bool("metrics", false, "Also print connection and pool metrics in Prometheus format")
	return cmd
}

func newTablesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables of a connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFor(cmd, database.ModeRead)
			if err != nil {
				return err
			}
			schemas, _ := cmd.Flags().GetStringSlice("schema")

			tables, err := client.GetAllTables(cmd.Context(), schemas...)
			if err != nil {
				return err
			}
			for _, t := range tables {
				fmt.Println(t)
			}
			return nil
		},
	}
	cmd.Flags().StringP("connection", "c", "", "Connection name (defaults to default_connection)")
	cmd.Flags().StringSlice("schema", nil, "Schemas to list")
	return cmd
}

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query SQL [BINDINGS...]",
		Short: "Run a raw SQL statement and print the rows as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			write, _ := cmd.Flags().GetBool("write")
			debug, _ := cmd.Flags().GetBool("debug")

			mode := database.ModeRead
			if write {
				mode = database.ModeWrite
			}
			client, err := clientFor(cmd, mode)
			if err != nil {
				return err
			}

			bindings := make([]any, 0, len(args)-1)
			for _, a := range args[1:] {
				bindings = append(bindings, a)
			}
			query := client.RawQuery(args[0], bindings...).Debug(debug)

			if write {
				res, err := query.Exec(cmd.Context())
				if err != nil {
					return err
				}
				affected, _ := res.RowsAffected()
				return printJSON(map[string]int64{"rows_affected": affected})
			}
			rows, err := query.All(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(rows)
		},
	}
	cmd.Flags().StringP("connection", "c", "", "Connection name (defaults to default_connection)")
	cmd.Flags().BoolP("write", "w", false, "Run on the write client and print rows affected")
	cmd.Flags().Bool("debug", false, "Log the statement as a query event")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			statusOnly, _ := cmd.Flags().GetBool("status")

			client, err := clientFor(cmd, database.ModeWrite)
			if err != nil {
				return err
			}
			m, err := migrator.FromDir(client, dir, current.logger)
			if err != nil {
				return err
			}

			if statusOnly {
				status, err := m.Status(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(status)
			}

			applied, err := m.Up(cmd.Context())
			for _, name := range applied {
				fmt.Println("applied", name)
			}
			return err
		},
	}
	cmd.Flags().StringP("connection", "c", "", "Connection name (defaults to default_connection)")
	cmd.Flags().StringP("dir", "d", "migrations", "Directory holding *.sql migration files")
	cmd.Flags().Bool("status", false, "Only print which migrations are applied")
	return cmd
}

// clientFor connects the --connection flag (or the default connection). The
// global --read-only flag downgrades every client to read mode.
func clientFor(cmd *cobra.Command, mode database.Mode) (*database.QueryClient, error) {
	name, _ := cmd.Flags().GetString("connection")
	if name == "" {
		name = current.config.DefaultConnection
	}
	if name == "" {
		return nil, fmt.Errorf("no connection given and no default_connection configured")
	}
	if readOnly, _ := cmd.Flags().GetBool("read-only"); readOnly {
		mode = database.ModeRead
	}
	return current.manager.Client(name, mode)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
