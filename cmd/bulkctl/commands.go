package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/noah-isme/ems-program-api/internal/dto"
	"github.com/noah-isme/ems-program-api/internal/models"
	"github.com/noah-isme/ems-program-api/internal/service"
)

func newTablesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "list tables, filterable fields and supported operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := a.svc
			if svc == nil {
				// the catalog is static; no stores are needed to describe it
				svc = service.NewBulkOperationService(nil, nil, nil, nil, nil, service.BulkOperationConfig{})
			}
			tables := svc.Tables()
			if a.format == "json" {
				return a.printJSON(tables)
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TABLE\tFIELD\tTYPE\tOPERATORS")
			for _, table := range tables {
				for _, field := range table.Fields {
					ops := make([]string, len(field.Operators))
					for i, op := range field.Operators {
						ops[i] = string(op)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", table.Name, field.Name, field.Type, strings.Join(ops, ","))
				}
			}
			return w.Flush()
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var (
		table, operation, status, performedBy string
		limit, offset                         int
	)
	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"ls"},
		Short:   "show the bulk operation log, newest first",
		Example: `  show failed operations on students:
  $ bulkctl history --table students --status failed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.connect(); err != nil {
				return err
			}
			query := dto.BulkOperationQuery{
				TargetTable:   models.TargetTable(table),
				OperationType: models.BulkOperationType(operation),
				PerformedBy:   performedBy,
				Limit:         limit,
				Offset:        offset,
			}
			for _, part := range strings.Split(status, ",") {
				if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
					query.Status = append(query.Status, models.BulkOperationStatus(part))
				}
			}
			history, err := a.svc.List(cmd.Context(), query)
			if err != nil {
				return err
			}
			if a.format == "json" {
				return a.printJSON(history)
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tOPERATION\tTABLE\tSTATUS\tAFFECTED\tPERFORMED BY\tCREATED")
			for _, entry := range history.Operations {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					entry.ID, entry.OperationType, entry.TargetTable, entry.Status,
					entry.AffectedCount, entry.PerformedBy, entry.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "filter by target table")
	cmd.Flags().StringVar(&operation, "operation", "", "filter by operation type")
	cmd.Flags().StringVar(&status, "status", "", "comma separated statuses")
	cmd.Flags().StringVar(&performedBy, "performed-by", "", "filter by actor id")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <operation-id>",
		Short: "print one log entry including its before-state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.connect(); err != nil {
				return err
			}
			entry, err := a.svc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printJSON(entry)
		},
	}
}

type operationFlags struct {
	table     string
	operation string
	filters   []string
	params    []string
}

func (f *operationFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.table, "table", "", "target table")
	cmd.Flags().StringVar(&f.operation, "operation", string(models.BulkOperationUpdateStatus), "operation type")
	cmd.Flags().StringArrayVar(&f.filters, "filter", nil, "filter as field:operator:value, repeatable")
	cmd.Flags().StringArrayVar(&f.params, "param", nil, "operation parameter as key=value, repeatable")
	_ = cmd.MarkFlagRequired("table")
}

func (f *operationFlags) request(dryRun bool) (dto.BulkOperationRequest, error) {
	req := dto.BulkOperationRequest{
		Operation:   models.BulkOperationType(f.operation),
		TargetTable: models.TargetTable(f.table),
		DryRun:      dryRun,
	}
	for _, raw := range f.filters {
		filter, err := parseFilter(raw)
		if err != nil {
			return req, err
		}
		req.Filters = append(req.Filters, filter)
	}
	params, err := parseParams(f.params)
	if err != nil {
		return req, err
	}
	req.Parameters = params
	return req, nil
}

func newPreviewCmd(a *app) *cobra.Command {
	var flags operationFlags
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "count and sample the rows an operation would touch",
		Example: `  $ bulkctl preview --table students --filter status:equals:withdrawn \
      --operation update_status --param new_status=inactive`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(true)
			if err != nil {
				return err
			}
			if err := a.connect(); err != nil {
				return err
			}
			res, err := a.svc.Execute(cmd.Context(), req, dto.Actor{ID: a.actor})
			if err != nil {
				return err
			}
			return a.printJSON(res)
		},
	}
	flags.register(cmd)
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	var (
		flags  operationFlags
		output string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "execute an operation and record it in the log",
		Long: `
run executes the operation for real. delete_records requires --param confirmed=true.
export_records writes the file to --output, or to the generated filename.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := a.requireActor()
			if err != nil {
				return err
			}
			req, err := flags.request(false)
			if err != nil {
				return err
			}
			if err := a.connect(); err != nil {
				return err
			}
			res, err := a.svc.Execute(cmd.Context(), req, actor)
			if err != nil {
				return err
			}
			if res.Export != nil {
				path := output
				if path == "" {
					path = res.Export.Filename
				}
				if err := os.WriteFile(path, res.Export.Data, 0o644); err != nil {
					return fmt.Errorf("write export: %w", err)
				}
				fmt.Fprintf(a.out, "exported %d rows to %s (operation %s)\n", res.Export.RowCount, path, res.OperationID)
				return nil
			}
			return a.printJSON(res)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "export destination path")
	return cmd
}

func newRollbackCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <operation-id>",
		Short: "restore the before-state of a completed update",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := a.requireActor()
			if err != nil {
				return err
			}
			if err := a.connect(); err != nil {
				return err
			}
			res, err := a.svc.Rollback(cmd.Context(), args[0], actor)
			if err != nil {
				return err
			}
			if a.format == "json" {
				return a.printJSON(res)
			}
			fmt.Fprintf(a.out, "%s: %s\n", res.OperationID, res.Message)
			return nil
		},
	}
}

// parseFilter splits field:operator:value. The value keeps any further colons.
func parseFilter(raw string) (models.FilterCondition, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return models.FilterCondition{}, fmt.Errorf("invalid filter %q, want field:operator:value", raw)
	}
	return models.FilterCondition{
		Field:    strings.TrimSpace(parts[0]),
		Operator: models.FilterOperator(strings.TrimSpace(parts[1])),
		Value:    parts[2],
	}, nil
}

// parseParams turns key=value pairs into a JSON object. true and false become booleans.
func parseParams(pairs []string) (json.RawMessage, error) {
	params := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, want key=value", pair)
		}
		if b, err := strconv.ParseBool(value); err == nil && (value == "true" || value == "false") {
			params[key] = b
			continue
		}
		params[key] = value
	}
	return json.Marshal(params)
}
