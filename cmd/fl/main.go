package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"freightline/internal/config"
	"freightline/internal/db"
	"freightline/internal/engine"
	"freightline/internal/migrate"
	"freightline/internal/repo"
	"freightline/internal/server"
	"freightline/internal/workflow"
)

var rootCmd = &cobra.Command{
	Use:   "fl",
	Short: "Freightline CLI",
	Long: `Freightline tracks freight-export shipments from JAFZA through booking,
loading, customs clearance and cross-border checkpoints.

- Workspace: the .freightline directory holding the sqlite database.
- Shipment: one import or export consignment; exports follow a route.
- Steps: each shipment carries the fixed workflow steps with dynamic field
  schemas; statuses are derived from answered values, never stored.
- Stock: export allocations draw against import shipments; 'fl stock'
  reconciles what remains.
- Event log: every change is recorded, view with 'fl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FREIGHTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(shipmentCmd())
	rootCmd.AddCommand(stepCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(stockCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func shipmentCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "shipment", Short: "Manage shipments"}
	cmd.AddCommand(shipmentListCmd())
	cmd.AddCommand(shipmentCreateCmd())
	cmd.AddCommand(shipmentShowCmd())
	cmd.AddCommand(shipmentUpdateCmd())
	cmd.AddCommand(shipmentDeleteCmd())
	return cmd
}

func shipmentListCmd() *cobra.Command {
	var filters repo.ShipmentFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List shipments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.Repo.ListShipments(ctx, filters)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Code", "Kind", "Status", "Route", "BOE", "Imported Qty", "Imported Wt"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.Code, s.Kind, s.Status, s.Route, s.BOENumber, s.ImportedQuantity, s.ImportedWeight})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filters.Kind, "kind", "", "filter by kind (import|export)")
	cmd.Flags().StringVar(&filters.Status, "status", "", "filter by status")
	cmd.Flags().StringVar(&filters.Route, "route", "", "filter by route")
	return cmd
}

func shipmentCreateCmd() *cobra.Command {
	var opts engine.ShipmentCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a shipment and seed its workflow steps",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				s, err := e.CreateShipment(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Code, "code", "", "shipment code")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Kind, "kind", "export", "import or export")
	cmd.Flags().StringVar(&opts.Route, "route", "", "route (exports only)")
	cmd.Flags().StringVar(&opts.BOENumber, "boe", "", "bill of entry number")
	cmd.Flags().Float64Var(&opts.ImportedQuantity, "imported-qty", 0, "imported quantity (imports)")
	cmd.Flags().Float64Var(&opts.ImportedWeight, "imported-weight", 0, "imported weight (imports)")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func shipmentShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <shipment>",
		Short: "Show a shipment by id or code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				s, err := e.Repo.ResolveShipment(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func shipmentUpdateCmd() *cobra.Command {
	var (
		name, status, route, boe string
		qty, weight              float64
	)
	cmd := &cobra.Command{
		Use:   "update <shipment>",
		Short: "Update shipment fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u := repo.ShipmentUpdate{}
			if cmd.Flags().Changed("name") {
				u.Name = &name
			}
			if cmd.Flags().Changed("status") {
				u.Status = &status
			}
			if cmd.Flags().Changed("route") {
				u.Route = &route
			}
			if cmd.Flags().Changed("boe") {
				u.BOENumber = &boe
			}
			if cmd.Flags().Changed("imported-qty") {
				u.ImportedQuantity = &qty
			}
			if cmd.Flags().Changed("imported-weight") {
				u.ImportedWeight = &weight
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				s, err := e.UpdateShipment(ctx, args[0], u, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&status, "status", "", "active or archived")
	cmd.Flags().StringVar(&route, "route", "", "route")
	cmd.Flags().StringVar(&boe, "boe", "", "bill of entry number")
	cmd.Flags().Float64Var(&qty, "imported-qty", 0, "imported quantity")
	cmd.Flags().Float64Var(&weight, "imported-weight", 0, "imported weight")
	return cmd
}

func shipmentDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <shipment>",
		Short: "Delete a shipment and its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.DeleteShipment(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func stepCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "step", Short: "Work with workflow steps"}
	cmd.AddCommand(stepListCmd())
	cmd.AddCommand(stepShowCmd())
	cmd.AddCommand(stepSetCmd())
	cmd.AddCommand(stepUnsetCmd())
	cmd.AddCommand(stepSchemaCmd())
	cmd.AddCommand(stepBlockCmd())
	cmd.AddCommand(stepMissingCmd())
	cmd.AddCommand(stepAttachCmd())
	cmd.AddCommand(stepDetachCmd())
	return cmd
}

func stepListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <shipment>",
		Short: "List a shipment's steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				s, err := e.Repo.ResolveShipment(ctx, args[0])
				if err != nil {
					return err
				}
				items, err := e.Repo.ListSteps(ctx, s.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Step", "Stored Status", "Updated"})
				for _, st := range items {
					tw.AppendRow(table.Row{st.Name, st.Status, st.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func stepShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <shipment> <step>",
		Short: "Show a step's schema and values",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				s, err := e.Repo.ResolveShipment(ctx, args[0])
				if err != nil {
					return err
				}
				st, err := e.Repo.GetStep(ctx, s.ID, args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(st)
			})
		},
	}
	return cmd
}

func stepSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <shipment> <step> <path=value>...",
		Short: "Set step values by field path",
		Long: `Paths address the step's value tree: dots separate fields, numeric
tokens index repeatable-group rows.

  fl step set EXP-1 loading_details loads.0.origin=warehouse loads.0.loaded=true`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			set := map[string]string{}
			for _, pair := range args[2:] {
				key, value, ok := strings.Cut(pair, "=")
				if !ok || key == "" {
					return fmt.Errorf("expected path=value, got %q", pair)
				}
				set[key] = value
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				st, err := e.UpdateStepValues(ctx, args[0], args[1], engine.StepValueUpdate{
					Set:     set,
					ActorID: viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(st)
			})
		},
	}
	return cmd
}

func stepUnsetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unset <shipment> <step> <path>...",
		Short: "Remove step values by field path",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				st, err := e.UpdateStepValues(ctx, args[0], args[1], engine.StepValueUpdate{
					Remove:  args[2:],
					ActorID: viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(st)
			})
		},
	}
	return cmd
}

func stepSchemaCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import-schema <shipment> <step>",
		Short: "Replace a step's field schema from a JSON file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				st, err := e.ImportStepSchema(ctx, args[0], args[1], string(data), viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(st)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "schema JSON file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func stepBlockCmd() *cobra.Command {
	var clear bool
	cmd := &cobra.Command{
		Use:   "block <shipment> <step>",
		Short: "Set or clear an operator hold on a step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				st, err := e.SetStepBlocked(ctx, args[0], args[1], !clear, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(st)
			})
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "clear the hold instead of setting it")
	return cmd
}

func stepMissingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "missing <shipment> <step>",
		Short: "List unsatisfied required field paths",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				missing, err := e.MissingStepFields(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(missing)
				}
				for _, p := range missing {
					fmt.Println(p)
				}
				return nil
			})
		},
	}
	return cmd
}

func stepAttachCmd() *cobra.Command {
	var fileName string
	cmd := &cobra.Command{
		Use:   "attach <shipment> <step> <path>",
		Short: "Attach a document to a step field",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				d, err := e.AttachDocument(ctx, args[0], args[1], args[2], fileName, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&fileName, "file-name", "", "original file name")
	return cmd
}

func stepDetachCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detach <document-id>",
		Short: "Detach a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.DetachDocument(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <shipment>",
		Short: "Derived status board for a shipment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				board, err := e.ShipmentStatuses(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(board)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Step", "Status"})
				for _, name := range e.Catalog.Steps {
					tw.AppendRow(table.Row{name, board.Derived.Statuses[name]})
				}
				tw.Render()
				fmt.Printf("loading: %d/%d rows complete\n",
					board.Derived.LoadingProgress.Completed, board.Derived.LoadingProgress.Expected)
				fmt.Printf("invoice gate: %s\n", gateText(board.Derived))
				for _, w := range board.Derived.Warnings {
					fmt.Println("warning:", w)
				}
				return nil
			})
		},
	}
	return cmd
}

func gateText(r workflow.Result) string {
	if r.CanFinalizeInvoice {
		return "open"
	}
	return "closed"
}

func stockCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "stock", Short: "Import stock reconciliation"}
	cmd.AddCommand(stockReportCmd())
	cmd.AddCommand(stockWarningsCmd())
	return cmd
}

func stockReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <import-shipment>",
		Short: "Remaining stock for an import shipment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				rem, err := e.StockReport(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rem)
				}
				fmt.Printf("imported:  qty %s  weight %s\n", num(rem.ImportedQuantity), num(rem.ImportedWeight))
				fmt.Printf("consumed:  qty %s  weight %s\n", num(rem.ConsumedQuantity), num(rem.ConsumedWeight))
				fmt.Printf("remaining: qty %s  weight %s\n", num(rem.RemainingQuantity), num(rem.RemainingWeight))
				if rem.OverAllocated {
					fmt.Println("OVER-ALLOCATED")
				}
				if len(rem.History) > 0 {
					tw := table.NewWriter()
					tw.SetOutputMirror(os.Stdout)
					tw.AppendHeader(table.Row{"Export", "Qty", "Weight", "Date"})
					for _, h := range rem.History {
						code := h.ExportShipmentCode
						if code == "" {
							code = h.ExportShipmentID
						}
						tw.AppendRow(table.Row{code, num(h.Quantity), num(h.Weight), h.ExportDate})
					}
					tw.Render()
				}
				return nil
			})
		},
	}
	return cmd
}

func stockWarningsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warnings",
		Short: "Over-allocated import shipments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				warnings, err := e.StockWarnings(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(warnings)
				}
				if len(warnings) == 0 {
					fmt.Println("no over-allocations")
					return nil
				}
				for _, w := range warnings {
					fmt.Println(w)
				}
				return nil
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default freightline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			return os.WriteFile(path, []byte(config.GenerateDefault()), 0o644)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	})
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var (
		n                                     int
		shipment, evtType, entityKind, entity string
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				shipmentID := ""
				if shipment != "" {
					s, err := e.Repo.ResolveShipment(ctx, shipment)
					if err != nil {
						return err
					}
					shipmentID = s.ID
				}
				items, err := e.Repo.LatestEvents(ctx, n, shipmentID, evtType, entityKind, entity)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Type", "Entity", "Actor", "Payload"})
				for _, evt := range items {
					tw.AppendRow(table.Row{evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&shipment, "shipment", "", "filter by shipment id or code")
	cmd.Flags().StringVar(&evtType, "type", "", "filter by event type")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "filter by entity kind")
	cmd.Flags().StringVar(&entity, "entity-id", "", "filter by entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Logger: logger})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Freightline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg))
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
