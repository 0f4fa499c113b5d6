package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"loomline/internal/app"
	"loomline/internal/config"
	"loomline/internal/db"
	"loomline/internal/engine"
	"loomline/internal/engine/auth"
	"loomline/internal/report"
	"loomline/internal/server"
	"loomline/internal/tabular"
)

var rootCmd = &cobra.Command{
	Use:   "lm",
	Short: "Loomline CLI",
	Long: `Loomline is an order intake and prioritization tool for a small garment shop.
Core concepts:
- Workspace: your .loomline directory with the order database; settings live in loomline.yml next to it.
- Catalog: the product types you make, each with standard production hours.
- Orders: customer orders scored on submission from urgency, hours and cost; the score is a snapshot and never changes afterwards.
- Queue: open orders ranked by score, ties kept in submission order. This is the sequence the shop floor works in.
- Capacity: machines x hours x days per week; utilization above 100% means the week is overbooked.
- Deadline alerts: open orders within the configured horizon (or past due) are flagged.`,
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
	viper.SetEnvPrefix("LOOMLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(productCmd())
	rootCmd.AddCommand(orderCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(chartCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- config ---

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage workspace config",
		Long:  "Config is the rulebook in loomline.yml: factory capacity, scoring scale, deadline horizon, users and the seed catalog.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default loomline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; pass --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate loomline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err == nil {
				err = cfg.Validate()
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

// --- product catalog ---

func productCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "product",
		Short: "Manage the product catalog",
		Long:  "Products are the types you manufacture, each with standard production hours. Orders snapshot the hours at submission, so later catalog edits never reshuffle the queue.",
	}
	p.AddCommand(productAddCmd())
	p.AddCommand(productListCmd())
	p.AddCommand(productUpdateCmd())
	p.AddCommand(productRemoveCmd())
	return p
}

func productAddCmd() *cobra.Command {
	var name string
	var hours float64
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a product type",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.AddProduct(ctx, name, hours)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "product name")
	cmd.Flags().Float64Var(&hours, "hours", 0, "standard production hours")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("hours")
	return cmd
}

func productListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List products",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListProducts(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Name", "Hours", "Created"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.Name, p.StandardHours, p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func productUpdateCmd() *cobra.Command {
	var newName string
	var hours float64
	cmd := &cobra.Command{
		Use:   "update <name>",
		Short: "Rename a product or change its hours",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ProductUpdateOptions{Name: args[0]}
			if cmd.Flags().Changed("new-name") {
				opts.NewName = &newName
			}
			if cmd.Flags().Changed("hours") {
				opts.NewHours = &hours
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UpdateProduct(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&newName, "new-name", "", "new product name")
	cmd.Flags().Float64Var(&hours, "hours", 0, "new standard production hours")
	return cmd
}

func productRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a product type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RemoveProduct(ctx, args[0])
			})
		},
	}
	return cmd
}

// --- orders ---

func orderCmd() *cobra.Command {
	o := &cobra.Command{
		Use:   "order",
		Short: "Manage orders",
		Long:  "Orders are scored when submitted (urgency, production hours, cost) and ranked into the open queue. Completing an order is final.",
	}
	o.AddCommand(orderSubmitCmd())
	o.AddCommand(orderListCmd())
	o.AddCommand(orderShowCmd())
	o.AddCommand(orderCompleteCmd())
	return o
}

func orderSubmitCmd() *cobra.Command {
	var opts engine.OrderSubmitOptions
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit an order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.SubmitOrder(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "order name")
	cmd.Flags().StringVar(&opts.Product, "product", "", "product type")
	cmd.Flags().IntVar(&opts.Urgency, "urgency", 0, "urgency 1..10")
	cmd.Flags().Float64Var(&opts.Cost, "cost", 0, "relative cost on the configured scale")
	cmd.Flags().StringVar(&opts.Deadline, "deadline", "", "deadline YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("product")
	_ = cmd.MarkFlagRequired("urgency")
	_ = cmd.MarkFlagRequired("cost")
	_ = cmd.MarkFlagRequired("deadline")
	return cmd
}

func orderListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders (open queue by default, highest score first)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				orders, err := e.ListOrders(ctx, status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(orders)
				}
				horizon := e.Config.Alerts.DeadlineHorizonDays
				now := e.Now()
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Product", "Urgency", "Score", "Deadline", "Status", "Risk"})
				for _, o := range orders {
					risk := ""
					if engine.DeadlineRisk(o, horizon, now) {
						risk = "!"
					}
					tw.AppendRow(table.Row{o.ID, o.Name, o.Product, o.Urgency, fmt.Sprintf("%.2f", o.Score), o.Deadline, o.Status, risk})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "open", "open, completed or all")
	return cmd
}

func orderShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.GetOrder(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	return cmd
}

func orderCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Mark an order completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.Complete(ctx, args[0])
				if err != nil {
					return err
				}
				if !viper.GetBool("json") {
					if hours, derr := engine.CompletionDuration(o); derr == nil {
						fmt.Printf("Completed after %.1f hours in queue\n", hours)
					}
				}
				return printJSONOrTable(o)
			})
		},
	}
	return cmd
}

// --- dashboard ---

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue counts, capacity and deadline alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				all, err := e.Repo.ListOrders(ctx)
				if err != nil {
					return err
				}
				open, err := e.ListOpen(ctx)
				if err != nil {
					return err
				}
				now := e.Now()
				counts := engine.SummaryCounts(all, now)
				planned := engine.PlannedHours(open)
				capacity := e.Config.WeeklyCapacity()
				utilization := engine.Utilization(open, capacity)
				atRisk := engine.AtRisk(open, e.Config.Alerts.DeadlineHorizonDays, now)
				if viper.GetBool("json") {
					ids := make([]string, 0, len(atRisk))
					for _, o := range atRisk {
						ids = append(ids, o.ID)
					}
					return printJSON(map[string]any{
						"counts":          counts,
						"planned_hours":   planned,
						"weekly_capacity": capacity,
						"utilization":     utilization,
						"at_risk_orders":  ids,
					})
				}
				fmt.Printf("Open: %d (overdue %d)  Completed: %d\n", counts.Open, counts.OverdueOpen, counts.Completed)
				fmt.Printf("Planned: %.1fh of %.0fh weekly capacity (%.1f%%)\n", planned, capacity, utilization*100)
				if utilization > 1.0 {
					fmt.Println("WARNING: capacity overbooked")
				}
				if len(atRisk) > 0 {
					fmt.Printf("Deadline alerts (within %d days):\n", e.Config.Alerts.DeadlineHorizonDays)
					for _, o := range atRisk {
						fmt.Printf("  %s  %s  due %s\n", o.ID, o.Name, o.Deadline)
					}
				}
				return nil
			})
		},
	}
	return cmd
}

func reportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render the production order sheet for open orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				open, err := e.ListOpen(ctx)
				if err != nil {
					return err
				}
				sheet := report.RenderOrderSheet(open, e.Now())
				if out == "" {
					_, err = os.Stdout.Write(sheet)
					return err
				}
				if err := os.WriteFile(out, sheet, 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write to file instead of stdout")
	return cmd
}

func chartCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "chart <priority|capacity>",
		Short: "Render a dashboard chart as SVG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				open, err := e.ListOpen(ctx)
				if err != nil {
					return err
				}
				var svg []byte
				switch args[0] {
				case "priority":
					svg = server.PriorityChart(open)
				case "capacity":
					svg = server.CapacityChart(open, e.Config.WeeklyCapacity())
				default:
					return fmt.Errorf("unknown chart %q: want priority or capacity", args[0])
				}
				if out == "" {
					out = args[0] + ".svg"
				}
				if err := os.WriteFile(out, svg, 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output SVG path")
	return cmd
}

// --- CSV interchange ---

func exportCmd() *cobra.Command {
	exp := &cobra.Command{Use: "export", Short: "Export orders or products to CSV"}
	exp.AddCommand(exportOrdersCmd())
	exp.AddCommand(exportProductsCmd())
	return exp
}

func exportOrdersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders <file>",
		Short: "Export all orders to CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				orders, err := e.Repo.ListOrders(ctx)
				if err != nil {
					return err
				}
				f, err := os.Create(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				if err := tabular.WriteOrders(f, orders); err != nil {
					return err
				}
				fmt.Printf("Wrote %d orders to %s\n", len(orders), args[0])
				return nil
			})
		},
	}
	return cmd
}

func exportProductsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products <file>",
		Short: "Export the catalog to CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				products, err := e.ListProducts(ctx)
				if err != nil {
					return err
				}
				f, err := os.Create(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				if err := tabular.WriteProducts(f, products); err != nil {
					return err
				}
				fmt.Printf("Wrote %d products to %s\n", len(products), args[0])
				return nil
			})
		},
	}
	return cmd
}

func importCmd() *cobra.Command {
	imp := &cobra.Command{Use: "import", Short: "Import orders or products from CSV"}
	imp.AddCommand(importOrdersCmd())
	imp.AddCommand(importProductsCmd())
	return imp
}

func importOrdersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders <file>",
		Short: "Import orders from CSV, keeping stored scores and timestamps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			orders, err := tabular.ReadOrders(f)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tx, err := e.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				for _, o := range orders {
					if err := e.Repo.InsertOrder(ctx, tx, o); err != nil {
						return fmt.Errorf("import order %s: %w", o.ID, err)
					}
				}
				if err := tx.Commit(); err != nil {
					return err
				}
				fmt.Printf("Imported %d orders\n", len(orders))
				return nil
			})
		},
	}
	return cmd
}

func importProductsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products <file>",
		Short: "Import catalog entries from CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			products, err := tabular.ReadProducts(f)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tx, err := e.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				for _, p := range products {
					if err := e.Repo.InsertProduct(ctx, tx, p); err != nil {
						return fmt.Errorf("import product %s: %w", p.Name, err)
					}
				}
				if err := tx.Commit(); err != nil {
					return err
				}
				fmt.Printf("Imported %d products\n", len(products))
				return nil
			})
		},
	}
	return cmd
}

// --- auth & server ---

func loginCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Check credentials and issue a bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			svc := auth.New(cfg)
			res, err := svc.Authenticate(username, password)
			if err != nil {
				return err
			}
			secret := os.Getenv("LOOMLINE_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("LOOMLINE_JWT_SECRET is required to issue tokens")
			}
			ttl := time.Duration(cfg.Auth.SessionTTLHours) * time.Hour
			token, expires, err := server.IssueToken(res, secret, ttl, time.Now())
			if err != nil {
				return err
			}
			if err := setEnvValue(filepath.Join(workspace, ".env"), "LOOMLINE_TOKEN", token); err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"token": token, "expires_at": expires.UTC().Format(time.RFC3339)})
			}
			fmt.Printf("Logged in as %s, token valid until %s\n", res.Username, expires.UTC().Format(time.RFC3339))
			fmt.Printf("Stored LOOMLINE_TOKEN in %s/.env\n", workspace)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			e, conn, err := app.Open(cmd.Context(), workspace)
			if err != nil {
				return err
			}
			defer conn.Close()
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("LOOMLINE_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("LOOMLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
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
			fmt.Printf("Serving Loomline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
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

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	e, conn, err := app.Open(ctx, workspace)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, e)
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
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o600)
}
