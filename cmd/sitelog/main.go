package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"sitelog/internal/app"
	"sitelog/internal/config"
	"sitelog/internal/db"
	"sitelog/internal/domain"
	"sitelog/internal/engine"
	"sitelog/internal/engine/auth"
	"sitelog/internal/repo"
	"sitelog/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sitelog",
	Short: "Construction site daily work logs",
	Long: `sitelog records one daily work log per team leader, project and day.
- Logs start as drafts, are submitted by their team leader and approved by a manager.
- Approved logs are frozen; only a manager may delete them.
- Photos and documents are attached over the HTTP API (sitelog serve).
- Every change lands in the event log, view it with 'sitelog events tail'.`,
	SilenceUsage: true,
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
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SITELOG")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/sitelog.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "user the command acts as")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(employeeCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(eventsCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowUserHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if !cmd.Flags().Changed("addr") {
					addr = rt.Config.Server.Addr
				}
				if !cmd.Flags().Changed("base-path") {
					basePath = rt.Config.Server.BasePath
				}
				authCfg := server.AuthConfig{
					JWTSecret:       viper.GetString("jwt_secret"),
					AllowUserHeader: allowUserHeader,
				}
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("SITELOG_JWT_SECRET is required for bearer auth")
				}
				handler, err := server.New(server.Config{
					Engine:   rt.Engine,
					BasePath: basePath,
					Auth:     authCfg,
					Logger:   rt.Logger.Named("http"),
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				rt.Logger.Info("serving sitelog API",
					zap.String("addr", addr),
					zap.String("base_path", basePath),
					zap.String("uploads", rt.Config.Storage.Dir))
				fmt.Printf("Serving sitelog API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowUserHeader, "allow-user-header", false, "trust X-User-Id without credentials (local development only)")
	return cmd
}

func configCmd() *cobra.Command {
	c := &cobra.Command{Use: "config", Short: "Inspect workspace configuration"}
	c.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default sitelog.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig()
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})
	return c
}

func userCmd() *cobra.Command {
	c := &cobra.Command{Use: "user", Short: "Manage managers and team leaders"}
	var id, name, role string
	var withKey bool
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !auth.ValidRole(role) {
				return fmt.Errorf("--role must be %s or %s", domain.RoleManager, domain.RoleTeamLeader)
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				u := domain.User{ID: id, Name: name, Role: role, CreatedAt: now()}
				if u.ID == "" {
					u.ID = uuid.NewString()
				}
				if err := r.InsertUser(ctx, u); err != nil {
					return err
				}
				out := map[string]any{"user": u}
				if withKey {
					key, err := repo.GenerateAPIKey(u.ID)
					if err != nil {
						return err
					}
					if err := r.SetUserAPIKey(ctx, u.ID, key); err != nil {
						return err
					}
					// only time the key is ever shown
					out["api_key"] = key
				}
				return printJSON(out)
			})
		},
	}
	add.Flags().StringVar(&id, "id", "", "user id (generated when empty)")
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&role, "role", domain.RoleTeamLeader, "manager or team_leader")
	add.Flags().BoolVar(&withKey, "api-key", false, "generate an API key for the user")
	_ = add.MarkFlagRequired("name")

	rotate := &cobra.Command{
		Use:   "api-key <user-id>",
		Short: "Issue a new API key, replacing any previous one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				key, err := repo.GenerateAPIKey(args[0])
				if err != nil {
					return err
				}
				if err := r.SetUserAPIKey(ctx, args[0], key); err != nil {
					return err
				}
				return printJSON(map[string]string{"user_id": args[0], "api_key": key})
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				users, err := r.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := newTable(table.Row{"ID", "Name", "Role", "Created"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Name, u.Role, u.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	c.AddCommand(add, rotate, list)
	return c
}

func projectCmd() *cobra.Command {
	c := &cobra.Command{Use: "project", Short: "Manage projects"}
	var id, name, address string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p := domain.Project{ID: id, Name: name, Address: address, CreatedAt: now()}
				if p.ID == "" {
					p.ID = uuid.NewString()
				}
				if err := r.InsertProject(ctx, p); err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	add.Flags().StringVar(&id, "id", "", "project id (generated when empty)")
	add.Flags().StringVar(&name, "name", "", "project name")
	add.Flags().StringVar(&address, "address", "", "site address")
	_ = add.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Name", "Address"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Address})
				}
				tw.Render()
				return nil
			})
		},
	}
	c.AddCommand(add, list)
	return c
}

func employeeCmd() *cobra.Command {
	c := &cobra.Command{Use: "employee", Short: "Manage site employees"}
	var id, name string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add an employee",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				e := domain.Employee{ID: id, Name: name, CreatedAt: now()}
				if e.ID == "" {
					e.ID = uuid.NewString()
				}
				if err := r.InsertEmployee(ctx, e); err != nil {
					return err
				}
				return printJSON(e)
			})
		},
	}
	add.Flags().StringVar(&id, "id", "", "employee id (generated when empty)")
	add.Flags().StringVar(&name, "name", "", "employee name")
	_ = add.MarkFlagRequired("name")
	c.AddCommand(add)
	return c
}

func tokenCmd() *cobra.Command {
	var userID string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user (signed with SITELOG_JWT_SECRET)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				userID = viper.GetString("actor-id")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetUser(ctx, userID); err != nil {
					return fmt.Errorf("user %q: %w", userID, err)
				}
				token, err := server.IssueToken(viper.GetString("jwt_secret"), userID, ttl)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"token": token})
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (defaults to --actor-id)")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime, 0 for no expiry")
	return cmd
}

func logCmd() *cobra.Command {
	c := &cobra.Command{Use: "log", Short: "Work with daily logs"}
	c.AddCommand(logListCmd())
	c.AddCommand(logShowCmd())
	c.AddCommand(logSubmitCmd())
	c.AddCommand(logApproveCmd())
	c.AddCommand(logDeleteCmd())
	c.AddCommand(logReportCmd())
	c.AddCommand(logExportCmd())
	return c
}

func addFilterFlags(cmd *cobra.Command, f *engine.LogFilter) {
	cmd.Flags().StringVar(&f.StartDate, "start-date", "", "inclusive lower date bound (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.EndDate, "end-date", "", "inclusive upper date bound (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&f.Status, "status", "", "draft, submitted or approved")
	cmd.Flags().StringVar(&f.TeamLeaderID, "team-leader", "", "team leader id (managers only)")
	cmd.Flags().StringVar(&f.SearchTerm, "search", "", "match on work description")
}

func logListCmd() *cobra.Command {
	var f engine.LogFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List logs visible to the actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor auth.Actor) error {
				logs, err := rt.Engine.List(ctx, f, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(logs)
				}
				tw := newTable(table.Row{"ID", "Date", "Project", "Team Leader", "Status", "Photos", "Docs"})
				for _, l := range logs {
					tw.AppendRow(table.Row{l.ID, l.Date, l.ProjectID, l.TeamLeaderID, l.Status, len(l.Photos), len(l.Documents)})
				}
				tw.Render()
				return nil
			})
		},
	}
	addFilterFlags(cmd, &f)
	return cmd
}

func logShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <log-id>",
		Short: "Show a log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor auth.Actor) error {
				l, err := rt.Engine.Get(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return printJSON(l)
			})
		},
	}
}

func logSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <log-id>",
		Short: "Submit a draft log for approval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor auth.Actor) error {
				l, err := rt.Engine.Submit(ctx, args[0], actor.ID)
				if err != nil {
					return err
				}
				return printStatus(l)
			})
		},
	}
}

func logApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <log-id>",
		Short: "Approve a submitted log (managers)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor auth.Actor) error {
				if err := auth.Require(actor, auth.PermLogApprove); err != nil {
					return err
				}
				l, err := rt.Engine.Approve(ctx, args[0], actor.ID)
				if err != nil {
					return err
				}
				return printStatus(l)
			})
		},
	}
}

func logDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <log-id>",
		Short: "Delete a log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor auth.Actor) error {
				if err := rt.Engine.Remove(ctx, args[0], actor.ID, actor.Has(auth.PermLogDeleteAny)); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func logReportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "report <log-id>",
		Short: "Render the PDF report of a log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor auth.Actor) error {
				data, filename, err := rt.Engine.RenderReport(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return writeOutput(out, filename, data)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file or directory (default: ./<generated name>)")
	return cmd
}

func logExportCmd() *cobra.Command {
	var f engine.LogFilter
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the logs visible to the actor as an xlsx register",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor auth.Actor) error {
				buf, filename, err := rt.Engine.ExportRegister(ctx, f, actor)
				if err != nil {
					return err
				}
				return writeOutput(out, filename, buf.Bytes())
			})
		},
	}
	addFilterFlags(cmd, &f)
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file or directory (default: ./<generated name>)")
	return cmd
}

func eventsCmd() *cobra.Command {
	c := &cobra.Command{Use: "events", Short: "Inspect the event log"}
	var n int
	var evtType, entityID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable(table.Row{"ID", "TS", "Type", "Entity", "Actor", "Payload"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityID, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&evtType, "type", "", "event type filter")
	tail.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	c.AddCommand(tail)
	return c
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	if path := viper.GetString("config"); path != "" {
		return config.FromFile(path)
	}
	return config.Load(viper.GetString("workspace"))
}

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	rt, err := app.Open(ctx, viper.GetString("workspace"), app.Options{ConfigPath: viper.GetString("config")})
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func withActor(ctx context.Context, fn func(context.Context, *app.Runtime, auth.Actor) error) error {
	actorID := viper.GetString("actor-id")
	if actorID == "" {
		return fmt.Errorf("--actor-id (or SITELOG_ACTOR_ID) is required")
	}
	return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
		actor, err := rt.Actor(ctx, actorID)
		if err != nil {
			return err
		}
		return fn(ctx, rt, actor)
	})
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
		return fn(ctx, rt.Engine.Repo)
	})
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	return tw
}

func printStatus(l domain.Log) error {
	if viper.GetBool("json") {
		return printJSON(l)
	}
	fmt.Printf("%s %s\n", l.ID, l.Status)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeOutput(out, filename string, data []byte) error {
	path := filename
	if out != "" {
		path = out
		if info, err := os.Stat(out); err == nil && info.IsDir() {
			path = filepath.Join(out, filename)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Println("wrote", path)
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
