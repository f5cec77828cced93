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

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"reviewdesk/internal/app"
	"reviewdesk/internal/config"
	"reviewdesk/internal/db"
	"reviewdesk/internal/domain"
	"reviewdesk/internal/engine"
	"reviewdesk/internal/migrate"
	"reviewdesk/internal/notify"
	"reviewdesk/internal/repo"
	"reviewdesk/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "rd",
	Short: "Reviewdesk CLI",
	Long: `Reviewdesk runs the review and approval loop between an agency and its clients.
- Workspace: your .reviewdesk directory holding the database.
- Project: the engagement that owns deliverables and members.
- Deliverables: work products moving draft -> pending_review -> approved -> delivered,
  with a needs_changes loop when the client asks for revisions.
- Review notes: the audit trail of feedback and approvals per version.
- Inbox: what is waiting on you right now, based on your role.
- Event log: diary of changes, view with 'rd log tail'.`,
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
	viper.SetEnvPrefix("REVIEWDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("actor-role", "admin", "actor role (admin or client)")
	rootCmd.PersistentFlags().String("project", "", "project id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("actor-role", rootCmd.PersistentFlags().Lookup("actor-role"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(deliverableCmd())
	rootCmd.AddCommand(inboxCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func actorID() string { return viper.GetString("actor-id") }

func actorRole() (domain.Role, error) {
	switch r := domain.Role(viper.GetString("actor-role")); r {
	case domain.RoleAdmin, domain.RoleClient:
		return r, nil
	default:
		return "", fmt.Errorf("invalid --actor-role %q (admin or client)", r)
	}
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(projectUseCmd())
	prj.AddCommand(projectConfigCmd())
	return prj
}

func projectConfigCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage project config",
	}
	cfg.AddCommand(projectConfigShowCmd())
	cfg.AddCommand(projectConfigInitCmd())
	cfg.AddCommand(projectConfigImportCmd())
	return cfg
}

func projectConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if cfg == nil {
				return fmt.Errorf("no config in this workspace; create one with 'rd project config init'")
			}
			return printJSONOrTable(cfg)
		},
	}
}

func projectConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default reviewdesk.yml to the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config %s already exists", path)
			}
			projectID := viper.GetString("project")
			if projectID == "" {
				projectID = "my-project"
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(projectID)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func projectConfigImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a YAML config into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			path := config.Path(viper.GetString("workspace"))
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func projectCreateCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
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
			e := engine.New(conn)
			p, err := e.InitProject(cmd.Context(), id, name, actorID())
			if err != nil {
				return err
			}
			return printJSONOrTable(p)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id")
	cmd.Flags().StringVar(&name, "name", "", "project name")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				p, err := e.Repo.GetProject(ctx, projectID)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func projectUpdateCmd() *cobra.Command {
	var status, description string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				var descPtr *string
				if cmd.Flags().Changed("description") {
					descPtr = &description
				}
				if err := e.Repo.UpdateProject(ctx, projectID, status, descPtr); err != nil {
					return err
				}
				p, err := e.Repo.GetProject(ctx, projectID)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status (active, paused, archived)")
	cmd.Flags().StringVar(&description, "description", "", "description")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Delete a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				return e.Repo.DeleteProject(ctx, projectID)
			})
		},
	}
}

func projectUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <id>",
		Short: "Set current project for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID := strings.TrimSpace(args[0])
			if projectID == "" {
				return fmt.Errorf("project id is required")
			}
			workspace := viper.GetString("workspace")
			if err := setEnvValue(filepath.Join(workspace, ".env"), "REVIEWDESK_PROJECT", projectID); err != nil {
				return err
			}
			fmt.Printf("Set REVIEWDESK_PROJECT=%s in %s/.env\n", projectID, workspace)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show project status",
		Long:  "The scoreboard for an engagement: deliverable counts per workflow status.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				p, err := e.Repo.GetProject(ctx, projectID)
				if err != nil {
					return err
				}
				counts, err := e.Repo.CountDeliverablesByStatus(ctx, projectID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"project_id":         p.ID,
					"status":             p.Status,
					"deliverable_counts": counts,
				})
			})
		},
	}
}

func deliverableCmd() *cobra.Command {
	del := &cobra.Command{Use: "deliverable", Short: "Manage deliverables", Aliases: []string{"del"}}
	del.AddCommand(deliverableCreateCmd())
	del.AddCommand(deliverableListCmd())
	del.AddCommand(deliverableShowCmd())
	del.AddCommand(deliverableEditCmd())
	del.AddCommand(deliverableSubmitCmd())
	del.AddCommand(deliverableApproveCmd())
	del.AddCommand(deliverableRequestChangesCmd())
	del.AddCommand(deliverableDeliverCmd())
	del.AddCommand(deliverableDeleteCmd())
	del.AddCommand(deliverableNotesCmd())
	return del
}

func parseFileFlags(raw []string) ([]domain.FileRef, error) {
	var files []domain.FileRef
	for _, f := range raw {
		parts := strings.SplitN(f, "=", 2)
		if len(parts) == 2 {
			files = append(files, domain.FileRef{Name: parts[0], URL: parts[1]})
			continue
		}
		if parts[0] == "" {
			return nil, fmt.Errorf("invalid --file %q (use name=url or url)", f)
		}
		files = append(files, domain.FileRef{Name: filepath.Base(parts[0]), URL: parts[0]})
	}
	return files, nil
}

func deliverableCreateCmd() *cobra.Command {
	var title, description, dtype string
	var fileFlags []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a deliverable in draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := actorRole()
			if err != nil {
				return err
			}
			files, err := parseFileFlags(fileFlags)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				d, err := e.Create(ctx, engine.CreateOptions{
					ProjectID:   projectID,
					Title:       title,
					Description: description,
					Type:        dtype,
					Files:       files,
					ActorID:     actorID(),
					ActorRole:   role,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "deliverable title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&dtype, "type", "", "deliverable type")
	cmd.Flags().StringArrayVar(&fileFlags, "file", nil, "attached file (name=url or url), repeatable")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func deliverableListCmd() *cobra.Command {
	var status, dtype, createdBy string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deliverables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				items, err := e.Repo.ListDeliverables(ctx, repo.DeliverableFilters{
					ProjectID: projectID,
					Status:    domain.Status(status),
					Type:      dtype,
					CreatedBy: createdBy,
					Limit:     limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Type", "Status", "Version", "Updated"})
				for _, d := range items {
					tw.AppendRow(table.Row{d.ID, d.Title, d.Type, d.Status, d.Version, d.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&dtype, "type", "", "filter by type")
	cmd.Flags().StringVar(&createdBy, "created-by", "", "filter by creator")
	cmd.Flags().IntVar(&limit, "limit", 50, "max results")
	return cmd
}

func deliverableShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a deliverable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ string) error {
				d, err := e.Repo.GetDeliverable(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
}

func deliverableEditCmd() *cobra.Command {
	var title, description, dtype string
	var fileFlags []string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit deliverable metadata (draft or needs_changes only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := actorRole()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ string) error {
				opts := engine.UpdateOptions{ID: args[0], ActorID: actorID(), ActorRole: role}
				if cmd.Flags().Changed("title") {
					opts.Title = &title
				}
				if cmd.Flags().Changed("description") {
					opts.Description = &description
				}
				if cmd.Flags().Changed("type") {
					opts.Type = &dtype
				}
				if cmd.Flags().Changed("file") {
					files, err := parseFileFlags(fileFlags)
					if err != nil {
						return err
					}
					opts.Files = files
					opts.FilesSet = true
				}
				d, err := e.Update(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "deliverable title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&dtype, "type", "", "deliverable type")
	cmd.Flags().StringArrayVar(&fileFlags, "file", nil, "replacement file list (name=url or url), repeatable")
	return cmd
}

func deliverableSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <id>",
		Short: "Submit a deliverable for client review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := actorRole()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ string) error {
				d, err := e.SubmitForReview(ctx, args[0], role, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
}

func deliverableApproveCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a deliverable under review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := actorRole()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ string) error {
				d, err := e.Approve(ctx, args[0], role, actorID(), message)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&message, "message", "", "optional approval message")
	return cmd
}

func deliverableRequestChangesCmd() *cobra.Command {
	var feedback string
	cmd := &cobra.Command{
		Use:   "request-changes <id>",
		Short: "Send a deliverable back for revisions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := actorRole()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ string) error {
				d, err := e.RequestChanges(ctx, args[0], role, actorID(), feedback)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&feedback, "feedback", "", "what needs to change (required)")
	_ = cmd.MarkFlagRequired("feedback")
	return cmd
}

func deliverableDeliverCmd() *cobra.Command {
	var notes string
	var fileFlags []string
	cmd := &cobra.Command{
		Use:   "deliver <id>",
		Short: "Mark an approved deliverable as delivered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := actorRole()
			if err != nil {
				return err
			}
			files, err := parseFileFlags(fileFlags)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ string) error {
				d, err := e.Deliver(ctx, args[0], role, actorID(), notes, files)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "delivery notes")
	cmd.Flags().StringArrayVar(&fileFlags, "file", nil, "final file (name=url or url), repeatable")
	return cmd
}

func deliverableDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a deliverable (not allowed once delivered)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := actorRole()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ string) error {
				return e.Delete(ctx, args[0], role, actorID())
			})
		},
	}
}

func deliverableNotesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notes <id>",
		Short: "Show review history for a deliverable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ string) error {
				notes, err := e.Repo.ListReviewNotes(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(notes)
			})
		},
	}
}

func inboxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inbox",
		Short: "Deliverables waiting on you",
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := actorRole()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				items, err := e.Repo.ListDeliverables(ctx, repo.DeliverableFilters{ProjectID: projectID})
				if err != nil {
					return err
				}
				inbox := engine.BuildInbox(items, role)
				if viper.GetBool("json") {
					return printJSON(inbox)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Version", "Reason"})
				for _, item := range inbox {
					d := item.Deliverable
					tw.AppendRow(table.Row{d.ID, d.Title, d.Status, d.Version, item.Reason})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func memberCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "member", Short: "Manage project members"}
	cmd.AddCommand(memberAddCmd())
	cmd.AddCommand(memberListCmd())
	cmd.AddCommand(memberRemoveCmd())
	return cmd
}

func memberAddCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a project member",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" || role == "" {
				return fmt.Errorf("--actor and --role required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				m, err := e.AddMember(ctx, projectID, target, domain.Role(role), actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "role (admin or client)")
	return cmd
}

func memberListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List project members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				items, err := e.Repo.ListMembers(ctx, projectID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func memberRemoveCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a project member",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" {
				return fmt.Errorf("--actor required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				return e.Repo.RemoveMembership(ctx, projectID, target)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyRevokeCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var actor, role, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				return fmt.Errorf("--actor required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				secret := uuid.New().String()
				key := domain.APIKey{
					ID:        uuid.New().String(),
					ActorID:   actor,
					Role:      domain.Role(role),
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				// the secret is shown once and never stored in the clear
				return printJSONOrTable(map[string]string{
					"id":      key.ID,
					"actor":   key.ActorID,
					"role":    string(key.Role),
					"api_key": secret,
				})
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "client", "role (admin or client)")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "filter by actor id")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: creations, submissions, reviews, deliveries.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				events, err := e.Repo.LatestEvents(ctx, n, projectID, evtType, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
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
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveProject(cmd.Context(), workspace, viper.GetString("project"), actorID(), r)
			if err != nil {
				return err
			}
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync()
			e := engine.New(conn)
			e.Relay = notify.NewLogRelay(logger)
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("REVIEWDESK_JWT_SECRET"),
				AllowLegacyActorHeader: cfg.Auth.AllowLegacyActorHdr,
				Logger:                 logger,
			}
			if cfg.Auth.JWTSecret != "" && authCfg.JWTSecret == "" {
				authCfg.JWTSecret = cfg.Auth.JWTSecret
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowLegacyActorHeader {
				return fmt.Errorf("REVIEWDESK_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(e, cfg, logger)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Info("serving", zap.String("addr", addr), zap.String("base_path", basePath))
			fmt.Printf("Serving Reviewdesk API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
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

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	projectID, _, err := app.ResolveProject(ctx, workspace, viper.GetString("project"), actorID(), r)
	if err != nil {
		return err
	}
	e := engine.New(conn)
	return fn(ctx, e, projectID)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
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
	return os.WriteFile(path, []byte(content), 0o644)
}
