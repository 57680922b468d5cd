package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/signatory-approval-api/internal/approval"
	"github.com/noah-isme/signatory-approval-api/internal/container"
	"github.com/noah-isme/signatory-approval-api/internal/models"
	"github.com/noah-isme/signatory-approval-api/internal/service"
	"github.com/noah-isme/signatory-approval-api/pkg/config"
	"github.com/noah-isme/signatory-approval-api/pkg/logger"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "approvalctl",
		Short:         "Operational commands for the signatory approval API",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newMigrateCmd(), newDispatchCmd(), newTokenCmd())
	return root
}

func bootstrap(ctx context.Context) (*container.Container, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	app, err := container.Open(ctx, cfg, logr)
	if err != nil {
		return nil, nil, err
	}
	return app, logr, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, _, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			applied, err := app.Migrate(cmd.Context())
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied: %s\n", strings.Join(applied, ", "))
			return nil
		},
	}
}

func newDispatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Run one notification dispatch pass",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, _, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()
			if app.Dispatcher == nil {
				return fmt.Errorf("dispatch requires redis")
			}
			result, err := app.Dispatcher.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			printDispatch(cmd, result)
			return nil
		},
	}
}

func printDispatch(cmd *cobra.Command, result service.DispatchResult) {
	fmt.Fprintf(cmd.OutOrStdout(), "attempted=%d sent=%d failed=%d\n", result.Attempted, result.Sent, result.Failed)
}

type tokenOptions struct {
	userID int64
	role   string
	org    int64
	name   string
	ttl    time.Duration
}

func newTokenCmd() *cobra.Command {
	opts := &tokenOptions{}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			token, expires, err := issueToken(cfg, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().Int64Var(&opts.userID, "user", 0, "user id")
	cmd.Flags().StringVar(&opts.role, "role", "", "session role, e.g. OFFICER or DEAN")
	cmd.Flags().Int64Var(&opts.org, "org", 0, "organization id, 0 for none")
	cmd.Flags().StringVar(&opts.name, "name", "", "display name")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

// issueToken only needs the JWT settings, so it never opens the database.
func issueToken(cfg *config.Config, opts *tokenOptions) (string, time.Time, error) {
	auth := service.NewAuthService(approval.DefaultRegistry(), nil, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	actor := models.Actor{
		UserID: opts.userID,
		Role:   approval.Role(strings.ToUpper(strings.TrimSpace(opts.role))),
		Name:   opts.name,
	}
	if opts.org > 0 {
		org := opts.org
		actor.OrganizationID = &org
	}
	return auth.IssueToken(actor, opts.ttl)
}
