package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"sitcomledger/internal/httpapi"
	"sitcomledger/pkg/domain"
)

type recordOutput struct {
	Kind     domain.RecordKind `json:"kind"`
	Record   domain.Record     `json:"record"`
	Warnings []string          `json:"warnings,omitempty"`
}

func newRecordOutput(rec domain.Record, res domain.Result) recordOutput {
	out := recordOutput{Kind: rec.Kind(), Record: rec}
	for _, v := range res.Violations {
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s (%s): %s", v.Rule, v.Severity, v.Message))
	}
	return out
}

// writeFlags are shared by grant and approve.
type writeFlags struct {
	caller   string
	student  uint64
	code     uint32
	semester uint16
	year     uint16
}

func (f *writeFlags) bind(cmd *cobra.Command, codeFlag, codeUsage string) {
	fs := cmd.Flags()
	fs.StringVar(&f.caller, "caller", "", "identity of the staff member")
	fs.Uint64Var(&f.student, "student", 0, "student id")
	fs.Uint32Var(&f.code, codeFlag, 0, codeUsage)
	fs.Uint16Var(&f.semester, "semester", 0, "semester (1 or 2)")
	fs.Uint16Var(&f.year, "year", 0, "calendar year")
	for _, name := range []string{"student", codeFlag, "semester", "year"} {
		_ = cmd.MarkFlagRequired(name)
	}
}

func (c *cli) grantCmd() *cobra.Command {
	var f writeFlags
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Record a competence granted by staff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.code > math.MaxUint16 {
				return fmt.Errorf("competence %d out of range", f.code)
			}
			rec, res, err := c.app.svc.GrantCompetenceByStaff(cmd.Context(), domain.Identity(f.caller),
				domain.StudentID(f.student), domain.CompetenceID(f.code), f.semester, f.year)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), newRecordOutput(rec, res))
		},
	}
	f.bind(cmd, "competence", "competence code, e.g. 30001")
	return cmd
}

func (c *cli) approveCmd() *cobra.Command {
	var f writeFlags
	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Record an approved activity attendance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec, res, err := c.app.svc.ApproveActivity(cmd.Context(), domain.Identity(f.caller),
				domain.StudentID(f.student), domain.ActivityID(f.code), f.semester, f.year)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), newRecordOutput(rec, res))
		},
	}
	f.bind(cmd, "activity", "activity code, e.g. 4000000001")
	return cmd
}

func parseStudent(arg string) (domain.StudentID, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid student id %q", arg)
	}
	return domain.StudentID(id), nil
}

func (c *cli) competenciesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "competencies <student>",
		Short: "List a student's competences in grant order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			student, err := parseStudent(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), c.app.svc.CompetenciesOf(cmd.Context(), student))
		},
	}
}

func (c *cli) activitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activities <student>",
		Short: "List a student's approved activities in approval order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			student, err := parseStudent(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), c.app.svc.ActivitiesOf(cmd.Context(), student))
		},
	}
}

func (c *cli) termCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "term <term> [kind]",
		Short: "List record ids created in a term (e.g. 12019 or 1/2019)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			term, err := domain.ParseTermKey(args[0])
			if err != nil {
				return err
			}
			kinds := domain.RecordKinds()
			if len(args) == 2 {
				kind, err := domain.ParseRecordKind(args[1])
				if err != nil {
					return err
				}
				kinds = []domain.RecordKind{kind}
			}
			out := make(map[domain.RecordKind][]domain.RecordID, len(kinds))
			for _, kind := range kinds {
				ids, err := c.app.svc.RecordsInTerm(cmd.Context(), kind, term)
				if err != nil {
					return err
				}
				out[kind] = ids
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

func (c *cli) recordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "record <kind> <id>",
		Short: "Show a single record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseRecordKind(args[0])
			if err != nil {
				return err
			}
			id, err := domain.ParseRecordID(args[1])
			if err != nil {
				return err
			}
			rec, ok, err := c.app.svc.RecordByID(cmd.Context(), kind, id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s %s not found", kind, id)
			}
			return writeJSON(cmd.OutOrStdout(), newRecordOutput(rec, domain.Result{}))
		},
	}
}

func (c *cli) archiveCmd() *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Write a snapshot of the ledger to the archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			arch, err := c.app.archiver(cmd.Context())
			if err != nil {
				return err
			}
			if list {
				objs, err := arch.List(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), objs)
			}
			snapshot, err := c.app.svc.ExportState()
			if err != nil {
				return err
			}
			obj, err := arch.Archive(cmd.Context(), snapshot)
			if err != nil {
				return err
			}
			c.app.logger.Info("snapshot archived", "key", obj.Key, "size", obj.Size, "driver", arch.Store().Driver())
			return writeJSON(cmd.OutOrStdout(), obj)
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list archived snapshots instead of writing one")
	return cmd
}

func (c *cli) restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore [key|latest]",
		Short: "Load an archived snapshot into the ledger",
		Long: `Load an archived snapshot into the ledger. The memory driver replaces its state.
Journaled stores (sqlite, postgres) replay the snapshot's records into the journal
in their original order and refuse when the journal already holds records.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := "latest"
			if len(args) == 1 {
				key = args[0]
			}
			env, key, err := c.app.restore(cmd.Context(), key)
			if err != nil {
				return err
			}
			c.app.logger.Info("snapshot restored", "key", key, "created_at", env.CreatedAt)
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"key":        key,
				"created_at": env.CreatedAt,
				"counts":     c.app.svc.Counts(),
			})
		},
	}
}

func (c *cli) serveCmd() *cobra.Command {
	var (
		addr    string
		restore string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := c.app
			if addr == "" {
				addr = a.cfg.HTTP.Addr
			}
			if restore != "" {
				_, key, err := a.restore(cmd.Context(), restore)
				if err != nil {
					return err
				}
				a.logger.Info("snapshot restored", "key", key)
			}
			opts := []httpapi.Option{httpapi.WithLogger(a.logger), httpapi.WithGatherer(a.registry)}
			if a.expvar != nil {
				opts = append(opts, httpapi.WithDebugVars())
			}
			if a.cfg.HTTP.JWTSecret != "" {
				resolver, err := httpapi.NewJWTResolver([]byte(a.cfg.HTTP.JWTSecret), a.cfg.HTTP.JWTIssuer)
				if err != nil {
					return err
				}
				opts = append(opts, httpapi.WithResolver(resolver))
			} else {
				a.logger.Warn("no jwt secret configured; write endpoints will reject every request")
			}
			srv := httpapi.New(a.svc, opts...)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(addr) }()
			a.logger.Info("listening", "addr", addr)

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}
			a.logger.Info("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return err
			}
			if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default http.addr)")
	cmd.Flags().StringVar(&restore, "restore", "", "archive key (or \"latest\") to import before serving")
	return cmd
}

func (c *cli) tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:         "token <caller>",
		Short:       "Issue a bearer token for the HTTP API",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{skipApp: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.HTTP.JWTSecret == "" {
				return errors.New("http.jwt_secret is not configured")
			}
			tok, err := httpapi.IssueToken([]byte(c.cfg.HTTP.JWTSecret), args[0], c.cfg.HTTP.JWTIssuer, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}
