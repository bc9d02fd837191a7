package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"coworkgate/internal/app"
	"coworkgate/internal/membership"
	"coworkgate/internal/plans"
	"coworkgate/internal/queue"
	"coworkgate/internal/types"
)

// reconcileConcurrency bounds parallel gateway fetches.
const reconcileConcurrency = 4

func migrateCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate up|down|status",
		Short:     "Apply, roll back or list the embedded schema migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := d.loadConfig()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			if cfg.Database.Driver != "postgres" {
				return fmt.Errorf("migrations need STORE_DRIVER=postgres, got %q", cfg.Database.Driver)
			}
			if err := d.migrate(cmd.Context(), cfg.Database.URL.Unmask(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: ok\n", args[0])
			return nil
		},
	}
}

func checkinCmd(d *deps, logger func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "checkin <access-code>",
		Short: "Toggle a student's check-in as the reception kiosk would",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, d, logger, func(ctx context.Context, a *app.App) error {
				res, err := a.Gate.Toggle(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"action":    res.Action,
					"studentId": res.Student.ID,
					"fullName":  res.Student.FullName,
					"session":   res.Session,
				})
			})
		},
	}
}

type reconcileLine struct {
	ProviderPaymentID string `json:"providerPaymentId"`
	Outcome           string `json:"outcome,omitempty"`
	Applied           bool   `json:"applied,omitempty"`
	Enqueued          bool   `json:"enqueued,omitempty"`
	Error             string `json:"error,omitempty"`
}

func reconcileCmd(d *deps, logger func() *slog.Logger) *cobra.Command {
	var enqueue bool
	var reason string

	cmd := &cobra.Command{
		Use:   "reconcile <payment-id>...",
		Short: "Re-fetch gateway payments and reconcile them",
		Long: `Re-fetch each payment from Mercado Pago and apply its status through the
webhook path. Payments must already be recorded locally.

With --enqueue the ids are pushed onto the replay queue instead, for the
reconcile worker to process.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]types.ProviderID, 0, len(args))
			for _, raw := range args {
				id, err := types.ParseProviderID(raw)
				if err != nil {
					return fmt.Errorf("invalid payment id %q: %w", raw, err)
				}
				ids = append(ids, id)
			}

			return withApp(cmd, d, logger, func(ctx context.Context, a *app.App) error {
				if enqueue && a.Replay == nil {
					return errors.New("--enqueue needs SQS_RECONCILE_REPLAY to be configured")
				}

				lines := make([]reconcileLine, len(ids))
				var mu sync.Mutex
				failed := 0

				g, gCtx := errgroup.WithContext(ctx)
				g.SetLimit(reconcileConcurrency)
				for i, id := range ids {
					g.Go(func() error {
						line := reconcileLine{ProviderPaymentID: id.String()}
						if enqueue {
							err := a.Replay.EnqueueReplay(gCtx, queue.ReplayMessage{
								ProviderPaymentID: id,
								Source:            types.SourceReplay,
								Reason:            reason,
								EnqueuedAt:        time.Now().UTC(),
							})
							line.Enqueued = err == nil
							if err != nil {
								line.Error = err.Error()
							}
						} else {
							res, err := a.Payments.Sync(gCtx, id, types.SourceReplay)
							if err != nil {
								line.Error = err.Error()
							} else {
								line.Outcome, line.Applied = res.Outcome, res.Applied
							}
						}

						mu.Lock()
						lines[i] = line
						if line.Error != "" {
							failed++
						}
						mu.Unlock()
						// Failures are reported per id; one does not cancel the rest.
						return nil
					})
				}
				_ = g.Wait()

				if err := printJSON(cmd.OutOrStdout(), lines); err != nil {
					return err
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d payments failed", failed, len(ids))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "push ids onto the replay queue instead of reconciling inline")
	cmd.Flags().StringVar(&reason, "reason", "operator", "reason recorded on enqueued replay messages")
	return cmd
}

func membershipCmd(d *deps, logger func() *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "membership",
		Short: "Inspect or transition a student's membership",
	}

	type view struct {
		StudentID       string                 `json:"studentId"`
		FullName        string                 `json:"fullName"`
		Active          bool                   `json:"activo"`
		Membership      types.Membership       `json:"membership"`
		EffectiveStatus types.MembershipStatus `json:"effectiveStatus"`
	}
	show := func(cmd *cobra.Command, s *types.Student) error {
		return printJSON(cmd.OutOrStdout(), view{
			StudentID:       s.ID,
			FullName:        s.FullName,
			Active:          s.Active,
			Membership:      s.Membership,
			EffectiveStatus: membership.EffectiveStatus(s.Membership, time.Now()),
		})
	}

	transition := func(use, short string, op func(*membership.Reconciler) func(context.Context, string) (*types.Student, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <student-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, d, logger, func(ctx context.Context, a *app.App) error {
					ctx = types.WithActor(ctx, types.Actor{ID: "gatectl", Type: types.ActorTypeAdmin})
					s, err := op(a.Reconciler)(ctx, args[0])
					if err != nil {
						return err
					}
					return show(cmd, s)
				})
			},
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status <student-id>",
			Short: "Show the stored and effective membership status",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, d, logger, func(ctx context.Context, a *app.App) error {
					s, err := a.Store.Students().GetByID(ctx, args[0])
					if err != nil {
						return err
					}
					return show(cmd, s)
				})
			},
		},
		transition("cancel", "Cancel an active or pending membership",
			func(r *membership.Reconciler) func(context.Context, string) (*types.Student, error) { return r.Cancel }),
		transition("reset", "Return a cancelled or expired membership to pending",
			func(r *membership.Reconciler) func(context.Context, string) (*types.Student, error) { return r.Reset }),
	)
	return cmd
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <plan-name> <price>",
		Short: "Print whether a plan bills as daily or monthly",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid price %q: %w", args[1], err)
			}
			kind := plans.ClassifyPlan(args[0], price)
			validity := "30 days"
			if kind == types.PlanDaily {
				validity = "until 23:59 of the purchase day"
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"plan":     args[0],
				"price":    price,
				"kind":     kind,
				"validity": validity,
			})
		},
	}
}
