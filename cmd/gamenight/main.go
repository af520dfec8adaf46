package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"gamenight/internal/cloud"
	"gamenight/internal/config"
	"gamenight/internal/identity"
	"gamenight/internal/log"
	"gamenight/internal/prefs"
	"gamenight/internal/retry"
	"gamenight/internal/session"
	"gamenight/internal/store"
	"gamenight/internal/store/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// env bundles everything a command needs once configuration is loaded.
type env struct {
	cfg    config.Config
	logger *zerolog.Logger
	store  store.Store
	flow   *session.Flow
}

func (e *env) close() {
	if closer, ok := e.store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "gamenight",
		Short:         "Join a game night session and share your game preferences",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	root.AddCommand(
		newJoinCmd(&configPath),
		newResumeCmd(&configPath),
		newReadyCmd(&configPath),
		newLeaveCmd(&configPath),
		newWatchCmd(&configPath),
	)
	return root
}

func setup(configPath string) (*env, error) {
	bootstrap := log.New("info")
	cfg, _, err := config.Load(bootstrap, configPath)
	if err != nil {
		return nil, err
	}
	logger := log.New(cfg.LogLevel)

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	client := cloud.NewClient(cfg.HostURL, &http.Client{Timeout: cfg.CallTimeout}, logger)
	prefSvc := prefs.NewService(st, logger)
	resolver := identity.NewResolver(st, logger)
	reads := retry.New(retryPolicy(cfg.Reads), logger)
	mutations := retry.New(retryPolicy(cfg.Mutations), logger)
	flow := session.NewFlow(client, st, prefSvc, resolver, reads, mutations, logger)

	return &env{cfg: cfg, logger: logger, store: st, flow: flow}, nil
}

func retryPolicy(p config.RetryPolicy) retry.Policy {
	return retry.Policy{
		MaxAttempts:  p.MaxAttempts,
		BaseDelay:    p.BaseDelay,
		MaxDelay:     p.MaxDelay,
		JitterFactor: p.JitterFactor,
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newJoinCmd(configPath *string) *cobra.Command {
	var (
		name   string
		slot   string
		mode   string
		source string
	)

	cmd := &cobra.Command{
		Use:   "join <invite-link>",
		Short: "Join a session from an invite link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer e.close()

			ctx, stop := signalContext()
			defer stop()

			if err := e.flow.Start(ctx, args[0]); err != nil {
				return flowError(e.flow, err)
			}

			state := e.flow.State()
			if state.State == session.StatePreview {
				printPreview(cmd, state)
				if name == "" {
					cmd.Println("Pass --name to claim a seat.")
					return nil
				}
				if err := e.flow.Join(ctx, name, slot); err != nil {
					return flowError(e.flow, err)
				}
			}

			if e.flow.State().State == session.StateModeSelect && mode != "" {
				if err := e.flow.ChooseMode(ctx, session.GuestMode(mode)); err != nil {
					return flowError(e.flow, err)
				}
			}
			if e.flow.State().State == session.StatePreferenceSource && source != "" {
				if err := e.flow.ChooseSource(ctx, session.PreferenceSource(source)); err != nil {
					return flowError(e.flow, err)
				}
			}

			printState(cmd, e.flow.State())
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name to join with")
	cmd.Flags().StringVar(&slot, "slot", "", "named slot participant id to claim")
	cmd.Flags().StringVar(&mode, "mode", "", "preference mode: shared or local")
	cmd.Flags().StringVar(&source, "source", "", "starting preferences: host or local")
	return cmd
}

func newResumeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume the session stored on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer e.close()

			ctx, stop := signalContext()
			defer stop()

			if err := e.flow.Resume(ctx); err != nil {
				return flowError(e.flow, err)
			}
			printState(cmd, e.flow.State())
			return nil
		},
	}
}

func newReadyCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "Submit your preference list to the host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer e.close()

			ctx, stop := signalContext()
			defer stop()

			if err := e.flow.Resume(ctx); err != nil {
				return flowError(e.flow, err)
			}
			if err := e.flow.Ready(ctx); err != nil {
				return flowError(e.flow, err)
			}
			cmd.Println("Preferences submitted. Waiting for the host to pick a game.")
			return nil
		},
	}
}

func newLeaveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "leave",
		Short: "Leave the stored session and clear it from this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer e.close()

			ctx, stop := signalContext()
			defer stop()

			if err := e.flow.Resume(ctx); err != nil && !errors.Is(err, session.ErrNoStoredSession) {
				e.logger.Warn().Err(err).Msg("resume before leave failed, clearing anyway")
			}
			if err := e.flow.Abandon(ctx); err != nil {
				return err
			}
			cmd.Println("Left the session.")
			return nil
		},
	}
}

func newWatchCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the session's live participant view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer e.close()

			ctx, stop := signalContext()
			defer stop()

			if err := e.flow.Resume(ctx); err != nil {
				return flowError(e.flow, err)
			}
			state := e.flow.State()

			watcher := session.NewWatcher(e.cfg.EventsURL, state.SessionID, e.store,
				func(users []prefs.MergedUser, view map[string][]*store.PreferenceRecord) {
					cmd.Println("participants:")
					for _, user := range users {
						marker := " "
						if user.IsLive {
							marker = "*"
						}
						cmd.Printf("  %s %s (%d preferences)\n", marker, user.DisplayName, len(view[user.Username]))
					}
				}, e.logger)

			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}

func printPreview(cmd *cobra.Command, state session.GuestSessionState) {
	p := state.Preview
	if p == nil {
		return
	}
	cmd.Printf("Session %s: %s, %d/%d seats claimed, %s share mode\n",
		p.SessionID, p.Status, p.ClaimedCount, p.Capacity, p.ShareMode)
	for _, slot := range p.NamedSlots {
		cmd.Printf("  reserved seat: %s (--slot %s)\n", slot.DisplayName, slot.ParticipantID)
	}
}

func printState(cmd *cobra.Command, state session.GuestSessionState) {
	switch state.State {
	case session.StatePreferences, session.StateLocalWizard:
		cmd.Printf("Joined %s as %s. Edit your list, then run: gamenight ready\n", state.SessionID, state.DisplayName)
	case session.StateModeSelect:
		cmd.Println("Choose how to build your list: rerun with --mode shared or --mode local.")
	case session.StatePreferenceSource:
		cmd.Println("You have saved preferences on this device: rerun with --source host or --source local.")
	case session.StateWaiting:
		cmd.Println("Preferences submitted. Waiting for the host to pick a game.")
	case session.StatePreview:
		// already printed
	default:
		cmd.Printf("State: %s\n", state.State)
	}
	if state.ErrorMessage != "" {
		cmd.Println(state.ErrorMessage)
	}
}

// flowError prefers the flow's human-readable message over the raw error.
func flowError(flow *session.Flow, err error) error {
	if msg := flow.State().ErrorMessage; msg != "" {
		return fmt.Errorf("%s", msg)
	}
	return err
}
