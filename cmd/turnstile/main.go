package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltyvip/turnstile/authsync"
	"github.com/saltyvip/turnstile/client"
	"github.com/saltyvip/turnstile/errorhandler"
	"github.com/saltyvip/turnstile/guardian"
	"github.com/saltyvip/turnstile/internal/config"
	"github.com/saltyvip/turnstile/security"
	"github.com/saltyvip/turnstile/storage"
	"github.com/saltyvip/turnstile/subscription"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if err := rootCommand().Execute(); err != nil {
		response := errorhandler.HandleError(err, "cli")
		fmt.Fprintln(os.Stderr, response.UserMessage)
		if response.Suggestion != "" {
			fmt.Fprintln(os.Stderr, response.Suggestion)
		}
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "turnstile",
		Short:         "Sign in to the Surfing platform from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(loginCommand(), logoutCommand(), statusCommand(), renewCommand())
	return root
}

// app bundles everything a command needs, built once per invocation.
type app struct {
	config   config.Config
	client   *client.Client
	security *security.Manager
	sync     *authsync.Broadcaster
	guardian *guardian.Guardian
}

func bootstrap(ctx context.Context) (*app, func(), error) {
	c := config.New()
	if err := config.Validate(c); err != nil {
		return nil, nil, err
	}

	dataFolder := c.GetDataFolder()
	store, err := storage.NewFileStore(filepath.Join(dataFolder, "store"))
	if err != nil {
		return nil, nil, errors.Wrap(err, "[bootstrap] NewFileStore")
	}

	securityManager := security.NewManager(security.Settings{
		MaxNonceAge:     c.GetMaxNonceAge(),
		MaxRetries:      c.GetMaxRetries(),
		LockoutDuration: c.GetLockoutDuration(),
		AllowedOrigins: security.AllowedOriginSet(append(
			[]string{security.OriginOf(c.GetRedirectURI()), c.GetSiteURL()},
			c.GetAllowedPreviewOrigins()...)...),
		EnforceHTTPS: c.GetEnforceHTTPS(),
	}, security.WithMetrics(prometheus.DefaultRegisterer))

	broadcaster := authsync.New(c.GetSyncStatePath())
	if err := broadcaster.Init(); err != nil {
		securityManager.Close()
		return nil, nil, err
	}

	sessions, err := security.NewSessionStore(store, filepath.Join(dataFolder, "session.key"))
	if err != nil {
		securityManager.Close()
		broadcaster.Cleanup()
		return nil, nil, err
	}

	tokenGuardian := guardian.New(store, c.GetTokenCacheDuration())

	authClient, err := client.New(ctx, client.Config{
		Authority:     c.GetAuthority(),
		ClientID:      c.GetClientID(),
		RedirectURI:   c.GetRedirectURI(),
		PostLogoutURI: c.GetPostLogoutURI(),
		OrgID:         c.GetOrgID(),
		IdPHints:      c.GetIdPHints(),
	}, client.Deps{
		Security: securityManager,
		Sync:     broadcaster,
		Guardian: tokenGuardian,
		Sessions: sessions,
	})
	if err != nil {
		securityManager.Close()
		broadcaster.Cleanup()
		return nil, nil, err
	}

	cleanup := func() {
		authClient.Close()
		broadcaster.Cleanup()
		securityManager.Close()
	}

	return &app{
		config:   c,
		client:   authClient,
		security: securityManager,
		sync:     broadcaster,
		guardian: tokenGuardian,
	}, cleanup, nil
}

func loginCommand() *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in through the browser",
		RunE: func(cmd *cobra.Command, _ []string) (returnError error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Msg("recovered from panic")
					debug.PrintStack()
					returnError = errors.New("panic recovered")
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, cleanup, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			displayAppname(app.config.GetAppName())
			log.Info().Str("authority", app.config.GetAuthority()).Msg("opening browser for sign-in")

			user, err := app.client.SignInPopup(ctx, provider)
			if err != nil {
				return err
			}

			sub := subscription.SubscriptionFromRoles(user.Roles, subscription.DefaultAccessConfig())
			fmt.Printf("Signed in as %s (%s)\n", user.Profile.Name, user.Profile.Email)
			fmt.Printf("Subscription: %s\n", subscription.TierDisplayName(sub.Tier))
			return nil
		},
	}
	cmd.Flags().StringVarP(&provider, "provider", "p", "", "identity provider to pre-select (google, github, apple, microsoft)")
	return cmd
}

func logoutCommand() *cobra.Command {
	var localOnly bool
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, cleanup, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if err := app.client.SignOut(cmd.Context(), localOnly); err != nil {
				return err
			}
			fmt.Println("Signed out.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&localOnly, "local", false, "clear the local session without ending the provider session")
	return cmd
}

func statusCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, cleanup, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			session := app.client.GetCurrentSession(cmd.Context())
			if session == nil {
				fmt.Println("Not signed in.")
				return nil
			}

			sub := subscription.SubscriptionFromRoles(session.Roles, subscription.DefaultAccessConfig())
			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(map[string]any{
					"user":      session.User,
					"expiresAt": session.ExpiresAt,
					"roles":     session.Roles,
					"tier":      sub.Tier,
				})
			}

			fmt.Printf("Signed in as %s (%s)\n", session.User.Name, session.User.Email)
			fmt.Printf("Subscription: %s (%s)\n",
				subscription.TierDisplayName(sub.Tier), subscription.StatusDisplayName(sub.Status))
			fmt.Printf("Session expires: %s\n", session.ExpiresAt.Format(time.RFC1123))
			if remaining := app.guardian.TimeRemaining(); remaining > 0 {
				fmt.Printf("Token cache: valid for another %s\n", remaining.Round(time.Second))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the session as JSON")
	return cmd
}

func renewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "renew",
		Short: "Force a silent token renewal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, cleanup, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			user := app.client.RenewToken(cmd.Context())
			if user == nil {
				return errors.New("token renewal failed: sign in again")
			}
			fmt.Printf("Session renewed, expires %s\n", user.ExpiresAt.Format(time.RFC1123))
			return nil
		},
	}
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
