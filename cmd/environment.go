package cmd

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"famsched/internal/api"
	"famsched/internal/auth"
	"famsched/internal/config"
	"famsched/internal/credstore"
	"famsched/internal/session"

	"github.com/briandowns/spinner"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// environment wires the configured store, session and clients for one
// command invocation.
type environment struct {
	config  config.Config
	baseURL string
	store   credstore.Store
	holder  *session.Holder
	backend *api.Backend
	client  *api.Client
	auth    *auth.Service

	// baseURLSource tells which setting baseURL was taken from.
	baseURLSource string
	registry      *prometheus.Registry
}

func newEnvironment() (*environment, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if credentialBackend != "" {
		cfg.Credentials.Backend = credentialBackend
	}

	storageDir := cfg.Credentials.Dir
	if storageDir == "" {
		dir := configPath
		if dir == "" {
			if dir, err = config.DefaultConfigPath(); err != nil {
				return nil, err
			}
		}
		storageDir = filepath.Join(dir, "credentials")
	}

	store, err := credstore.New(credstore.Config{
		Backend:        cfg.Credentials.Backend,
		StorageDir:     storageDir,
		KeyringService: cfg.Credentials.KeyringService,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	baseURL, source := config.ResolveBaseURL(apiURL, cfg.API)
	backend := api.NewBackend(baseURL,
		api.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		api.WithUserAgent("famsched/"+rootCmd.Version),
	)

	holder := session.NewHolder()
	registry := prometheus.NewRegistry()
	client := api.NewClient(backend, store, holder, api.WithMetrics(api.NewMetrics(registry)))

	return &environment{
		config:        cfg,
		baseURL:       baseURL,
		store:         store,
		holder:        holder,
		backend:       backend,
		client:        client,
		auth:          auth.NewService(backend, store, holder),
		baseURLSource: source,
		registry:      registry,
	}, nil
}

// bootstrap restores the stored session, showing progress unless quiet.
func (e *environment) bootstrap(ctx context.Context) (auth.Result, error) {
	policy, ok := auth.ParseValidationErrorPolicy(e.config.Session.ValidationErrorPolicy)
	if !ok {
		return auth.Result{}, fmt.Errorf("unknown validation error policy %q", e.config.Session.ValidationErrorPolicy)
	}

	var opts []auth.BootstrapOption
	opts = append(opts, auth.WithValidationErrorPolicy(policy))

	if !quiet {
		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = " Restoring session..."
		s.Start()
		defer s.Stop()
		opts = append(opts, auth.WithStateObserver(func(state auth.State) {
			if state == auth.StateRefreshing {
				s.Suffix = " Refreshing session..."
			}
		}))
	}

	return auth.NewBootstrapper(e.backend, e.store, e.holder, opts...).Bootstrap(ctx)
}

// requireSession bootstraps and fails with auth.ErrNotLoggedIn when no valid
// session could be restored.
func (e *environment) requireSession(ctx context.Context) error {
	result, err := e.bootstrap(ctx)
	if err != nil {
		return err
	}
	if !result.IsAuthenticated {
		return fmt.Errorf("%w: run 'famsched auth login' first", auth.ErrNotLoggedIn)
	}
	return nil
}

// withSpinner runs fn with a progress message unless quiet.
func withSpinner(message string, fn func() error) error {
	if quiet {
		return fn()
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Start()
	defer s.Stop()
	return fn()
}

// printf prints non-essential output unless --quiet is set.
func printf(cmd *cobra.Command, format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), format, args...)
	}
}
