// Command ingestor runs one-shot maintenance against the review store:
// schema migration, a manual refresh, and seeding OAuth grants.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"reviewsync/internal/adapters/oauthtoken"
	"reviewsync/internal/adapters/observability"
	redisad "reviewsync/internal/adapters/redis"
	"reviewsync/internal/adapters/sources"
	"reviewsync/internal/app"
	"reviewsync/internal/classify"
	"reviewsync/internal/domain"
	"reviewsync/internal/shared"
	"reviewsync/internal/storage/sqlstore"
)

type env struct {
	cfg  shared.Config
	db   *sql.DB
	repo *sqlstore.Repo
}

func (e *env) close() {
	if e.db != nil {
		_ = e.db.Close()
	}
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := shared.Load()
	if err != nil {
		return nil, err
	}
	log.Logger = observability.NewLogger(cfg.AppEnv)

	db, dialect, err := sqlstore.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	repo := sqlstore.New(db, dialect)
	if err := repo.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &env{cfg: cfg, db: db, repo: repo}, nil
}

func (e *env) refresher() *app.Refresher {
	clock := domain.SystemClock{}
	deps := sources.Deps{Classifier: classify.New(e.cfg.Categories), Clock: clock}
	if e.cfg.GMBEnabled() {
		tm := oauthtoken.New(e.repo, clock, nil)
		tm.Register(sources.GMBService, e.cfg.GMB.ClientID, e.cfg.GMB.ClientSecret, e.cfg.GMB.TokenURL)
		deps.Tokens = tm
	}
	opts := []app.RefresherOption{
		app.WithClock(clock),
		app.WithAdapterTimeout(e.cfg.AdapterTimeout),
	}
	if e.cfg.RedisAddr != "" {
		rc := redisad.New(e.cfg.RedisAddr, e.cfg.RedisPass, e.cfg.RedisDB)
		opts = append(opts, app.WithCache(rc), app.WithLocker(rc))
	}
	return app.NewRefresher(sources.Build(e.cfg, deps), e.repo,
		app.NewMerger(e.cfg.Priority, e.cfg.RatingFloor), opts...)
}

func report(res app.RefreshResult, start time.Time) {
	fmt.Printf("run %s (%s): fetched %s, inserted %s, retired %s, failed %v in %s\n",
		res.RunID, res.Mode,
		humanize.Comma(int64(res.Fetched)),
		humanize.Comma(int64(res.Inserted)),
		humanize.Comma(int64(res.Retired)),
		res.Failed,
		time.Since(start).Round(time.Millisecond))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "ingestor",
		Short:         "Review store maintenance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(migrateCmd(), refreshCmd(), syncCmd(), tokenCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("ingestor failed")
		os.Exit(1)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create tables and indexes if missing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()
			log.Info().Msg("schema up to date")
			return nil
		},
	}
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fetch every source and replace the stored dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()
			start := time.Now()
			res, err := e.refresher().RefreshAll(cmd.Context())
			if err != nil {
				return err
			}
			report(res, start)
			return nil
		},
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch every source and apply only the differences",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()
			start := time.Now()
			res, err := e.refresher().SyncDelta(cmd.Context())
			if err != nil {
				return err
			}
			if res.Skipped {
				fmt.Println("another instance is refreshing; nothing done")
				return nil
			}
			report(res, start)
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "Manage stored OAuth grants"}

	var (
		t         domain.OAuthToken
		expiresIn time.Duration
		account   string
		location  string
	)
	put := &cobra.Command{
		Use:   "put",
		Short: "Insert or replace the grant for a service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if t.AccessToken == "" || t.RefreshToken == "" {
				return errors.New("--access-token and --refresh-token are required")
			}
			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			t.ExpiryDate = time.Now().Add(expiresIn).UTC()
			if account != "" {
				t.AccountID = &account
			}
			if location != "" {
				t.LocationID = &location
			}

			_, err = e.repo.GetToken(cmd.Context(), t.Service)
			switch {
			case errors.Is(err, domain.ErrNotFound):
				err = e.repo.InsertToken(cmd.Context(), t)
			case err == nil:
				err = e.repo.UpdateToken(cmd.Context(), t)
			}
			if err != nil {
				return err
			}
			fmt.Printf("stored %s token, expires %s\n", t.Service, humanize.Time(t.ExpiryDate))
			return nil
		},
	}
	f := put.Flags()
	f.StringVar(&t.Service, "service", sources.GMBService, "service name")
	f.StringVar(&t.AccessToken, "access-token", "", "current access token")
	f.StringVar(&t.RefreshToken, "refresh-token", "", "refresh token")
	f.DurationVar(&expiresIn, "expires-in", time.Hour, "access token lifetime from now")
	f.StringVar(&account, "account-id", "", "business account id")
	f.StringVar(&location, "location-id", "", "business location id")

	cmd.AddCommand(put)
	return cmd
}
