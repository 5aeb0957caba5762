package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/coreos-platform/seccore"
	"github.com/coreos-platform/seccore/password"
)

const loadtestPassword = "loadtest-password-1"

type loadtestOptions struct {
	Users       int
	Concurrency int
	Ops         int
	RedisAddr   string
}

type userState struct {
	email   string
	mu      sync.Mutex
	access  string
	refresh string
}

func newLoadtestCmd(cli *CLI, root *rootOptions) *cobra.Command {
	var options loadtestOptions

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure validate and refresh throughput",
		Long: `Seed synthetic users, log each one in, then run a validate phase and a
refresh phase against the engine and print latency percentiles.
Without --redis-addr an in-process miniredis is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if options.Users <= 0 || options.Concurrency <= 0 || options.Ops <= 0 {
				return errors.New("users, concurrency and ops must be > 0")
			}
			cfg, err := seccore.LoadConfig(root.ConfigFile)
			if err != nil {
				return err
			}
			// Every seeded user logs in once; keep the budget out of the way.
			if cfg.RateLimit.LoginLimit < options.Users {
				cfg.RateLimit.LoginLimit = options.Users
			}

			logger, err := newLogger(cli, root.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			client, target, release, err := redisClient(options.RedisAddr, cfg.Redis.Password, cfg.Redis.DB)
			if err != nil {
				return err
			}
			defer release()
			cli.Output("using %s", target)

			states, store, err := seedUsers(cfg, options.Users)
			if err != nil {
				return err
			}

			engine, err := seccore.New().
				WithConfig(cfg).
				WithRedis(client).
				WithCredentialStore(store).
				WithLogger(logger).
				Build()
			if err != nil {
				return err
			}
			defer engine.Close()

			ctx := cmd.Context()
			start := time.Now()
			if err := loginAll(ctx, engine, states, options.Concurrency); err != nil {
				return err
			}
			cli.Output("logged in %d users in %s", len(states), time.Since(start).Round(time.Millisecond))

			validate := runPhase(options.Ops, options.Concurrency, 7919, func(r *rand.Rand) error {
				s := &states[r.Intn(len(states))]
				s.mu.Lock()
				access := s.access
				s.mu.Unlock()
				_, err := engine.ValidateToken(ctx, access)
				return err
			})
			refresh := runPhase(options.Ops, options.Concurrency, 6151, func(r *rand.Rand) error {
				s := &states[r.Intn(len(states))]
				s.mu.Lock()
				defer s.mu.Unlock()
				pair, err := engine.RefreshToken(ctx, s.refresh)
				if err != nil {
					return err
				}
				s.access, s.refresh = pair.AccessToken, pair.RefreshToken
				return nil
			})

			cli.Output("---- results ----")
			printStats(cli, "validate", validate)
			printStats(cli, "refresh", refresh)
			return nil
		},
	}

	cmd.Flags().IntVar(&options.Users, "users", 1000, "Number of users to seed")
	cmd.Flags().IntVar(&options.Concurrency, "concurrency", 64, "Number of concurrent workers")
	cmd.Flags().IntVar(&options.Ops, "ops", 20000, "Operations per phase")
	cmd.Flags().StringVar(&options.RedisAddr, "redis-addr", "", "Redis address; empty starts miniredis")
	return cmd
}

// seedUsers shares one argon2id hash across every user; hashing per user
// would dominate the run.
func seedUsers(cfg seccore.Config, n int) ([]userState, seccore.CredentialStore, error) {
	a, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, nil, err
	}
	hash, err := a.Hash(loadtestPassword)
	if err != nil {
		return nil, nil, err
	}

	states := make([]userState, n)
	users := make(map[string]seccore.UserRecord, n)
	for i := range states {
		email := fmt.Sprintf("user-%d@loadtest.invalid", i)
		states[i].email = email
		users[email] = seccore.UserRecord{
			UserID:         fmt.Sprintf("u%d", i),
			Email:          email,
			OrganizationID: "loadtest",
			PasswordHash:   hash,
			Roles:          []string{"standard_user"},
		}
	}

	store := seccore.CredentialStoreFunc(func(_ context.Context, email string) (*seccore.UserRecord, error) {
		u, ok := users[strings.ToLower(email)]
		if !ok {
			return nil, seccore.ErrUserNotFound
		}
		return &u, nil
	})
	return states, store, nil
}

func loginAll(ctx context.Context, engine *seccore.Engine, states []userState, concurrency int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := range states {
		s := &states[i]
		g.Go(func() error {
			pair, err := engine.AuthenticateUser(ctx, s.email, loadtestPassword, seccore.AuthOptions{})
			if err != nil {
				return fmt.Errorf("login %s: %w", s.email, err)
			}
			s.access, s.refresh = pair.AccessToken, pair.RefreshToken
			return nil
		})
	}
	return g.Wait()
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func runPhase(ops, concurrency int, seedStride int64, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seedStride))
			for {
				if int(atomic.AddInt64(&cursor, 1))-1 >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(cli *CLI, name string, s phaseStats) {
	cli.Output("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
