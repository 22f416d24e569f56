package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/you/groupwatch/internal/config"
	"github.com/you/groupwatch/internal/core"
	"github.com/you/groupwatch/internal/filter"
	"github.com/you/groupwatch/internal/forward"
	httpadmin "github.com/you/groupwatch/internal/http"
	"github.com/you/groupwatch/internal/httpapi"
	"github.com/you/groupwatch/internal/metrics"
	"github.com/you/groupwatch/internal/profile"
	"github.com/you/groupwatch/internal/store"
	"github.com/you/groupwatch/internal/supervisor"
	"github.com/you/groupwatch/internal/telegram"
	"github.com/you/groupwatch/internal/version"
	"github.com/you/groupwatch/internal/watchset"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("listener: .env: %v", err)
	}

	var (
		versionFlag  bool
		accountsFile string
		pushURL      string
		storeKind    string
		sqlitePath   string
		storeFile    string
		httpAddr     string
		logLevel     string
		verboseDrops bool
	)

	flag.BoolVar(&versionFlag, "version", false, "Print build version and exit")
	flag.StringVar(&accountsFile, "accounts", "", "Path to the accounts file (JSON or YAML)")
	flag.StringVar(&pushURL, "push-url", "", "Sink URL that receives forwarded payloads")
	flag.StringVar(&storeKind, "store", "", "Config store backend: sqlite, postgres or file")
	flag.StringVar(&sqlitePath, "sqlite", "", "Path to SQLite config store")
	flag.StringVar(&storeFile, "store-file", "", "Path to YAML config store")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP status/admin address (e.g., :8765)")
	flag.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.BoolVar(&verboseDrops, "verbose-drops", false, "Log every dropped event at debug level")
	flag.Parse()

	if versionFlag {
		fmt.Printf("listener version: %s (commit %s, built %s)\n", version.Version, version.Commit, version.BuildTime)
		os.Exit(0)
	}

	overrides := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		overrides[f.Name] = true
	})

	cfg := config.Load()
	if overrides["accounts"] {
		cfg.AccountsFile = strings.TrimSpace(accountsFile)
	}
	if overrides["push-url"] {
		cfg.Push.URL = strings.TrimSpace(pushURL)
		cfg.Push.LegacyURLEnv = ""
	}
	if overrides["store"] {
		cfg.Store.Kind = strings.ToLower(strings.TrimSpace(storeKind))
	}
	if overrides["sqlite"] {
		cfg.Store.SQLitePath = strings.TrimSpace(sqlitePath)
	}
	if overrides["store-file"] {
		cfg.Store.FilePath = strings.TrimSpace(storeFile)
	}
	if overrides["http-addr"] {
		cfg.HTTP.Addr = strings.TrimSpace(httpAddr)
	}
	if overrides["log-level"] {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(logLevel))
	}
	if overrides["verbose-drops"] {
		cfg.Filter.VerboseDrops = verboseDrops
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if err := cfg.Validate(); err != nil {
		log.Fatalf("listener: %v", err)
	}
	if cfg.Push.LegacyURLEnv != "" {
		log.Printf("listener: push url read from legacy %s", cfg.Push.LegacyURLEnv)
	}
	log.Printf("%s", cfg.RedactedJSON())

	accounts, err := config.LoadAccounts(cfg.AccountsFile)
	if err != nil {
		log.Fatalf("listener: accounts: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.Options{
		Kind:        cfg.Store.Kind,
		SQLitePath:  cfg.Store.SQLitePath,
		PostgresURL: cfg.Store.PostgresURL,
		FilePath:    cfg.Store.FilePath,
	})
	if err != nil {
		log.Fatalf("listener: open %s store: %v", cfg.Store.Kind, err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Printf("listener: closing store: %v", err)
		}
	}()
	if err := st.Ping(ctx); err != nil {
		log.Fatalf("listener: ping %s store: %v", st.Kind(), err)
	}

	m := metrics.New()

	watch := watchset.New(st, watchset.Options{Interval: cfg.RefreshInterval(), Observer: m})
	if err := watch.Load(ctx); err != nil {
		log.Fatalf("listener: initial watch set: %v", err)
	}
	log.Printf("listener: watching %d conversations (store=%s)", watch.Size(), st.Kind())
	go watch.RefreshLoop(ctx)
	if fs, ok := st.(*store.FileStore); ok {
		if err := watch.WatchFiles(ctx, fs.Path()); err != nil {
			slog.Error("listener: watch store file", "path", fs.Path(), "err", err)
		}
	}

	var api *httpapi.Server
	var sink forward.Forwarder = forward.NewHTTP(cfg.Push.URL, cfg.PushTimeout(), m)
	if cfg.HTTP.Addr != "" {
		api = httpapi.New(nil, watch, httpapi.Options{
			Addr:      cfg.HTTP.Addr,
			RateRPS:   cfg.HTTP.RateRPS,
			RateBurst: cfg.HTTP.RateBurst,
			Build: httpapi.BuildInfo{
				Version:  version.Version,
				Revision: version.Commit,
				BuiltAt:  version.BuiltAt(),
			},
			Metrics: m,
			Admin:   httpadmin.New(watch, st),
		})
		sink = forward.Tap(sink, api)
	}

	pipeline := filter.New(watch, profile.New(st, cfg.ProfileTimeout()), sink, filter.Options{
		MaxTextLen:   cfg.Filter.MaxTextLen,
		MaxNewlines:  cfg.Filter.MaxNewlines,
		Blacklist:    cfg.Filter.Blacklist,
		Metrics:      m,
		VerboseDrops: cfg.Filter.VerboseDrops,
		Trace:        cfg.Filter.Trace,
	})
	defer pipeline.FlushDrops()

	zlog, err := telegram.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("listener: protocol logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	members := make([]*supervisor.Supervisor, 0, len(accounts))
	for _, acct := range accounts {
		session := telegram.New(acct, telegram.Options{Logger: zlog})
		members = append(members, supervisor.New(acct, session, pipeline, supervisor.Options{Observer: m}))
		log.Printf("listener: account %s role=%s session=%s", acct.Label(), acct.Role, acct.Session)
	}
	group := supervisor.NewGroup(members...)

	if api != nil {
		api.SetAccounts(group)
		go func() {
			if err := api.Start(); err != nil {
				log.Fatalf("listener: http api: %v", err)
			}
		}()
	}

	logRoles(accounts)
	group.Run(ctx)

	if api != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := api.Shutdown(shutdownCtx); err != nil {
			log.Printf("listener: http api shutdown: %v", err)
		}
		cancel()
	}
	for _, s := range group.Statuses() {
		log.Printf("listener: account %s finished state=%s events=%d err=%q", s.Account, s.State, s.Events, s.Error)
	}
	log.Printf("listener: shutdown complete")
}

func logRoles(accounts []core.AccountConfig) {
	var keywords, all int
	for _, a := range accounts {
		if a.Role == core.RoleAllMessages {
			all++
		} else {
			keywords++
		}
	}
	log.Printf("listener: starting %d accounts (keywords=%d allMessages=%d)", len(accounts), keywords, all)
}
