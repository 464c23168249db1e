package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/hirewire/decree/internal/api"
	"github.com/hirewire/decree/internal/auth"
	"github.com/hirewire/decree/internal/authority"
	"github.com/hirewire/decree/internal/compliance"
	"github.com/hirewire/decree/internal/config"
	"github.com/hirewire/decree/internal/crypto"
	"github.com/hirewire/decree/internal/decision"
	"github.com/hirewire/decree/internal/integrity"
	"github.com/hirewire/decree/internal/ledger"
	"github.com/hirewire/decree/internal/ledger/pgstore"
	"github.com/hirewire/decree/internal/ledger/sqlstore"
	"github.com/hirewire/decree/internal/workflow"
	"github.com/hirewire/decree/pkg/types"
)

func main() {
	if err := runFn(os.Args[1:], os.Getenv, listenAndServe, newServer); err != nil {
		fatalf("server error: %v", err)
	}
}

var runFn = run
var fatalf = log.Fatalf

func newServer(addr string, cfg config.Config) *http.Server {
	store, err := openStore(cfg.DB)
	if err != nil {
		fatalf("store error: %v", err)
	}

	loaded, err := authority.LoadTable(cfg.AuthorityPath)
	if err != nil {
		fatalf("authority table error: %v", err)
	}
	validator := authority.NewValidator(authority.NewTableLookup(loaded.Table), loaded.Table)

	key, err := crypto.LoadMACKey(cfg.SigningKey.KeyID, cfg.SigningKey.SecretPath)
	if err != nil {
		fatalf("signing key error: %v", err)
	}

	appealsWindow := decision.DefaultAppealsWindow
	if cfg.Appeals.WindowDays > 0 {
		appealsWindow = time.Duration(cfg.Appeals.WindowDays) * 24 * time.Hour
	}

	orchestrator := &workflow.Orchestrator{
		Store:         store,
		Authority:     validator,
		Signer:        key,
		Profiles:      logNotifier{},
		AppealsWindow: appealsWindow,
	}

	verifier := integrity.NewVerifier(store, key, integrityConfig(cfg.Integrity))

	h := &api.Handler{
		Auth:      authenticatorFromConfig(cfg.Auth),
		Workflow:  orchestrator,
		Ledger:    store,
		Integrity: verifier,
		Reports:   &compliance.Generator{Store: store, Integrity: verifier},
	}

	go sweepLoop(orchestrator)

	return &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func openStore(db config.DBConfig) (ledger.Store, error) {
	switch db.Driver {
	case "sqlite":
		store, err := sqlstore.OpenSQLite(db.DSN)
		if err != nil {
			return nil, err
		}
		if err := ledger.Migrate(store.DB(), ledger.DBSQLite); err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		store, err := pgstore.OpenPostgres(db.DSN)
		if err != nil {
			return nil, err
		}
		if err := ledger.Migrate(store.DB(), ledger.DBPostgres); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return ledger.NewInMemoryStore(), nil
	}
}

func integrityConfig(c config.IntegrityConfig) integrity.Config {
	cfg := integrity.DefaultConfig()
	if c.RapidWindowSeconds > 0 {
		cfg.RapidWindow = time.Duration(c.RapidWindowSeconds) * time.Second
	}
	if c.RapidMedium > 0 {
		cfg.RapidMedium = c.RapidMedium
	}
	if c.RapidHigh > 0 {
		cfg.RapidHigh = c.RapidHigh
	}
	return cfg
}

func authenticatorFromConfig(c config.AuthConfig) auth.Authenticator {
	tokens := make(map[string]auth.Claims, len(c.Actors))
	for _, a := range c.Actors {
		kind := types.ActorHuman
		if a.Kind == "system" {
			kind = types.ActorSystem
		}
		tokens[a.Token] = auth.Claims{
			ActorID:   a.ID,
			ActorName: a.Name,
			Email:     a.Email,
			Kind:      kind,
		}
	}
	return auth.NewStaticAuthenticator(c.DevToken, tokens)
}

// logNotifier is the stock profile-creation collaborator: it logs the
// signal. The profile system owns delivery and retries once integrated.
type logNotifier struct{}

func (logNotifier) ProfileApproved(applicationID, decisionID string) error {
	log.Printf("profile creation signaled application=%s decision=%s", applicationID, decisionID)
	return nil
}

// sweepLoop finalizes rejections whose appeals window lapsed. Hourly is
// plenty given a multi-day window.
func sweepLoop(o *workflow.Orchestrator) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now().UTC().Format(time.RFC3339)
		if n, err := o.SweepExpiredRejections(now); err != nil {
			log.Printf("sweep error after %d decisions: %v", n, err)
		} else if n > 0 {
			log.Printf("finalized %d lapsed rejections", n)
		}
	}
}

type envFn func(string) string
type listenFn func(*http.Server) error
type serverFactory func(addr string, cfg config.Config) *http.Server

func run(args []string, getenv envFn, listen listenFn, factory serverFactory) error {
	fs := flag.NewFlagSet("decree-gateway", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to decree config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfgFile := *configPath
	if cfgFile == "" {
		cfgFile = getenv("DECREE_CONFIG_PATH")
	}

	var cfg config.Config
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	addr := firstNonEmpty(getenv("DECREE_LISTEN_ADDR"), cfg.ListenAddr, ":8080")

	server := factory(addr, cfg)

	log.Printf("decree-gateway listening on %s", addr)
	if err := listen(server); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func listenAndServe(server *http.Server) error {
	return server.ListenAndServe()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
