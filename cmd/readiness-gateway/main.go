package main

import (
	"context"
	"crypto/ed25519"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/api"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/audit"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/auth"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/config"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/crypto"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/decision"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/induction"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/ledger"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/ledger/ledgerdb"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/legitimacy"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/readiness"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/telemetry"
)

func main() {
	if err := runFn(os.Args[1:], os.Getenv, listenAndServe, newServer); err != nil {
		fatalf("server error: %v", err)
	}
}

var runFn = run
var fatalf = log.Fatalf

type envFn func(string) string
type listenFn func(*http.Server) error
type serverFactory func(cfg config.Config) (*http.Server, io.Closer, error)

func run(args []string, getenv envFn, listen listenFn, factory serverFactory) error {
	fs := flag.NewFlagSet("readiness-gateway", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to gateway config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfgFile := *configPath
	if cfgFile == "" {
		cfgFile = getenv("READINESS_CONFIG_PATH")
	}
	if cfgFile == "" {
		return fmt.Errorf("config path is required (--config or READINESS_CONFIG_PATH)")
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	shutdown, err := telemetry.Setup(context.Background(), cfg.OTel.Endpoint, cfg.OTel.ServiceName)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			log.Printf("readiness-gateway: telemetry shutdown: %v", err)
		}
	}()

	server, closer, err := factory(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	log.Printf("readiness-gateway listening on %s (db=%s)", cfg.ListenAddr, cfg.DB.Driver)
	if err := listen(server); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func listenAndServe(server *http.Server) error {
	return server.ListenAndServe()
}

func newServer(cfg config.Config) (*http.Server, io.Closer, error) {
	store, err := ledgerdb.Open(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return nil, nil, err
	}

	var signer *crypto.Ed25519Signer
	if cfg.SigningKey.PrivateKeyPath != "" {
		signer, err = crypto.LoadSigner(cfg.SigningKey.KeyID, cfg.SigningKey.PrivateKeyPath)
		if err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("signing key: %w", err)
		}
	}

	h := newHandler(cfg, store, signer)
	return &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}, store, nil
}

func newHandler(cfg config.Config, store ledger.Store, signer *crypto.Ed25519Signer) *api.Handler {
	trailCfg := audit.Config{}
	var publicKey ed25519.PublicKey
	if signer != nil {
		trailCfg.Signer = signer
		publicKey = signer.PublicKey()
	}
	trail := audit.NewTrail(store, trailCfg)
	gate := induction.NewGate(store, nil)

	legal := readiness.NewHTTPEvaluator(readiness.PillarLegal, cfg.Evaluators.Legal.URL, cfg.Evaluators.Legal.Timeout)
	ops := readiness.NewHTTPEvaluator(readiness.PillarOps, cfg.Evaluators.Ops.URL, cfg.Evaluators.Ops.Timeout)
	for _, pair := range []struct {
		ev  *readiness.HTTPEvaluator
		cfg config.EvaluatorConfig
	}{{legal, cfg.Evaluators.Legal}, {ops, cfg.Evaluators.Ops}} {
		pair.ev.Token = pair.cfg.Token
		if pair.cfg.FlagPath != "" {
			pair.ev.FlagPath = pair.cfg.FlagPath
		}
		if cfg.Evaluators.MaxTries > 0 {
			pair.ev.MaxTries = uint(cfg.Evaluators.MaxTries)
		}
	}

	authenticator := &auth.MultiAuthenticator{
		DevToken:  cfg.Auth.DevToken,
		DevClaims: auth.Claims{OrgID: cfg.Auth.DevOrgID, SiteID: cfg.Auth.DevSiteID},
	}
	if cfg.Auth.JWTSecret != "" {
		authenticator.JWT = auth.NewJWTAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	}

	return &api.Handler{
		Auth: authenticator,
		Readiness: readiness.NewService(readiness.Config{
			Legal:      legal,
			Ops:        ops,
			Bindings:   store,
			ShiftCodes: cfg.ShiftCodes,
		}),
		Decisions:  decision.NewLedger(store, decision.Config{Trail: trail}),
		Bindings:   store,
		Trail:      trail,
		Induction:  gate,
		Legitimacy: legitimacy.NewService(gate),
		PublicKey:  publicKey,
	}
}
