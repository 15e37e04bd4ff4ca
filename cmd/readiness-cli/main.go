package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/auth"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/ledger/ledgerdb"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/policy"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/readiness"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/seed"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/targetid"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/pkg/types"
)

const defaultAddr = "http://localhost:8080"

func main() {
	exitFn(run(os.Args, os.Stdout, os.Stderr))
}

var exitFn = os.Exit

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "readiness":
		return handleReadiness(args[2:], stdout, stderr)
	case "events":
		return handleEvents(args[2:], stdout, stderr)
	case "compose":
		return handleCompose(args[2:], stdout, stderr)
	case "target-id":
		return handleTargetID(args[2:], stdout, stderr)
	case "seed":
		return handleSeed(args[2:], stdout, stderr)
	case "policy":
		return handlePolicy(args[2:], stdout, stderr)
	case "token":
		return handleToken(args[2:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

func handleReadiness(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("readiness", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("READINESS_ADDR", defaultAddr), "gateway address")
	token := fs.String("token", envOrDefault("READINESS_TOKEN", os.Getenv("READINESS_DEV_TOKEN")), "bearer token")
	date := fs.String("date", "", "shift date (YYYY-MM-DD)")
	shiftCode := fs.String("shift", "", "shift code")
	jsonOut := fs.Bool("json", false, "print raw JSON response")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}
	if *date == "" || *shiftCode == "" {
		fmt.Fprintln(stderr, "readiness requires --date and --shift")
		fs.Usage()
		return 2
	}

	q := url.Values{}
	q.Set("date", *date)
	q.Set("shift_code", *shiftCode)
	respBody, status, err := httpGet(http.DefaultClient, *addr+"/v1/readiness?"+q.Encode(), *token)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if *jsonOut {
		_, _ = stdout.Write(respBody)
		if status != http.StatusOK {
			return 1
		}
		return 0
	}
	if status != http.StatusOK && status != http.StatusConflict {
		fmt.Fprintf(stderr, "readiness failed: %s\n", strings.TrimSpace(string(respBody)))
		return 1
	}

	var report readiness.Report
	if err := json.Unmarshal(respBody, &report); err != nil {
		fmt.Fprintln(stderr, "invalid response:", err)
		return 1
	}
	if report.Blocked {
		code := ""
		if report.ScopeError != nil {
			code = string(report.ScopeError.Code())
		}
		fmt.Fprintf(stdout, "blocked=true target_id=%s code=%s\n", report.TargetID, code)
		return 1
	}
	if report.Overall == nil {
		fmt.Fprintf(stdout, "supported=false target_id=%s reasons=%s\n", report.TargetID, strings.Join(report.ReasonCodes, ","))
		return 1
	}
	fmt.Fprintf(stdout, "overall=%s target_id=%s reasons=%s\n", *report.Overall, report.TargetID, strings.Join(report.ReasonCodes, ","))
	if *report.Overall == readiness.OverallNoGo {
		return 1
	}
	return 0
}

func handleEvents(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("READINESS_ADDR", defaultAddr), "gateway address")
	token := fs.String("token", envOrDefault("READINESS_TOKEN", os.Getenv("READINESS_DEV_TOKEN")), "bearer token")
	targetType := fs.String("target-type", "", "filter by target type")
	targetID := fs.String("target-id", "", "filter by target id")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}

	q := url.Values{}
	if *targetType != "" {
		q.Set("target_type", *targetType)
	}
	if *targetID != "" {
		q.Set("target_id", *targetID)
	}
	endpoint := *addr + "/v1/governance-events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	respBody, status, err := httpGet(http.DefaultClient, endpoint, *token)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if status != http.StatusOK {
		fmt.Fprintf(stderr, "events failed: %s\n", strings.TrimSpace(string(respBody)))
		return 1
	}

	var payload types.GovernanceEventsResponse
	if err := json.Unmarshal(respBody, &payload); err != nil {
		fmt.Fprintln(stderr, "invalid response:", err)
		return 1
	}
	tampered := false
	for _, ev := range payload.Events {
		verified := "unknown"
		if ev.Verified != nil {
			verified = fmt.Sprintf("%t", *ev.Verified)
			if !*ev.Verified {
				tampered = true
			}
		}
		fmt.Fprintf(stdout, "%s %s action=%s target=%s/%s verified=%s\n", ev.CreatedAt, ev.EventID, ev.Action, ev.TargetType, ev.TargetID, verified)
	}
	if tampered {
		return 1
	}
	return 0
}

func handleCompose(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("compose", flag.ContinueOnError)
	fs.SetOutput(stderr)
	legal := fs.String("legal", "", "legal flag (LEGAL_GO, LEGAL_WARNING, LEGAL_NO_GO)")
	ops := fs.String("ops", "", "ops flag (OPS_GO, OPS_WARNING, OPS_NO_GO)")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}
	legalFlag := readiness.LegalFlag(strings.ToUpper(strings.TrimSpace(*legal)))
	opsFlag := readiness.OpsFlag(strings.ToUpper(strings.TrimSpace(*ops)))
	overall := readiness.ComposeOverallStatus(legalFlag, opsFlag)
	codes := readiness.ComposeReasonCodes(legalFlag, opsFlag)
	fmt.Fprintf(stdout, "overall=%s reasons=%s\n", overall, strings.Join(codes, ","))
	return 0
}

func handleTargetID(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	switch args[0] {
	case "station-shift":
		fs := flag.NewFlagSet("target-id station-shift", flag.ContinueOnError)
		fs.SetOutput(stderr)
		date := fs.String("date", "", "shift date")
		shiftCode := fs.String("shift", "", "shift code")
		station := fs.String("station", "", "station id")
		issue := fs.String("issue", "", "issue type")
		if err := fs.Parse(args[1:]); err != nil {
			fs.Usage()
			return 2
		}
		fmt.Fprintln(stdout, targetid.ForStationShift(*date, *shiftCode, *station, *issue))
		return 0
	case "shift-readiness":
		fs := flag.NewFlagSet("target-id shift-readiness", flag.ContinueOnError)
		fs.SetOutput(stderr)
		org := fs.String("org", "", "org id")
		site := fs.String("site", "", "site id")
		date := fs.String("date", "", "shift date")
		shiftCode := fs.String("shift", "", "shift code")
		if err := fs.Parse(args[1:]); err != nil {
			fs.Usage()
			return 2
		}
		fmt.Fprintln(stdout, targetid.ForShiftReadiness(*org, *site, *date, *shiftCode))
		return 0
	default:
		usage(stderr)
		return 2
	}
}

func handleSeed(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(stderr)
	driver := fs.String("db-driver", envOrDefault("READINESS_DB_DRIVER", "sqlite"), "db driver (sqlite|postgres)")
	dsn := fs.String("dsn", os.Getenv("READINESS_DB_DSN"), "db dsn")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "seed requires <seed_path>")
		fs.Usage()
		return 2
	}
	if *driver == "memory" {
		fmt.Fprintln(stderr, "seed requires a persistent db driver")
		return 2
	}
	path := fs.Arg(0)

	doc, err := seed.LoadFile(path)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	store, err := ledgerdb.Open(*driver, *dsn)
	if err != nil {
		fmt.Fprintln(stderr, "open store:", err)
		return 1
	}
	defer store.Close()

	summary, err := seed.Apply(context.Background(), store, doc, filepath.Dir(path), time.Now())
	if err != nil {
		fmt.Fprintln(stderr, "seed:", err)
		return 1
	}
	fmt.Fprintf(stdout, "ok org_id=%s units=%d stations=%d shifts=%d policies=%d checkpoints=%d\n",
		doc.OrgID, summary.Units, summary.Stations, summary.Shifts, summary.Policies, summary.Checkpoints)
	return 0
}

func handlePolicy(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	switch args[0] {
	case "lint":
		fs := flag.NewFlagSet("policy lint", flag.ContinueOnError)
		fs.SetOutput(stderr)
		if err := fs.Parse(args[1:]); err != nil {
			fs.Usage()
			return 2
		}
		if fs.NArg() != 1 {
			fmt.Fprintln(stderr, "policy lint requires <policy_path>")
			fs.Usage()
			return 2
		}
		loaded, err := policy.LoadPolicyFile(fs.Arg(0))
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		fmt.Fprintf(stdout, "ok policy_id=%s unit_id=%s version=%s policy_hash=%s\n",
			loaded.Policy.PolicyID, loaded.Policy.UnitID, loaded.Policy.Version, loaded.Hash)
		return 0
	default:
		usage(stderr)
		return 2
	}
}

func handleToken(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	secret := fs.String("secret", os.Getenv("READINESS_JWT_SECRET"), "HS256 signing secret")
	issuer := fs.String("issuer", os.Getenv("READINESS_JWT_ISSUER"), "token issuer")
	org := fs.String("org", "", "org id")
	site := fs.String("site", "", "site id")
	user := fs.String("user", "", "user id")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}
	if *secret == "" || *org == "" || *user == "" {
		fmt.Fprintln(stderr, "token requires --secret, --org and --user")
		fs.Usage()
		return 2
	}
	token, err := auth.NewJWTAuthenticator(*secret, *issuer).Issue(*org, *site, *user, *ttl)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}

func httpGet(client *http.Client, url string, token string) ([]byte, int, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func envOrDefault(key string, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func usage(w io.Writer) {
	fmt.Fprint(w, `Readiness CLI

Usage:
  readiness readiness --date YYYY-MM-DD --shift CODE [--addr URL] [--token TOKEN] [--json]
  readiness events [--target-type TYPE] [--target-id ID] [--addr URL] [--token TOKEN]
  readiness compose --legal FLAG --ops FLAG
  readiness target-id station-shift --date D --shift S --station ID --issue TYPE
  readiness target-id shift-readiness --org O --site S --date D --shift S
  readiness seed [--db-driver sqlite|postgres] --dsn DSN <seed_path>
  readiness policy lint <policy_path>
  readiness token --secret S --org O --user U [--site S] [--issuer I] [--ttl 1h]
`)
}
