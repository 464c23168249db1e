package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/hirewire/decree/internal/authority"
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
	case "verify":
		return handleVerify(args[2:], stdout, stderr)
	case "trail":
		return handleTrail(args[2:], stdout, stderr)
	case "export":
		return handleExport(args[2:], stdout, stderr)
	case "report":
		return handleReport(args[2:], stdout, stderr)
	case "authority":
		return handleAuthority(args[2:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

func handleVerify(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("DECREE_ADDR", defaultAddr), "Decree API address")
	jsonOut := fs.Bool("json", false, "print raw JSON response")
	token := fs.String("token", envOrDefault("DECREE_TOKEN", os.Getenv("DECREE_DEV_TOKEN")), "bearer token")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "verify requires <decision_id>")
		fs.Usage()
		return 2
	}
	decisionID := fs.Arg(0)

	respBody, status, err := httpGet(http.DefaultClient, *addr+"/v1/decisions/"+decisionID+"/integrity", *token)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if status != http.StatusOK {
		fmt.Fprintf(stderr, "verify failed: %s\n", strings.TrimSpace(string(respBody)))
		return 1
	}

	if *jsonOut {
		_, _ = stdout.Write(respBody)
		return 0
	}

	var payload struct {
		Data struct {
			DecisionID      string `json:"decision_id"`
			TotalRecords    int    `json:"total_records"`
			VerifiedRecords int    `json:"verified_records"`
			IntegrityScore  int    `json:"integrity_score"`
			Suspicious      []struct {
				RecordID string `json:"record_id"`
				Issue    string `json:"issue"`
				Severity string `json:"severity"`
			} `json:"suspicious_activities"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		fmt.Fprintln(stderr, "invalid response:", err)
		return 1
	}

	d := payload.Data
	fmt.Fprintf(stdout, "decision_id=%s score=%d verified=%d/%d\n", d.DecisionID, d.IntegrityScore, d.VerifiedRecords, d.TotalRecords)
	for _, s := range d.Suspicious {
		fmt.Fprintf(stdout, "  [%s] %s: %s\n", s.Severity, s.RecordID, s.Issue)
	}
	if d.IntegrityScore < 100 {
		return 1
	}
	return 0
}

func handleTrail(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("trail", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("DECREE_ADDR", defaultAddr), "Decree API address")
	token := fs.String("token", envOrDefault("DECREE_TOKEN", os.Getenv("DECREE_DEV_TOKEN")), "bearer token")
	eventType := fs.String("event-type", "", "filter by event type")
	order := fs.String("order", "", "asc or desc")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "trail requires <decision_id>")
		fs.Usage()
		return 2
	}
	decisionID := fs.Arg(0)

	query := url.Values{}
	if *eventType != "" {
		query.Set("event_type", *eventType)
	}
	if *order != "" {
		query.Set("order", *order)
	}
	target := *addr + "/v1/decisions/" + decisionID + "/audit"
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	respBody, status, err := httpGet(http.DefaultClient, target, *token)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if status != http.StatusOK {
		fmt.Fprintf(stderr, "trail failed: %s\n", strings.TrimSpace(string(respBody)))
		return 1
	}
	_, _ = stdout.Write(respBody)
	return 0
}

func handleExport(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("DECREE_ADDR", defaultAddr), "Decree API address")
	token := fs.String("token", envOrDefault("DECREE_TOKEN", os.Getenv("DECREE_DEV_TOKEN")), "bearer token")
	decisionID := fs.String("decision", "", "limit export to one decision")
	outPath := fs.String("out", "", "write payload to file instead of stdout")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}

	body, err := json.Marshal(map[string]string{"decision_id": *decisionID})
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	respBody, status, err := httpPost(http.DefaultClient, *addr+"/v1/audit/export", *token, body)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if status != http.StatusOK {
		fmt.Fprintf(stderr, "export failed: %s\n", strings.TrimSpace(string(respBody)))
		return 1
	}

	if *outPath == "" {
		_, _ = stdout.Write(respBody)
		return 0
	}
	if err := os.MkdirAll(filepath.Dir(*outPath), 0o750); err != nil && filepath.Dir(*outPath) != "." {
		fmt.Fprintln(stderr, "output dir:", err)
		return 1
	}
	if err := os.WriteFile(*outPath, respBody, 0o600); err != nil {
		fmt.Fprintln(stderr, "write output:", err)
		return 1
	}
	fmt.Fprintf(stdout, "wrote %s\n", *outPath)
	return 0
}

func handleReport(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("DECREE_ADDR", defaultAddr), "Decree API address")
	token := fs.String("token", envOrDefault("DECREE_TOKEN", os.Getenv("DECREE_DEV_TOKEN")), "bearer token")
	from := fs.String("from", "", "range start (RFC3339)")
	to := fs.String("to", "", "range end (RFC3339)")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "report requires <report_type>")
		fs.Usage()
		return 2
	}
	reportType := fs.Arg(0)

	query := url.Values{}
	if *from != "" {
		query.Set("from", *from)
	}
	if *to != "" {
		query.Set("to", *to)
	}
	target := *addr + "/v1/reports/" + reportType
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	respBody, status, err := httpGet(http.DefaultClient, target, *token)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if status != http.StatusOK {
		fmt.Fprintf(stderr, "report failed: %s\n", strings.TrimSpace(string(respBody)))
		return 1
	}
	_, _ = stdout.Write(respBody)
	return 0
}

func handleAuthority(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	switch args[0] {
	case "lint":
		fs := flag.NewFlagSet("authority lint", flag.ContinueOnError)
		fs.SetOutput(stderr)
		if err := fs.Parse(args[1:]); err != nil {
			fs.Usage()
			return 2
		}
		if fs.NArg() != 1 {
			fmt.Fprintln(stderr, "authority lint requires <table_path>")
			fs.Usage()
			return 2
		}
		path := fs.Arg(0)
		loaded, err := authority.LoadTable(path)
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		fmt.Fprintf(stdout, "ok table_id=%s table_hash=%s\n", loaded.Table.TableID, loaded.Hash)
		return 0
	default:
		usage(stderr)
		return 2
	}
}

func httpGet(client *http.Client, target string, token string) ([]byte, int, error) {
	req, err := http.NewRequest(http.MethodGet, target, nil)
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

func httpPost(client *http.Client, target string, token string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return respBody, resp.StatusCode, nil
}

func envOrDefault(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: decree-cli <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  verify <decision_id>        verify a decision's audit trail integrity")
	fmt.Fprintln(w, "  trail <decision_id>         print a decision's audit trail")
	fmt.Fprintln(w, "  export [-decision id]       export audit records as JSON")
	fmt.Fprintln(w, "  report <report_type>        generate a compliance report")
	fmt.Fprintln(w, "  authority lint <path>       validate an authority table file")
}
