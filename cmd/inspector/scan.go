package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hakim/inspector/internal/auth"
	"github.com/hakim/inspector/internal/config"
	"github.com/hakim/inspector/internal/models"
	"github.com/hakim/inspector/internal/pipeline"
	"github.com/hakim/inspector/internal/probe"
	"github.com/hakim/inspector/internal/report"
	"github.com/hakim/inspector/internal/scanner"
	"github.com/hakim/inspector/internal/storage"
)

// scanOutput is the single JSON line printed on success
type scanOutput struct {
	Status string `json:"status"`
	Report string `json:"report"`
	ScanID string `json:"scan_id"`
}

var scanCmd = &cobra.Command{
	Use:   "scan <target>",
	Short: "Scan a target after validating the authorization token",
	Long: `Run DNS enumeration, HTTP reachability and banner collection against a target.

The token is checked before any network activity. An invalid token exits with
status 2 and nothing is scanned.

Settings are resolved in order: config file and INSPECTOR_* environment,
then --profile, then explicit flags.

On success a single JSON line is printed to stdout:
  {"status":"ok","report":"reports/report_20260101T120000Z.json","scan_id":"..."}

Progress lines go to stderr.

Examples:
  inspector scan example.com --auth-token $TOKEN
  inspector scan example.com --auth-token $TOKEN --ports 22,80,8000-8010
  inspector scan example.com --auth-token $TOKEN --profile gentle
  inspector scan example.com --auth-token $TOKEN --scope-domains "example.com,*.example.com"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// ── 1. Read flags ──────────────────────────────────────────────────────
		target := args[0]
		token, _ := cmd.Flags().GetString("auth-token")

		scanCfg, ports, err := resolveScanSettings(cmd.Flags(), cfg)
		if err != nil {
			return err
		}
		settings := applyScanFlags(cmd.Flags(), cfg)

		progress := cmd.ErrOrStderr()

		// ── 2. Build probes and scanner ────────────────────────────────────────
		resolver := probe.NewResolver(settings.DNS.Servers, logger)
		prober := probe.NewHeadProber(probe.HTTPOptions{
			UserAgent:          settings.HTTP.UserAgent,
			InsecureSkipVerify: settings.HTTP.InsecureSkipVerify,
			MaxRedirects:       settings.HTTP.MaxRedirects,
		}, logger)
		grabber := probe.NewBannerGrabber(logger)

		sc := scanner.New(resolver, prober, grabber, logger)
		if verbose {
			sc.OnProbeDone = func(kind models.ProbeKind, probeTarget string, elapsed time.Duration) {
				fmt.Fprintf(progress, "[+] %s %s (%s)\n", kind, probeTarget, elapsed.Round(time.Millisecond))
			}
		}

		// ── 3. Collaborators ───────────────────────────────────────────────────
		fs := afero.NewOsFs()
		authorizer := auth.NewFileAuthorizer(fs, settings.TokenFile)
		sink := report.NewFileSink(fs, settings.OutputDir)

		store, err := storage.NewStore(settings.DBPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer store.Close()

		runner := pipeline.NewRunner(authorizer, sc, sink, store, logger)
		runner.Progress = progress

		// ── 4. Run ─────────────────────────────────────────────────────────────
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		result, err := runner.Run(ctx, pipeline.Request{
			Target: target,
			Token:  token,
			Config: scanCfg,
			Ports:  ports,
			Scope: &pipeline.ScopeConfig{
				AllowedDomains: settings.Scope.Domains,
				AllowedCIDRs:   settings.Scope.CIDRs,
			},
			Notify: &pipeline.NotifyConfig{WebhookURL: settings.Notify.WebhookURL},
		})
		if err != nil {
			return err
		}

		// ── 5. Machine-readable result ─────────────────────────────────────────
		out, err := json.Marshal(scanOutput{Status: "ok", Report: result.ReportPath, ScanID: result.ScanID})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	addScanFlags(scanCmd.Flags())
	scanCmd.MarkFlagRequired("auth-token")
	rootCmd.AddCommand(scanCmd)
}

// addScanFlags registers the scan flags on fs
func addScanFlags(fs *pflag.FlagSet) {
	d := config.DefaultConfig()

	fs.String("auth-token", "", "Authorization token (required)")
	fs.String("output", d.OutputDir, "Directory for JSON reports")
	fs.String("ports", "", "Ports to banner-grab, e.g. 22,80,8000-8010 (default 22,80,443,3306,143,110)")
	fs.Float64("rate", d.Scan.Rate, "Rate limit in probes per second (per-task floor delay)")
	fs.Int("concurrency", d.Scan.Concurrency, "Maximum probes in flight")
	fs.Float64("timeout", d.Scan.Timeout.Seconds(), "Per-probe network timeout in seconds")
	fs.String("profile", "", "Named profile: "+strings.Join(pipeline.ProfileNames(), ", "))
	fs.StringSlice("dns-server", nil, "DNS server to query, repeatable (default: system resolv.conf)")
	fs.StringSlice("scope-domains", nil, "Allowed domain patterns (e.g. example.com,*.example.com)")
	fs.StringSlice("scope-cidrs", nil, "Allowed CIDR ranges for IP targets")
	fs.String("notify-webhook", "", "HTTP webhook URL to POST a completion summary to")
}

// resolveScanSettings computes the scan bounds and port list: config values,
// overridden by a profile, overridden by explicitly set flags.
func resolveScanSettings(fs *pflag.FlagSet, c *config.Config) (models.ScanConfig, []int, error) {
	scanCfg := c.ScanConfig()

	profileName := c.Scan.Profile
	if fs.Changed("profile") {
		profileName, _ = fs.GetString("profile")
	}
	if profileName != "" {
		profile, err := pipeline.GetProfile(profileName)
		if err != nil {
			return models.ScanConfig{}, nil, err
		}
		scanCfg = profile.ScanConfig()
	}

	if fs.Changed("rate") {
		scanCfg.RateLimit, _ = fs.GetFloat64("rate")
	}
	if fs.Changed("concurrency") {
		scanCfg.MaxConcurrency, _ = fs.GetInt("concurrency")
	}
	if fs.Changed("timeout") {
		seconds, _ := fs.GetFloat64("timeout")
		scanCfg.Timeout = time.Duration(seconds * float64(time.Second))
	}

	if err := scanCfg.Validate(); err != nil {
		return models.ScanConfig{}, nil, fmt.Errorf("invalid scan settings: %w", err)
	}

	portSpec := c.Scan.Ports
	if fs.Changed("ports") {
		portSpec, _ = fs.GetString("ports")
	}
	ports, err := scanner.ParsePorts(portSpec)
	if err != nil {
		return models.ScanConfig{}, nil, fmt.Errorf("invalid --ports: %w", err)
	}

	return scanCfg, ports, nil
}

// applyScanFlags returns a copy of c with the non-bound flags applied
func applyScanFlags(fs *pflag.FlagSet, c *config.Config) config.Config {
	out := *c

	if fs.Changed("output") {
		out.OutputDir, _ = fs.GetString("output")
	}
	if fs.Changed("dns-server") {
		out.DNS.Servers, _ = fs.GetStringSlice("dns-server")
	}
	if fs.Changed("scope-domains") {
		out.Scope.Domains, _ = fs.GetStringSlice("scope-domains")
	}
	if fs.Changed("scope-cidrs") {
		out.Scope.CIDRs, _ = fs.GetStringSlice("scope-cidrs")
	}
	if fs.Changed("notify-webhook") {
		out.Notify.WebhookURL, _ = fs.GetString("notify-webhook")
	}

	return out
}
