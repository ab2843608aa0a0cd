package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ytget/streamsession"
	"github.com/ytget/streamsession/client"
	"github.com/ytget/streamsession/i18n"
	"github.com/ytget/streamsession/internal/logger"
	"github.com/ytget/streamsession/metrics"
	"github.com/ytget/streamsession/prompt"
	"github.com/ytget/streamsession/session"
	"github.com/ytget/streamsession/store"
)

const (
	envPassword = "STREAMSESSION_PASSWORD"
	envSealKey  = "STREAMSESSION_SEAL_KEY"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	provider     string
	storeDir     string
	storeDSN     string
	sealKey      string
	savePassword bool
	lang         string
	logConfig    string
	timeout      time.Duration
	attempts     int
	ua           string
	proxy        string
	rateLimit    string
	metricsAddr  string
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var o options
	fs := flag.NewFlagSet("streamsession", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.provider, "provider", "foxtel", "Provider ("+strings.Join(streamsession.Providers, ", ")+")")
	fs.StringVar(&o.storeDir, "store", "", "Session store directory. Empty uses the user config dir")
	fs.StringVar(&o.storeDSN, "store-dsn", "", "Postgres DSN; overrides -store")
	fs.StringVar(&o.sealKey, "seal-key", "", "Base64 32-byte key sealing token and password at rest (env "+envSealKey+")")
	fs.BoolVar(&o.savePassword, "save-password", false, "Keep the password for refresh fallback")
	fs.StringVar(&o.lang, "lang", "", "Preferred message language (e.g., 'en-AU')")
	fs.StringVar(&o.logConfig, "log-config", "", "JSON logger config file; env STREAMSESSION_LOG_* otherwise")
	fs.DurationVar(&o.timeout, "http-timeout", client.DefaultTimeout, "HTTP timeout for light requests (e.g., 10s, 1m)")
	fs.IntVar(&o.attempts, "attempts", 3, "Total HTTP attempts for GET/DELETE; 1 disables retries")
	fs.StringVar(&o.ua, "ua", "", "Override User-Agent header")
	fs.StringVar(&o.proxy, "proxy", "", "Proxy URL (http/https/socks)")
	fs.StringVar(&o.rateLimit, "rate-limit", "", "Outbound request rate (e.g., 5/s, 120/m)")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g., :9090)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: streamsession [flags] <command> [args]\n")
		fmt.Fprintln(stderr, "\nCommands:")
		fmt.Fprintln(stderr, "  login <username>    log in (password from "+envPassword+" or stdin)")
		fmt.Fprintln(stderr, "  logout              clear the stored session")
		fmt.Fprintln(stderr, "  status              show the stored session")
		fmt.Fprintln(stderr, "  refresh             force a token refresh")
		fmt.Fprintln(stderr, "  play <type> <id>    resolve a playable stream")
		fmt.Fprintln(stderr, "  search <query>      search the catalog")
		fmt.Fprintln(stderr, "  entitlement         print the entitlement token")
		fmt.Fprintln(stderr, "\nFlags:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) < 1 || !validArgs(rest) {
		fs.Usage()
		return 2
	}

	if o.logConfig != "" {
		cfg, err := logger.LoadConfigFromFile(o.logConfig)
		if err == nil {
			var l *logger.Logger
			if l, err = logger.CreateLoggerFromConfig(cfg); err == nil {
				logger.SetGlobalLogger(l)
			}
		}
		if err != nil {
			fmt.Fprintf(stderr, "Invalid log config: %v\n", err)
			return 2
		}
	} else if l, err := logger.CreateLoggerFromConfig(logger.EnvironmentConfig()); err == nil {
		logger.SetGlobalLogger(l)
	}
	log := logger.WithComponent(logger.ComponentApp)

	rps, err := parseRequestRate(o.rateLimit)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid -rate-limit: %v\n", err)
		return 2
	}
	if o.attempts < 1 {
		fmt.Fprintf(stderr, "Invalid -attempts: %d (must be at least 1)\n", o.attempts)
		return 2
	}

	st, closeStore, err := openStore(ctx, o)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer closeStore()

	var m *metrics.Collector
	if o.metricsAddr != "" {
		m = metrics.New()
		srv := &http.Server{Addr: o.metricsAddr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info("serving metrics", map[string]interface{}{"addr": o.metricsAddr})
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server stopped", map[string]interface{}{"error": err.Error()})
			}
		}()
		defer srv.Close()
	}

	loc := i18n.New()
	if o.lang != "" {
		loc.SetLanguage(o.lang)
	}

	in := bufio.NewReader(stdin)
	s, err := streamsession.New(o.provider).
		WithStore(st).
		WithPrompt(prompt.NewTerminal(in, stderr)).
		WithLocalizer(loc).
		WithSavePassword(o.savePassword).
		WithMetrics(m).
		WithClientConfig(client.Config{
			Timeout:   o.timeout,
			Attempts:  o.attempts,
			UserAgent: o.ua,
			ProxyURL:  o.proxy,
			RateLimit: rps,
		}).
		Open(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if err := dispatch(ctx, s, rest, in, stdout, stderr); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func validArgs(args []string) bool {
	switch args[0] {
	case "login", "search":
		return len(args) == 2
	case "play":
		return len(args) == 3
	case "logout", "status", "refresh", "entitlement":
		return len(args) == 1
	}
	return false
}

func dispatch(ctx context.Context, s *streamsession.Session, args []string, in *bufio.Reader, stdout, stderr io.Writer) error {
	switch args[0] {
	case "login":
		password, err := readPassword(in, stderr)
		if err != nil {
			return err
		}
		if err := s.Login(ctx, args[1], password); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(stdout, "Logged in to %s as %s\n", s.Provider(), args[1])
	case "logout":
		if err := s.Logout(ctx); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(stdout, "Logged out")
	case "status":
		snap, err := s.Snapshot(ctx)
		if err != nil {
			return err
		}
		printStatus(stdout, s.Provider(), s.State(), snap.Username, snap.ProfileName, snap.ExpiresAt)
	case "refresh":
		if err := s.EnsureValidSession(ctx, true); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(stdout, "Session refreshed")
	case "play":
		pb, err := s.ResolvePlayback(ctx, args[1], args[2])
		if err != nil {
			return err
		}
		return writeJSON(stdout, pb)
	case "search":
		raw, err := s.Search(ctx, args[1])
		if err != nil {
			return err
		}
		return writeJSON(stdout, raw)
	case "entitlement":
		token, ok, err := s.EntitlementToken(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("no entitlements stored")
		}
		_, _ = fmt.Fprintln(stdout, token)
	}
	return nil
}

func printStatus(w io.Writer, provider string, state session.State, username, profile string, expires time.Time) {
	_, _ = fmt.Fprintf(w, "provider: %s\nstate: %s\n", provider, state)
	if username != "" {
		_, _ = fmt.Fprintf(w, "user: %s\n", username)
	}
	if profile != "" {
		_, _ = fmt.Fprintf(w, "profile: %s\n", profile)
	}
	if !expires.IsZero() {
		_, _ = fmt.Fprintf(w, "expires: %s\n", expires.Format(time.RFC3339))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readPassword prefers the environment, then one line of input.
func readPassword(in *bufio.Reader, out io.Writer) (string, error) {
	if p := os.Getenv(envPassword); p != "" {
		return p, nil
	}
	_, _ = fmt.Fprint(out, "Password: ")
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}

// openStore builds the session store from flags, sealed when a key is set.
func openStore(ctx context.Context, o options) (store.Store, func(), error) {
	var (
		st      store.Store
		closeFn = func() {}
	)
	if o.storeDSN != "" {
		db, err := store.OpenPostgres(ctx, o.storeDSN)
		if err != nil {
			return nil, nil, err
		}
		sqlStore := store.NewSQL(db, store.SQLConfig{})
		if err := sqlStore.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		st, closeFn = sqlStore, func() { _ = db.Close() }
	} else {
		dir := o.storeDir
		if dir == "" {
			base, err := os.UserConfigDir()
			if err != nil {
				return nil, nil, fmt.Errorf("locate config dir: %w", err)
			}
			dir = filepath.Join(base, "streamsession")
		}
		fileStore, err := store.NewFile(dir)
		if err != nil {
			return nil, nil, err
		}
		st = fileStore
	}

	key := o.sealKey
	if key == "" {
		key = os.Getenv(envSealKey)
	}
	if key == "" {
		return st, closeFn, nil
	}
	raw, err := store.DecodeKey(key)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	sealed, err := store.NewSealed(st, raw, sealedKeys(o.provider)...)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return sealed, closeFn, nil
}

// sealedKeys names the sensitive keys as the sealed store sees them, below
// the provider namespace the session adds.
func sealedKeys(provider string) []string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	keys := make([]string, 0, len(session.SensitiveKeys))
	for _, k := range session.SensitiveKeys {
		keys = append(keys, provider+"."+k)
	}
	return keys
}

// parseRequestRate parses strings like "5/s", "120/m" or "2" into requests
// per second. Empty means unlimited.
func parseRequestRate(s string) (float64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, nil
	}
	per := time.Second
	if i := strings.IndexByte(s, '/'); i >= 0 {
		switch strings.TrimSpace(s[i+1:]) {
		case "s", "sec":
			per = time.Second
		case "m", "min":
			per = time.Minute
		case "h":
			per = time.Hour
		default:
			return 0, fmt.Errorf("unknown unit in %q", s)
		}
		s = strings.TrimSpace(s[:i])
	}
	val, err := strconv.ParseFloat(s, 64)
	if err != nil || val <= 0 {
		return 0, fmt.Errorf("invalid rate %q", s)
	}
	return val / per.Seconds(), nil
}
