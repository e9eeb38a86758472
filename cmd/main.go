package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/credrotate/credrotate/pkg/creds"
	"github.com/credrotate/credrotate/pkg/db"
	"github.com/credrotate/credrotate/pkg/metrics"
	"github.com/credrotate/credrotate/pkg/sink"
)

var (
	source = kingpin.Flag("source", "Where to fetch credentials from").Default("http").Enum("http", "vault", "file")

	secretURL   = kingpin.Flag("secret-url", "HTTP endpoint returning the secret").String()
	secretToken = kingpin.Flag("secret-token", "Bearer token for the secret endpoint").String()

	vaultAddr      = kingpin.Flag("vault-addr", "Vault address, e.g. https://vault:8200").String()
	vaultTokenFile = kingpin.Flag("vault-token-file", "Path to a file containing a Vault token").String()
	vaultPath      = kingpin.Flag("vault-path", "Path to secret in Vault, e.g. database/creds/foo").String()
	caCert         = kingpin.Flag("ca-cert", "Path to CA certificate to validate Vault server").String()

	endpoint  = kingpin.Flag("endpoint", "Database host:port the credentials are for").Required().String()
	principal = kingpin.Flag("principal", "Database user the rotated secret belongs to").String()
	database  = kingpin.Flag("database", "Database name").String()
	driver    = kingpin.Flag("driver", "Database driver").Default("mysql").Enum("mysql", "postgres")

	snapshotPath = kingpin.Flag("snapshot", "Path to persist the credentials snapshot").String()

	templateFile = kingpin.Flag("template", "Path to template file").ExistingFile()
	out          = kingpin.Flag("out", "Output file name").String()

	refreshInterval = kingpin.Flag("refresh-interval", "Interval to rotate credentials").Default("1h").Duration()
	pingInterval    = kingpin.Flag("ping-interval", "Interval to probe the database for auth failures").Default("30s").Duration()

	maxOpenConns = kingpin.Flag("max-open-conns", "Maximum open database connections").Default("4").Int()

	gatewayAddress = kingpin.Flag("pushgateway", "Prometheus pushgateway address").String()

	jsonOutput = kingpin.Flag("json-log", "Output log in JSON format").Default("false").Bool()
)

var (
	SHA = ""
)

func main() {
	kingpin.Parse()

	if *jsonOutput {
		log.SetFormatter(&log.JSONFormatter{})
	}

	logger := log.WithFields(log.Fields{"gitSHA": SHA})
	logger.Infof("started application")

	src, err := buildSource()
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initial, err := initialCredentials(ctx, src)
	if err != nil {
		log.Fatal("error fetching initial credentials: ", err)
	}

	store := creds.NewStore(initial)

	refresher := creds.NewRefresher(store, src, *refreshInterval)
	refresher.SnapshotPath = *snapshotPath
	refresher.Metrics = metrics.NewPushGateway(*gatewayAddress)

	if *templateFile != "" {
		fileSink, err := sink.New(*templateFile, *out)
		if err != nil {
			log.Fatal(err)
		}
		if err := fileSink.Render(initial); err != nil {
			log.Fatal("error writing credentials: ", err)
		}
		refresher.OnRotate = func(c *creds.Credentials) {
			if err := fileSink.Render(c); err != nil {
				log.Errorf("error writing credentials: %s", err)
			}
		}
	}

	pool, err := db.Open(store, db.Config{
		Driver:       *driver,
		Database:     *database,
		MaxOpenConns: *maxOpenConns,
	})
	if err != nil {
		log.Fatal("error opening database pool: ", err)
	}
	defer pool.Close()

	done := make(chan int, 1)
	refresher.Run(ctx, done)

	pinger := db.NewPinger(pool, *pingInterval, refresher.Kick)
	pinger.Run(ctx)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	select {
	case <-c:
		log.Infof("shutting down")
		cancel()
	case <-done:
		log.Error("credential rotation failed fatally")
		cancel()
		pool.Close()
		os.Exit(1)
	}
}

func buildSource() (creds.Source, error) {
	switch *source {
	case "vault":
		if *vaultPath == "" {
			return nil, fmt.Errorf("--vault-path is required with --source=vault")
		}
		client, err := creds.NewVaultClient(&creds.VaultConfig{
			VaultAddr: *vaultAddr,
			TokenFile: *vaultTokenFile,
			CACert:    *caCert,
		})
		if err != nil {
			return nil, err
		}
		vs := creds.NewVaultSource(client, *vaultPath)
		vs.Endpoint = *endpoint
		return vs, nil
	case "file":
		if *snapshotPath == "" {
			return nil, fmt.Errorf("--snapshot is required with --source=file")
		}
		return creds.NewFileSource(*snapshotPath), nil
	default:
		if *secretURL == "" {
			return nil, fmt.Errorf("--secret-url is required with --source=http")
		}
		hs := creds.NewHTTPSource(*secretURL)
		hs.Endpoint = *endpoint
		hs.Principal = *principal
		hs.Token = *secretToken
		return hs, nil
	}
}

// initialCredentials prefers an existing snapshot so a restart does not spend
// a fetch, falling back to the source.
func initialCredentials(ctx context.Context, src creds.Source) (*creds.Credentials, error) {
	if *snapshotPath != "" {
		if _, err := os.Stat(*snapshotPath); err == nil {
			return creds.NewFileSource(*snapshotPath).Fetch(ctx)
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	return src.Fetch(fetchCtx)
}
