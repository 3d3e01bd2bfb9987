package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/subletsquare/lease-escrow-service/internal/activation"
	"github.com/subletsquare/lease-escrow-service/internal/agreement"
	"github.com/subletsquare/lease-escrow-service/internal/api"
	"github.com/subletsquare/lease-escrow-service/internal/chain"
	"github.com/subletsquare/lease-escrow-service/internal/directory"
	"github.com/subletsquare/lease-escrow-service/internal/escrow"
	"github.com/subletsquare/lease-escrow-service/internal/monitoring"
	"github.com/subletsquare/lease-escrow-service/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var (
		port            = flag.Int("port", 8080, "Port for the HTTP API")
		rpcURL          = flag.String("rpc-url", "http://localhost:8545", "Ethereum RPC endpoint")
		contractAddr    = flag.String("contract", "0x6D44965c235e11b9D83393D2f5697fa8ca47e477", "Escrow contract address")
		backendURL      = flag.String("backend-url", "http://localhost:3000", "Marketplace backend base URL")
		keyFile         = flag.String("key-file", "", "Encrypted operator key file")
		dbHost          = flag.String("db-host", "localhost", "Database host")
		dbPort          = flag.Int("db-port", 5432, "Database port")
		dbUser          = flag.String("db-user", "admin", "Database user")
		dbPass          = flag.String("db-pass", "securepassword", "Database password")
		dbName          = flag.String("db-name", "lease_escrow", "Database name")
		redisAddr       = flag.String("redis-addr", "localhost:6379", "Redis address for the lease cache")
		cacheTTL        = flag.Duration("cache-ttl", 15*time.Second, "Lease cache TTL")
		confirmAttempts = flag.Int("confirm-attempts", 12, "Polls before an activation is reported unconfirmed")
		confirmInterval = flag.Duration("confirm-interval", 5*time.Second, "Delay between confirmation polls")
	)
	flag.Parse()

	if !common.IsHexAddress(*contractAddr) {
		log.Fatal().Str("contract", *contractAddr).Msg("Invalid escrow contract address")
	}

	account := chain.NewAccount()
	if *keyFile != "" {
		if err := account.ConnectFromFile(*keyFile); err != nil {
			log.Fatal().Err(err).Msg("Failed to load operator key")
		}
	} else {
		log.Warn().Msg("No operator key configured; dispatch calls will fail until a wallet connects")
	}

	ctx := context.Background()
	backend, err := chain.Dial(ctx, *rpcURL, common.HexToAddress(*contractAddr), account)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to chain RPC")
	}
	defer backend.Close()

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		*dbHost, *dbPort, *dbUser, *dbPass, *dbName)
	repo, err := store.NewActivationRepository(dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer repo.Close()

	cache := store.NewLeaseCache(*redisAddr, *cacheTTL)
	defer cache.Close()

	dispatcher := escrow.NewDispatcher(backend, account)
	reader := escrow.NewReader(backend)
	users := directory.New(*backendURL)
	agreements := agreement.New(*backendURL)
	orchestrator := activation.NewOrchestrator(users, dispatcher, repo)
	watcher := activation.NewWatcher(reader, repo, cache, *confirmAttempts, *confirmInterval)

	monitoring.InitMetrics()

	server := api.NewServer(agreements, orchestrator, dispatcher, reader, account, cache, watcher)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: api.NewRouter(server),
	}

	go func() {
		log.Info().Msgf("Starting Lease Escrow Gateway on port %d", *port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		mux.Handle("/metrics", promhttp.Handler())

		opsServer := &http.Server{
			Addr:    ":8081",
			Handler: mux,
		}

		log.Info().Msg("HTTP server for health checks and metrics started on port 8081")
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown error")
	}
	log.Info().Msg("Server exiting")
}
