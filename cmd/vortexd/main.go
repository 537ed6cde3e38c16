package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vortexl2/pkg/api"
	"vortexl2/pkg/auth"
	"vortexl2/pkg/db"
	"vortexl2/pkg/exchange"
	"vortexl2/pkg/orchestrator"
	"vortexl2/pkg/state"
	"vortexl2/pkg/supervisor"
	"vortexl2/pkg/tlscert"
	"vortexl2/pkg/version"
)

func main() {
	defaultRole := os.Getenv("VORTEX_ROLE")
	defaultServer := os.Getenv("VORTEX_SERVER_ADDR")
	defaultStateDir := os.Getenv("VORTEX_STATE_DIR")
	if defaultStateDir == "" {
		defaultStateDir = "/var/lib/vortexl2"
	}
	defaultToken := os.Getenv("AUTH_TOKEN")

	role := flag.String("role", defaultRole, "node role: server|client (env VORTEX_ROLE)")
	serverAddr := flag.String("server-addr", defaultServer, "server public address, client role only (env VORTEX_SERVER_ADDR)")
	stateDir := flag.String("state-dir", defaultStateDir, "config and state root (env VORTEX_STATE_DIR)")
	listen := flag.String("listen", "127.0.0.1:8088", "management API listen address")
	token := flag.String("token", defaultToken, "management API bearer token (env AUTH_TOKEN); empty leaves the API open")
	tlsCN := flag.String("tls-cn", "", "obfuscation certificate common name (defaults to hostname)")
	tlsOrg := flag.String("tls-org", "", "obfuscation certificate organization")
	wstunnelBin := flag.String("wstunnel-bin", "wstunnel", "wstunnel binary path")
	wgQuickBin := flag.String("wg-quick-bin", "wg-quick", "wg-quick binary path")
	forceRole := flag.Bool("force-role", false, "permit re-provisioning into the opposite role")
	rendezvous := flag.String("rendezvous", "", "consul address for automatic key exchange (requires build tag consul)")
	withOperators := flag.Bool("with-operators", false, "enable MySQL-backed operator accounts for the management API")
	showVersion := flag.Bool("v", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		log.Printf("vortexd version=%s", version.Build)
		return
	}

	st, err := state.Open(*stateDir)
	if err != nil {
		log.Fatalf("open state: %v", err)
	}
	defer st.Close()

	ctl := supervisor.New(st)
	orch := orchestrator.New(orchestrator.Config{
		RoleToken:     *role,
		ServerAddress: *serverAddr,
		WstunnelBin:   *wstunnelBin,
		WgQuickBin:    *wgQuickBin,
		TLSSubject:    tlscert.Subject{CommonName: *tlsCN, Organization: *tlsOrg},
		ForceRole:     *forceRole,
	}, st, ctl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orch.Provision(ctx); err != nil {
		log.Fatalf("provision failed: %v", err)
	}
	log.Printf("vortexd version=%s role=%s publicKey=%s", version.Build, orch.Profile().Role, orch.PublicKey())

	if *rendezvous != "" {
		if _, known, _ := orch.Exchange().Peer(); !known {
			rdv, err := exchange.NewConsulRendezvous(*rendezvous)
			if err != nil {
				log.Printf("rendezvous unavailable: %v", err)
			} else {
				go func() {
					if err := orch.Exchange().RunRendezvous(ctx, rdv); err != nil {
						log.Printf("rendezvous failed: %v", err)
					}
				}()
			}
		}
	}

	deps := api.Deps{
		Orch:  orch,
		Store: st,
		Hub:   api.NewEventHub(),
		Token: *token,
	}
	if *withOperators {
		if !auth.SecretConfigured() {
			log.Fatal("JWT_SECRET must be set when operator accounts are enabled")
		}
		gdb, err := db.Init()
		if err != nil {
			log.Fatalf("operator store init failed: %v", err)
		}
		deps.Auth = &api.AuthHandler{DB: gdb}
	}

	mux := http.NewServeMux()
	api.RegisterRoutes(mux, deps)
	srv := &http.Server{
		Addr:              *listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		s := <-sig
		log.Printf("received %s, shutting down", s)
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
		orch.Shutdown()
	}()

	log.Printf("management API listening on %s", *listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
