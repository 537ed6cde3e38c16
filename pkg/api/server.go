package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"vortexl2/pkg/model"
	"vortexl2/pkg/orchestrator"
	"vortexl2/pkg/state"
	"vortexl2/pkg/version"
)

// Deps is everything the management handlers need. Hub and Auth are optional.
type Deps struct {
	Orch  *orchestrator.Orchestrator
	Store *state.Store
	Hub   *EventHub
	Auth  *AuthHandler
	Token string
}

// RegisterRoutes wires the management HTTP handlers on the provided mux.
func RegisterRoutes(mux *http.ServeMux, deps Deps) {
	auth := authFunc(deps.Token, deps.Auth != nil)

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("vortexl2 node"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/version", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": version.Build})
	})

	mux.HandleFunc("/api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		status, err := deps.Orch.Status()
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	})

	mux.HandleFunc("/api/v1/peer", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch r.Method {
		case http.MethodGet:
			peer, known, err := deps.Orch.Exchange().Peer()
			if err != nil {
				httpError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, PeerResponse{
				Known:           known,
				PublicKey:       peer.PublicKey,
				HasPresharedKey: peer.PresharedKey != "",
				AllowedNetworks: peer.AllowedNetworks,
			})
		case http.MethodPost:
			var req PeerRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid payload", http.StatusBadRequest)
				return
			}
			desc := model.PeerDescriptor{
				PublicKey:       req.PublicKey,
				PresharedKey:    req.PresharedKey,
				Endpoint:        req.Endpoint,
				AllowedNetworks: req.AllowedNetworks,
				Keepalive:       req.Keepalive,
			}
			if err := deps.Orch.Exchange().SubmitPeer(desc, "api"); err != nil {
				httpError(w, err)
				return
			}
			if deps.Hub != nil {
				deps.Hub.Broadcast(Event{Type: "peer_update", Payload: map[string]string{"publicKey": req.PublicKey}})
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/forwards", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch r.Method {
		case http.MethodGet:
			forwards, err := deps.Store.ListForwards()
			if err != nil {
				httpError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, forwards)
		case http.MethodPost:
			var req ForwardRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid payload", http.StatusBadRequest)
				return
			}
			f := model.Forward{LocalPort: req.LocalPort, TargetHost: req.TargetHost, TargetPort: req.TargetPort}
			if err := deps.Orch.AddForward(f, "api"); err != nil {
				httpError(w, err)
				return
			}
			if deps.Hub != nil {
				deps.Hub.Broadcast(Event{Type: "forward_change", Payload: f})
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
		case http.MethodDelete:
			portStr := r.URL.Query().Get("localPort")
			port, err := strconv.Atoi(portStr)
			if err != nil || port <= 0 {
				http.Error(w, "localPort is required", http.StatusBadRequest)
				return
			}
			if err := deps.Orch.RemoveForward(port, "api"); err != nil {
				httpError(w, err)
				return
			}
			if deps.Hub != nil {
				deps.Hub.Broadcast(Event{Type: "forward_change", Payload: map[string]int{"removed": port}})
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/audit", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		entries, err := deps.Store.ListAudit(50)
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	})

	if deps.Hub != nil {
		mux.HandleFunc("/api/v1/ws", func(w http.ResponseWriter, r *http.Request) {
			if !auth(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			deps.Hub.HandleWS(w, r)
		})
	}

	if deps.Auth != nil {
		deps.Auth.RegisterRoutes(mux)
	}
}

// httpError maps the error taxonomy onto status codes.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, model.ErrServiceProcess):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}
