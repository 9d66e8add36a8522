package rpc

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"time"
)

// Server is the control API's plain HTTP GET server (spec.md §6). It keeps
// the teacher's net/http server shape (timeouts, synchronous bind, graceful
// shutdown) but routes by path instead of dispatching a JSON-RPC method.
type Server struct {
	handler   *Handler
	addr      string
	authToken string // empty → no auth required
	srv       *http.Server
	ln        net.Listener
}

// NewServer creates a Server on addr. If authToken is non-empty, every
// request must carry a matching "Authorization: Bearer <token>" header.
func NewServer(addr string, handler *Handler, authToken string) *Server {
	s := &Server{handler: handler, addr: addr, authToken: authToken}
	mux := http.NewServeMux()
	mux.HandleFunc("/miner/start", s.withAuth(s.minerStart))
	mux.HandleFunc("/staker/start", s.withAuth(s.stakerStart))
	mux.HandleFunc("/tx-generator/start", s.withAuth(s.txGeneratorStart))
	mux.HandleFunc("/spv/start", s.withAuth(s.spvStart))
	mux.HandleFunc("/network/ping", s.withAuth(s.networkPing))
	mux.HandleFunc("/ledger/txn", s.withAuth(s.ledgerTxn))
	mux.HandleFunc("/ledger/spam", s.withAuth(s.ledgerSpam))
	mux.HandleFunc("/", s.notFound)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Start binds the port synchronously (so callers know immediately if binding
// fails) then serves requests in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("[rpc] server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the listener's address. Useful when started on ":0".
func (s *Server) Addr() net.Addr {
	if s.ln != nil {
		return s.ln.Addr()
	}
	return nil
}

// Stop gracefully shuts down the HTTP server, waiting up to 5 seconds for
// in-flight requests to complete.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// withAuth wraps a handler with the same bearer-token check the teacher's
// serveHTTP performed inline, and rejects anything but GET (spec.md §6:
// "Control API ... HTTP GET endpoints").
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "only GET allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.authToken != "" && r.Header.Get("Authorization") != "Bearer "+s.authToken {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, fail("unauthorized"))
			return
		}
		next(w, r)
	}
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotFound)
	writeJSON(w, fail("unknown path: "+r.URL.Path))
}

func (s *Server) minerStart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.handler.MinerStart(r.URL.Query().Get("lambda")))
}

func (s *Server) stakerStart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.handler.StakerStart(r.URL.Query().Get("zeta")))
}

func (s *Server) txGeneratorStart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.handler.TxGeneratorStart(r.URL.Query().Get("theta")))
}

func (s *Server) spvStart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.handler.SPVStart(r.URL.Query().Get("lambda")))
}

func (s *Server) networkPing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.handler.NetworkPing())
}

func (s *Server) ledgerTxn(w http.ResponseWriter, r *http.Request) {
	txns, err := s.handler.LedgerTxn()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		writeJSON(w, fail(err.Error()))
		return
	}
	writeJSON(w, txns)
}

func (s *Server) ledgerSpam(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.handler.LedgerSpam())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[rpc] write response: %v", err)
	}
}
