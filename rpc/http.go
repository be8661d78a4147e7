package rpc

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"revenueos/native/links"
	"revenueos/observability"
	"revenueos/state"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000

	codeValidation        = -32021
	codeNotFound          = -32022
	codeAlreadyPurchased  = -32023
	codeInsufficientFunds = -32024
	codeUnauthorized      = -32025
	codeIDRaced           = -32026
	codeMalformedRecord   = -32027
)

// Server exposes the ledger operation surface as JSON-RPC 2.0 over HTTP.
type Server struct {
	engine  *links.Engine
	log     *slog.Logger
	metrics *observability.RPCMetrics
}

// NewServer wires the ledger engine behind the RPC boundary.
func NewServer(engine *links.Engine, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{engine: engine, log: log, metrics: observability.Metrics()}
}

// Router builds the HTTP routing tree: the RPC endpoint plus health and
// metrics probes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Post("/rpc", s.handleRPC)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// RPCRequest is the incoming JSON-RPC envelope.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "unable to read request body", nil)
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", nil)
		return
	}
	handler, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "unknown method", req.Method)
		return
	}
	started := time.Now()
	handler(w, r, &req)
	// Failures increment the error counter separately in writeEngineError.
	s.metrics.ObserveRequest(req.Method, "handled", time.Since(started))
}

type handlerFunc func(http.ResponseWriter, *http.Request, *RPCRequest)

func (s *Server) methods() map[string]handlerFunc {
	return map[string]handlerFunc{
		"links_create":         s.handleCreateLink,
		"links_nextId":         s.handleNextLinkID,
		"links_buy":            s.handleBuyLink,
		"links_setResalePrice": s.handleSetResalePrice,
		"links_withdraw":       s.handleWithdraw,
		"links_get":            s.handleGetLink,
		"links_byCreator":      s.handleLinksByCreator,
		"links_hasPurchased":   s.handleHasPurchased,
		"links_balance":        s.handleBalance,
	}
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func writeError(w http.ResponseWriter, status int, id json.RawMessage, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: jsonRPCVersion, ID: id, Error: &rpcError{Code: code, Message: message, Data: data}})
}

// writeEngineError maps the ledger error taxonomy onto distinguishable RPC
// codes so callers can branch without matching message strings.
func (s *Server) writeEngineError(w http.ResponseWriter, req *RPCRequest, err error) {
	status := http.StatusBadRequest
	code := codeServerError
	switch {
	case errors.Is(err, links.ErrInvalidPrice),
		errors.Is(err, links.ErrInvalidRoyalty),
		errors.Is(err, links.ErrEmptyContent):
		code = codeValidation
	case errors.Is(err, links.ErrLinkNotFound):
		status = http.StatusNotFound
		code = codeNotFound
	case errors.Is(err, links.ErrAlreadyPurchased):
		code = codeAlreadyPurchased
	case errors.Is(err, links.ErrInsufficientFunds):
		code = codeInsufficientFunds
	case errors.Is(err, links.ErrUnauthorized):
		status = http.StatusForbidden
		code = codeUnauthorized
	case errors.Is(err, links.ErrLinkIDRaced):
		status = http.StatusConflict
		code = codeIDRaced
	case errors.Is(err, state.ErrMalformedRecord):
		status = http.StatusInternalServerError
		code = codeMalformedRecord
	default:
		status = http.StatusInternalServerError
	}
	s.metrics.ObserveError(req.Method, strconv.Itoa(code))
	writeError(w, status, req.ID, code, err.Error(), nil)
}
