package relay

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"obscuraplay/internal/authz"
	"obscuraplay/internal/fhe"
	"obscuraplay/internal/gcrypto"
	"obscuraplay/internal/relay/types"
)

const (
	// MaxHandlesPerRequest bounds the pairs a single decrypt call may ask for.
	MaxHandlesPerRequest = 64

	maxBodyBytes = 1 << 20
)

type Config struct {
	Domain          authz.Domain
	MaxDurationDays uint64
	ClockSkew       time.Duration
}

// Server is the decryption relay. It checks authorizations against the ledger grants and
// releases plaintexts from the engine, sealed to the requester's ephemeral key.
type Server struct {
	cfg     Config
	grants  GrantReader
	dec     fhe.Decrypter
	logger  log.Logger
	metrics *Metrics
	gather  prometheus.Gatherer
	now     func() time.Time
	router  *mux.Router
}

type Option func(*Server)

// WithClock overrides the clock used for window checks.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithRegistry registers relay metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.metrics = NewMetrics(reg)
		s.gather = reg
	}
}

func NewServer(cfg Config, grants GrantReader, dec fhe.Decrypter, logger log.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	s := &Server{
		cfg:    cfg,
		grants: grants,
		dec:    dec,
		logger: logger.With("module", "relay"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		reg := prometheus.NewRegistry()
		s.metrics = NewMetrics(reg)
		s.gather = reg
	}

	r := mux.NewRouter()
	r.Use(s.instrument)
	r.HandleFunc(types.PathUserDecrypt, s.handleUserDecrypt).Methods(http.MethodPost)
	r.HandleFunc(types.PathPublicDecrypt, s.handlePublicDecrypt).Methods(http.MethodPost)
	r.HandleFunc(types.PathHealth, s.handleHealth).Methods(http.MethodGet)
	r.Handle(types.PathMetrics, promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

type ctxKey int

const requestIDKey ctxKey = iota

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(types.HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(types.HeaderRequestID, id)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
		elapsed := time.Since(start)

		s.metrics.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		s.metrics.duration.WithLabelValues(route).Observe(elapsed.Seconds())
		s.logger.Debug("request", "request_id", id, "route", route, "status", rec.status, "elapsed", elapsed)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUserDecrypt(w http.ResponseWriter, r *http.Request) {
	var req types.UserDecryptRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.UserDecrypt(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePublicDecrypt(w http.ResponseWriter, r *http.Request) {
	var req types.PublicDecryptRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.PublicDecrypt(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// UserDecrypt releases every requested handle to req.UserAddress or none of them.
func (s *Server) UserDecrypt(ctx context.Context, req types.UserDecryptRequest) (*types.UserDecryptResponse, error) {
	n := len(req.HandleContractPairs)
	if n == 0 || n > MaxHandlesPerRequest {
		return nil, types.ErrInvalidRequest.Wrapf("need 1..%d handle/contract pairs, got %d", MaxHandlesPerRequest, n)
	}
	auth := authz.Request{
		PublicKey:      req.PublicKey,
		Contracts:      req.ContractAddresses,
		StartTimestamp: req.RequestValidity.StartTimestamp,
		DurationDays:   req.RequestValidity.DurationDays,
		ExtraData:      req.ExtraData,
	}
	if err := authz.ValidateRequest(auth, s.cfg.MaxDurationDays); err != nil {
		return nil, err
	}
	if err := authz.Verify(s.cfg.Domain, auth, req.Signature, req.UserAddress, s.now(), s.cfg.ClockSkew); err != nil {
		return nil, err
	}
	if err := authz.VerifyPossession(req.UserAddress, auth, req.KeyProof); err != nil {
		return nil, err
	}
	pk, err := gcrypto.PointFromBytesCanonical(req.PublicKey)
	if err != nil {
		return nil, types.ErrInvalidRequest.Wrapf("public key: %v", err)
	}

	err = s.grants.ReadGrants(ctx, func(acl ACL) error {
		for _, p := range req.HandleContractPairs {
			if err := p.Handle.Validate(); err != nil {
				return types.ErrMalformedHandle.Wrapf("%s: %v", p.Handle.Hex(), err)
			}
			if !auth.InScope(p.ContractAddress) {
				return types.ErrUnauthorized.Wrapf("contract %s is outside the signed scope", p.ContractAddress.Hex())
			}
			if !acl.Issued(p.Handle) {
				return types.ErrMalformedHandle.Wrapf("%s was never issued", p.Handle.Hex())
			}
			if !acl.CanDecrypt(p.Handle, req.UserAddress, p.ContractAddress) {
				return types.ErrUnauthorized.Wrapf("%s holds no grant on %s", req.UserAddress.Hex(), p.Handle.Hex())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	handles := make([]fhe.Handle, n)
	for i, p := range req.HandleContractPairs {
		handles[i] = p.Handle
	}
	pts, err := s.decryptAll(ctx, handles)
	if err != nil {
		return nil, err
	}

	out := &types.UserDecryptResponse{Results: make([]types.SealedValue, n)}
	for i, h := range handles {
		raw, err := pts[i].Bytes()
		if err != nil {
			return nil, err
		}
		box, err := gcrypto.Seal(rand.Reader, pk, raw, SealAAD(h, req.UserAddress))
		if err != nil {
			return nil, err
		}
		out.Results[i] = types.SealedValue{Handle: h, Sealed: box}
	}
	s.metrics.decrypted.WithLabelValues("user").Add(float64(n))
	s.logger.Info("user decrypt", "request_id", requestID(ctx), "user", req.UserAddress.Hex(), "handles", n)
	return out, nil
}

// PublicDecrypt releases handles that carry a public grant. No authorization is needed.
func (s *Server) PublicDecrypt(ctx context.Context, req types.PublicDecryptRequest) (*types.PublicDecryptResponse, error) {
	n := len(req.Handles)
	if n == 0 || n > MaxHandlesPerRequest {
		return nil, types.ErrInvalidRequest.Wrapf("need 1..%d handles, got %d", MaxHandlesPerRequest, n)
	}
	err := s.grants.ReadGrants(ctx, func(acl ACL) error {
		for _, h := range req.Handles {
			if err := h.Validate(); err != nil {
				return types.ErrMalformedHandle.Wrapf("%s: %v", h.Hex(), err)
			}
			if !acl.Issued(h) {
				return types.ErrMalformedHandle.Wrapf("%s was never issued", h.Hex())
			}
			if !acl.IsPublic(h) {
				return types.ErrUnauthorized.Wrapf("%s is not public", h.Hex())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	pts, err := s.decryptAll(ctx, req.Handles)
	if err != nil {
		return nil, err
	}
	out := &types.PublicDecryptResponse{Results: make([]types.ClearValue, n)}
	for i, h := range req.Handles {
		out.Results[i] = types.ClearValue{Handle: h, Value: pts[i].String()}
	}
	s.metrics.decrypted.WithLabelValues("public").Add(float64(n))
	return out, nil
}

func (s *Server) decryptAll(ctx context.Context, handles []fhe.Handle) ([]fhe.Plaintext, error) {
	pts := make([]fhe.Plaintext, len(handles))
	g, gctx := errgroup.WithContext(ctx)
	for i, h := range handles {
		g.Go(func() error {
			pt, err := s.dec.Decrypt(gctx, h)
			if err != nil {
				return err
			}
			pts[i] = pt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// The grants say the handle exists, so an engine failure is on our side.
		return nil, types.ErrRelayUnavailable.Wrap(err.Error())
	}
	return pts, nil
}

// SealAAD binds a sealed result to its handle and the identity it was released to.
func SealAAD(h fhe.Handle, user common.Address) []byte {
	aad := make([]byte, 0, fhe.HandleLength+common.AddressLength)
	aad = append(aad, h[:]...)
	return append(aad, user.Bytes()...)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, fhe.ErrInvalidHandle) {
			return types.ErrMalformedHandle.Wrap(err.Error())
		}
		return types.ErrInvalidRequest.Wrapf("decode body: %v", err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidRequest), errors.Is(err, types.ErrMalformedHandle):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrAuthorizationExpired),
		errors.Is(err, types.ErrAuthorizationNotYetValid),
		errors.Is(err, types.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, types.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, types.ErrRelayUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	codespace, code, _ := errorsmod.ABCIInfo(err, false)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("relay failure", "request_id", requestID(r.Context()), "err", err)
		msg = "internal error"
	} else {
		s.logger.Debug("request rejected", "request_id", requestID(r.Context()), "err", err)
	}
	writeJSON(w, status, types.ErrorResponse{Codespace: codespace, Code: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
