package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"datedVamm/internal/market"
	"datedVamm/internal/model"
	"datedVamm/internal/vamm"
	"datedVamm/internal/vammmath"
)

// CallerHeader names the principal placing an order.
const CallerHeader = "X-Caller"

// Options configures the server.
type Options struct {
	Logger      *zap.Logger
	Gatherer    prometheus.Gatherer
	CORSOrigins []string
}

// Server exposes the manager over REST. Every manager call is serialized.
type Server struct {
	mu      sync.Mutex
	manager *market.Manager
	router  *mux.Router
	logger  *zap.Logger
	handler http.Handler
}

func NewServer(manager *market.Manager, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		manager: manager,
		router:  mux.NewRouter(),
		logger:  logger,
	}
	s.setupRoutes(opts.Gatherer)

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", CallerHeader},
	})
	s.handler = c.Handler(s.router)
	return s
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/pools", s.handleListPools).Methods("GET")
	api.HandleFunc("/pools", s.handleCreatePool).Methods("POST")

	pool := api.PathPrefix("/pools/{market}/{maturity}").Subrouter()
	pool.HandleFunc("", s.handleGetPool).Methods("GET")
	pool.HandleFunc("/pause", s.handlePause).Methods("POST")
	pool.HandleFunc("/config", s.handleUpdateConfig).Methods("PUT")
	pool.HandleFunc("/taker", s.handleTakerOrder).Methods("POST")
	pool.HandleFunc("/maker", s.handleMakerOrder).Methods("POST")
	pool.HandleFunc("/twap", s.handleTwap).Methods("GET")
	pool.HandleFunc("/accounts/{account}/filled", s.handleFilled).Methods("GET")
	pool.HandleFunc("/accounts/{account}/unfilled", s.handleUnfilled).Methods("GET")
	pool.HandleFunc("/accounts/{account}/positions", s.handlePositions).Methods("GET")
	pool.HandleFunc("/ticks", s.handleTicks).Methods("GET")

	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the CORS-wrapped router.
func (s *Server) Handler() http.Handler { return s.handler }

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server starting", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown api server: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	pools := len(s.manager.Pools())
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "pools": pools})
}

func (s *Server) handleListPools(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.manager.Pools()
	out := make([]PoolInfo, 0, len(keys))
	for _, k := range keys {
		marketID, _ := new(big.Int).SetString(k.MarketID, 10)
		pool, err := s.manager.Pool(marketID, k.Maturity)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		out = append(out, poolInfo(pool))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreatePool(w http.ResponseWriter, r *http.Request) {
	var req CreatePoolRequest
	if !decodeBody(w, r, &req) {
		return
	}
	marketID, err := parseInt("market_id", req.MarketID)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	params := market.CreatePoolParams{
		MarketID:    marketID,
		Maturity:    req.Maturity,
		TickSpacing: req.TickSpacing,
		InitialTick: req.InitialTick,
		Mutable:     req.Mutable,
	}
	if req.InitialSqrtPriceX96 != "" {
		sqrt, err := uint256.FromDecimal(req.InitialSqrtPriceX96)
		if err != nil {
			s.respondErr(w, model.ErrInvalidArgument.Wrapf("initial_sqrt_price_x96: %v", err))
			return
		}
		params.InitialSqrtPriceX96 = sqrt
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	pool, err := s.manager.CreatePool(r.Context(), params)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, poolInfo(pool))
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	marketID, maturity, err := instanceVars(r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pool, err := s.manager.Pool(marketID, maturity)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, poolInfo(pool))
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	marketID, maturity, err := instanceVars(r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	var req PauseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.manager.SetPaused(r.Context(), marketID, maturity, req.Paused); err != nil {
		s.respondErr(w, err)
		return
	}
	pool, err := s.manager.Pool(marketID, maturity)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, poolInfo(pool))
}

// handleUpdateConfig applies the body on top of the current settings, so
// omitted fields keep their values.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	marketID, maturity, err := instanceVars(r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pool, err := s.manager.Pool(marketID, maturity)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	cfg := pool.Config().Mutable
	if !decodeBody(w, r, &cfg) {
		return
	}
	if err := s.manager.UpdateMutableConfig(r.Context(), marketID, maturity, cfg); err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, poolInfo(pool))
}

func (s *Server) handleTakerOrder(w http.ResponseWriter, r *http.Request) {
	marketID, maturity, err := instanceVars(r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	var req TakerOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	params, err := takerParams(req)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	params.MarketID, params.Maturity, params.Caller = marketID, maturity, r.Header.Get(CallerHeader)

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.manager.ExecuteTakerOrder(r.Context(), params)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	out := TakerOrderResponse{
		ExecutedBase:       str(res.ExecutedBase),
		ExecutedQuote:      str(res.ExecutedQuote),
		AnnualizedNotional: str(res.AnnualizedNotional),
		Remaining:          str(res.Remaining),
		Tick:               res.Tick,
		SqrtPriceX96:       res.SqrtPriceX96.Dec(),
		Steps:              make([]SwapStepInfo, 0, len(res.Steps)),
	}
	for _, step := range res.Steps {
		out.Steps = append(out.Steps, SwapStepInfo{
			Base:        str(step.Base),
			Quote:       str(step.Quote),
			Price:       wadString(step.Price),
			Crossed:     step.Crossed,
			TickCrossed: step.TickCrossed,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleMakerOrder(w http.ResponseWriter, r *http.Request) {
	marketID, maturity, err := instanceVars(r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	var req MakerOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	account, err := parseInt("account_id", req.AccountID)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	params := market.MakerOrderParams{
		AccountID: account,
		MarketID:  marketID,
		Maturity:  maturity,
		TickLower: req.TickLower,
		TickUpper: req.TickUpper,
		Caller:    r.Header.Get(CallerHeader),
	}
	if req.LiquidityDelta != "" {
		if params.LiquidityDelta, err = parseInt("liquidity_delta", req.LiquidityDelta); err != nil {
			s.respondErr(w, err)
			return
		}
	}
	if req.BaseAmount != "" {
		if params.BaseAmount, err = parseInt("base_amount", req.BaseAmount); err != nil {
			s.respondErr(w, err)
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.manager.ExecuteMakerOrder(r.Context(), params)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, MakerOrderResponse{
		PositionID:         res.Position.ID.Hex(),
		LiquidityDelta:     str(res.LiquidityDelta),
		Liquidity:          res.Position.Liquidity.Dec(),
		Base:               str(res.Base),
		AnnualizedNotional: str(res.AnnualizedNotional),
	})
}

func (s *Server) handleFilled(w http.ResponseWriter, r *http.Request) {
	marketID, maturity, account, err := accountVars(r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.manager.AccountFilledBalances(r.Context(), marketID, maturity, account)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, FilledBalancesResponse{
		Base:            str(b.Base),
		Quote:           str(b.Quote),
		AccruedInterest: str(b.AccruedInterest),
	})
}

func (s *Server) handleUnfilled(w http.ResponseWriter, r *http.Request) {
	marketID, maturity, account, err := accountVars(r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.manager.AccountUnfilledBalances(marketID, maturity, account)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, UnfilledBalancesResponse{
		BaseLong:      str(b.BaseLong),
		BaseShort:     str(b.BaseShort),
		QuoteLong:     str(b.QuoteLong),
		QuoteShort:    str(b.QuoteShort),
		AvgPriceLong:  wadString(b.AvgPriceLong),
		AvgPriceShort: wadString(b.AvgPriceShort),
	})
}

// handlePositions lists committed positions as last marked; use /filled for
// balances marked to the current rate.
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	marketID, maturity, account, err := accountVars(r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pool, err := s.manager.Pool(marketID, maturity)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	out := []PositionInfo{}
	for _, pos := range pool.AccountPositions(account) {
		out = append(out, PositionInfo{
			PositionID:      pos.ID.Hex(),
			TickLower:       pos.Key.TickLower,
			TickUpper:       pos.Key.TickUpper,
			Liquidity:       pos.Liquidity.Dec(),
			Base:            str(pos.Base),
			Quote:           str(pos.Quote),
			AccruedInterest: str(pos.AccruedInterest),
			LastMark:        pos.LastMark,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleTicks(w http.ResponseWriter, r *http.Request) {
	marketID, maturity, err := instanceVars(r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pool, err := s.manager.Pool(marketID, maturity)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	out := []TickInfo{}
	for _, t := range pool.InitializedTicks() {
		price, err := vammmath.PriceAtTick(t)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		info := pool.Tick(t)
		out = append(out, TickInfo{
			Tick:           t,
			Price:          wadString(price),
			LiquidityGross: info.LiquidityGross.Dec(),
			LiquidityNet:   str(info.LiquidityNet),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleTwap(w http.ResponseWriter, r *http.Request) {
	marketID, maturity, err := instanceVars(r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	q := r.URL.Query()
	size := new(big.Int)
	if raw := q.Get("size"); raw != "" {
		if size, err = parseInt("size", raw); err != nil {
			s.respondErr(w, err)
			return
		}
	}
	var window int64
	if raw := q.Get("window"); raw != "" {
		if window, err = strconv.ParseInt(raw, 10, 64); err != nil {
			s.respondErr(w, model.ErrInvalidArgument.Wrapf("window: %v", err))
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	price, err := s.manager.AdjustedTwap(r.Context(), marketID, maturity, size, window)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, TwapResponse{Price: price.String(), Window: window, Size: size.String()})
}

func takerParams(req TakerOrderRequest) (market.TakerOrderParams, error) {
	var (
		out market.TakerOrderParams
		err error
	)
	if out.AccountID, err = parseInt("account_id", req.AccountID); err != nil {
		return out, err
	}
	if out.BaseAmount, err = parseInt("base_amount", req.BaseAmount); err != nil {
		return out, err
	}
	if req.PriceLimit != "" {
		limit, err := parseDec("price_limit", req.PriceLimit)
		if err != nil {
			return out, err
		}
		out.PriceLimit = limit.BigInt()
	}
	if out.MarkPrice, err = parseDec("mark_price", req.MarkPrice); err != nil {
		return out, err
	}
	out.MarkPriceBand = sdkmath.LegacyZeroDec()
	if req.MarkPriceBand != "" {
		if out.MarkPriceBand, err = parseDec("mark_price_band", req.MarkPriceBand); err != nil {
			return out, err
		}
	}
	return out, nil
}

func poolInfo(pool *vamm.Pool) PoolInfo {
	cfg := pool.Config()
	state := pool.State()
	return PoolInfo{
		MarketID:     cfg.Immutable.MarketID.String(),
		Maturity:     cfg.Immutable.Maturity,
		TickSpacing:  cfg.Immutable.TickSpacing,
		Tick:         state.Tick,
		SqrtPriceX96: state.SqrtPriceX96.Dec(),
		Liquidity:    state.Liquidity.Dec(),
		Price:        wadString(vammmath.PriceAtSqrtRatio(state.SqrtPriceX96)),
		Locked:       pool.Locked(),
		Mutable:      cfg.Mutable,
	}
}

func instanceVars(r *http.Request) (*big.Int, uint32, error) {
	vars := mux.Vars(r)
	marketID, err := parseInt("market", vars["market"])
	if err != nil {
		return nil, 0, err
	}
	maturity, err := strconv.ParseUint(vars["maturity"], 10, 32)
	if err != nil {
		return nil, 0, model.ErrInvalidArgument.Wrapf("maturity: %v", err)
	}
	return marketID, uint32(maturity), nil
}

func accountVars(r *http.Request) (*big.Int, uint32, *big.Int, error) {
	marketID, maturity, err := instanceVars(r)
	if err != nil {
		return nil, 0, nil, err
	}
	account, err := parseInt("account", mux.Vars(r)["account"])
	if err != nil {
		return nil, 0, nil, err
	}
	return marketID, maturity, account, nil
}

func parseInt(field, raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, model.ErrInvalidArgument.Wrapf("%s: invalid integer %q", field, raw)
	}
	return v, nil
}

func parseDec(field, raw string) (sdkmath.LegacyDec, error) {
	d, err := sdkmath.LegacyNewDecFromStr(raw)
	if err != nil {
		return sdkmath.LegacyDec{}, model.ErrInvalidArgument.Wrapf("%s: %v", field, err)
	}
	return d, nil
}

func wadString(v *big.Int) string {
	if v == nil {
		return sdkmath.LegacyZeroDec().String()
	}
	return sdkmath.LegacyNewDecFromBigIntWithPrec(v, sdkmath.LegacyPrecision).String()
}

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

// respondErr maps engine errors to HTTP statuses and includes the registered
// code so clients can tell rejections apart.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	codespace, code, _ := errorsmod.ABCIInfo(err, false)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:     http.StatusText(status),
		Message:   err.Error(),
		Codespace: codespace,
		Code:      code,
	})
}

func statusFor(err error) int {
	switch {
	case errorsmod.IsOf(err, model.ErrPoolNotFound):
		return http.StatusNotFound
	case errorsmod.IsOf(err, model.ErrUnauthorized):
		return http.StatusForbidden
	case errorsmod.IsOf(err, model.ErrInsufficientLiquidity), model.IsPolicyRejection(err):
		return http.StatusConflict
	case model.IsInvariantViolation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
