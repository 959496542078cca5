package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/olyamironova/exchange-sim/internal/api/dto"
	"github.com/olyamironova/exchange-sim/internal/core"
	"github.com/olyamironova/exchange-sim/internal/domain"
	"github.com/olyamironova/exchange-sim/internal/middleware"
	"go.uber.org/zap"
)

type HTTPServer struct {
	Eng      *core.Engine
	log      *zap.Logger
	limiter  *middleware.RateLimiter
	upgrader websocket.Upgrader
	srv      *http.Server
}

func NewHTTPServer(eng *core.Engine, log *zap.Logger, rateLimit time.Duration) *HTTPServer {
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPServer{
		Eng:      eng,
		log:      log,
		limiter:  middleware.NewRateLimiter(rateLimit),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

func (s *HTTPServer) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(s.log))

	r.POST("/instruments", s.listInstrument)
	r.GET("/instruments", s.listInstruments)
	r.GET("/instruments/:symbol", s.getInstrument)
	r.POST("/orders", s.limiter.Middleware(), s.submitOrder)
	r.GET("/quote/:symbol", s.getQuote)
	r.GET("/depth/:symbol", s.getDepth)
	r.GET("/ws/depth/:symbol", s.streamDepth)
	return r
}

func (s *HTTPServer) Run(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info("http server listening", zap.String("addr", addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *HTTPServer) listInstrument(c *gin.Context) {
	var req dto.ListInstrumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}
	inst, err := BuildInstrument(&req)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.Eng.ListInstrument(c.Request.Context(), inst); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, convertInstrument(inst))
}

func (s *HTTPServer) listInstruments(c *gin.Context) {
	insts := s.Eng.Instruments()
	res := dto.ListInstrumentsResponse{Instruments: make([]dto.Instrument, 0, len(insts))}
	for _, inst := range insts {
		res.Instruments = append(res.Instruments, convertInstrument(inst))
	}
	c.JSON(http.StatusOK, res)
}

func (s *HTTPServer) getInstrument(c *gin.Context) {
	inst, ok := s.Eng.Instrument(c.Param("symbol"))
	if !ok {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: domain.ErrInstrumentNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, convertInstrument(inst))
}

func (s *HTTPServer) submitOrder(c *gin.Context) {
	var req dto.SubmitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}
	sr, err := ValidateOrder(&req)
	if err != nil {
		s.fail(c, err)
		return
	}
	exec, err := s.Eng.SubmitOrder(c.Request.Context(), sr)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convertExecution(exec))
}

func (s *HTTPServer) getQuote(c *gin.Context) {
	q, err := s.Eng.Quote(c.Param("symbol"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.QuoteResponse{
		Symbol:     q.Symbol,
		BestBid:    q.BestBid,
		BestAsk:    q.BestAsk,
		BuyVolume:  q.BuyVolume,
		SellVolume: q.SellVolume,
	})
}

func (s *HTTPServer) getDepth(c *gin.Context) {
	snap, err := s.Eng.Depth(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convertDepth(snap))
}

// streamDepth pushes the current depth of a symbol, then every update after it.
func (s *HTTPServer) streamDepth(c *gin.Context) {
	symbol := c.Param("symbol")
	inst, ok := s.Eng.Instrument(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: domain.ErrInstrumentNotFound.Error()})
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	defer conn.Close()

	sub := s.Eng.Subscribe(32)
	defer s.Eng.Unsubscribe(sub)

	snap, err := s.Eng.Depth(c.Request.Context(), inst.Symbol)
	if err == nil {
		if err := conn.WriteJSON(convertDepth(snap)); err != nil {
			return
		}
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case snap, ok := <-sub.C:
			if !ok {
				return
			}
			if snap.Symbol != inst.Symbol {
				continue
			}
			if err := conn.WriteJSON(convertDepth(snap)); err != nil {
				return
			}
		}
	}
}

func (s *HTTPServer) fail(c *gin.Context, err error) {
	code := StatusFor(err)
	if code >= http.StatusInternalServerError {
		_ = c.Error(err)
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(code, dto.ErrorResponse{Error: err.Error()})
}

// StatusFor maps engine errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrInvalidSide),
		errors.Is(err, domain.ErrInvalidOrderType),
		errors.Is(err, domain.ErrInvalidInstrument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInstrumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInstrumentExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoLiquidity):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
