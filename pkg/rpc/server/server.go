package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru"
	"github.com/toicours/fundme-go/pkg/config"
	"github.com/toicours/fundme-go/pkg/core/ledger"
	"github.com/toicours/fundme-go/pkg/encoding/address"
	"github.com/toicours/fundme-go/pkg/rpc/request"
	"github.com/toicours/fundme-go/pkg/rpc/response"
	"github.com/toicours/fundme-go/pkg/rpc/response/result"
	"go.uber.org/zap"
)

type (
	// Server represents the JSON-RPC 2.0 server.
	Server struct {
		*http.Server
		ledger    *ledger.Ledger
		config    config.RPCConfig
		userAgent string
		minimum   config.LedgerConfiguration
		log       *zap.Logger

		receipts *lru.Cache

		upgrader    websocket.Upgrader
		events      chan ledger.Event
		shutdown    chan struct{}
		subsLock    sync.RWMutex
		subscribers map[*subscriber]bool
	}

	eventPayload struct {
		Account string `json:"account"`
		Amount  string `json:"amount"`
	}
)

const (
	// Message limit for receiving side.
	wsReadLimit = 4096

	// Maximum number of sequentially cached receipts served via getreceipt.
	receiptCacheSize = 1000

	defaultMaxWebSocketClients = 64
)

// New creates a new Server struct.
func New(ld *ledger.Ledger, conf config.Config, log *zap.Logger) *Server {
	rpcConf := conf.ApplicationConfiguration.RPC
	httpServer := &http.Server{
		Addr: rpcConf.Addr(),
	}

	receipts, _ := lru.New(receiptCacheSize)

	return &Server{
		Server:    httpServer,
		ledger:    ld,
		config:    rpcConf,
		userAgent: conf.GenerateUserAgent(),
		minimum:   conf.LedgerConfiguration,
		log:       log,

		receipts: receipts,

		events:      make(chan ledger.Event, notificationBufSize),
		shutdown:    make(chan struct{}),
		subscribers: make(map[*subscriber]bool),
	}
}

// Start creates a new JSON-RPC server listening on the configured port.
func (s *Server) Start(errChan chan error) {
	if !s.config.Enabled {
		s.log.Info("RPC server is not enabled")
		return
	}
	s.Handler = http.HandlerFunc(s.requestHandler)
	s.ledger.SubscribeForEvents(s.events)
	go s.handleSubEvents()
	s.log.Info("starting rpc-server", zap.String("endpoint", s.Addr))

	errChan <- s.ListenAndServe()
}

// Shutdown overrides the http.Server Shutdown method.
func (s *Server) Shutdown() error {
	if !s.config.Enabled {
		return nil
	}
	s.log.Info("shutting down rpc-server", zap.String("endpoint", s.Addr))
	err := s.Server.Shutdown(context.Background())
	s.ledger.UnsubscribeFromEvents(s.events)
	close(s.shutdown)
	return err
}

func (s *Server) requestHandler(w http.ResponseWriter, httpRequest *http.Request) {
	req := request.NewIn()

	if httpRequest.URL.Path == "/ws" && httpRequest.Method == "GET" {
		s.subsLock.RLock()
		numOfSubs := len(s.subscribers)
		s.subsLock.RUnlock()
		maxSubs := s.config.MaxWebSocketClients
		if maxSubs == 0 {
			maxSubs = defaultMaxWebSocketClients
		}
		if numOfSubs >= maxSubs {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		ws, err := s.upgrader.Upgrade(w, httpRequest, nil)
		if err != nil {
			s.log.Info("websocket connection upgrade failed", zap.Error(err))
			return
		}
		subChan := make(chan *websocket.PreparedMessage, notificationBufSize)
		subscr := &subscriber{writer: subChan, ws: ws}
		s.subsLock.Lock()
		s.subscribers[subscr] = true
		s.subsLock.Unlock()
		go s.handleWsWrites(ws, subChan)
		s.handleWsReads(ws, subscr)
		return
	}

	if httpRequest.Method != "POST" {
		s.WriteErrorResponse(
			req,
			w,
			response.NewInvalidParamsError(
				fmt.Sprintf("Invalid method '%s', please retry with 'POST'", httpRequest.Method), nil,
			),
		)
		return
	}

	err := req.DecodeData(httpRequest.Body)
	if err != nil {
		s.WriteErrorResponse(req, w, response.NewParseError("Problem parsing JSON-RPC request body", err))
		return
	}

	results, resultsErr := s.handleIn(httpRequest.Context(), req, nil)
	if resultsErr != nil {
		s.WriteErrorResponse(req, w, resultsErr)
		return
	}
	s.WriteResponse(req, w, results)
}

// handleIn dispatches one decoded request to the matching method, sub is
// non-nil for requests made over a websocket connection.
func (s *Server) handleIn(ctx context.Context, req *request.In, sub *subscriber) (interface{}, *response.Error) {
	reqParams, err := req.Params()
	if err != nil {
		return nil, response.NewInvalidParamsError("Problem parsing request parameters", err)
	}

	s.log.Debug("processing rpc request",
		zap.String("method", req.Method),
		zap.String("params", fmt.Sprintf("%v", *reqParams)))

	incCounter(req.Method)

	switch req.Method {
	case "contribute":
		return s.contribute(ctx, *reqParams)
	case "withdraw":
		return s.withdraw(ctx, *reqParams, ledger.StrategyDirect)
	case "withdrawcheaper":
		return s.withdraw(ctx, *reqParams, ledger.StrategySnapshot)
	case "getversion":
		return s.getVersion(ctx)
	case "getamountfunded":
		return s.getAmountFunded(*reqParams)
	case "getfunder":
		return s.getFunder(*reqParams)
	case "getfundercount":
		count, err := s.ledger.FunderCount()
		if err != nil {
			return nil, response.NewInternalServerError("failed to read funder count", err)
		}
		return count, nil
	case "getowner":
		return address.Uint160ToString(s.ledger.Owner()), nil
	case "getheldbalance":
		held, err := s.ledger.HeldBalance()
		if err != nil {
			return nil, response.NewInternalServerError("failed to read held balance", err)
		}
		return result.Amount{Amount: held.ToBig().String()}, nil
	case "getreceipt":
		return s.getReceipt(*reqParams)
	case "validateaddress":
		param := reqParams.Value(0)
		if param == nil {
			return nil, response.ErrInvalidParams
		}
		return validateAddress(param.RawMessage), nil
	case "subscribe":
		if sub == nil {
			return nil, response.NewInternalServerError("websocket connection required", nil)
		}
		return s.subscribe(*reqParams, sub)
	case "unsubscribe":
		if sub == nil {
			return nil, response.NewInternalServerError("websocket connection required", nil)
		}
		return s.unsubscribe(*reqParams, sub)
	default:
		return nil, response.NewMethodNotFoundError(fmt.Sprintf("Method '%s' not supported", req.Method), nil)
	}
}

func (s *Server) contribute(ctx context.Context, ps request.Params) (interface{}, *response.Error) {
	acc, err := ps.Value(0).GetUint160FromAddressOrHex()
	if err != nil {
		return nil, response.ErrInvalidParams
	}
	amount, err := ps.Value(1).GetUint256()
	if err != nil {
		return nil, response.ErrInvalidParams
	}
	receipt, err := s.ledger.Contribute(ctx, acc, amount)
	if err != nil {
		return nil, response.NewLedgerError(err)
	}
	s.receipts.Add(receipt.ID, receipt)
	return receipt, nil
}

func (s *Server) withdraw(ctx context.Context, ps request.Params, strategy ledger.WithdrawStrategy) (interface{}, *response.Error) {
	caller, err := ps.Value(0).GetUint160FromAddressOrHex()
	if err != nil {
		return nil, response.ErrInvalidParams
	}
	var receipt *ledger.Receipt
	if strategy == ledger.StrategySnapshot {
		receipt, err = s.ledger.WithdrawCheaper(ctx, caller)
	} else {
		receipt, err = s.ledger.Withdraw(ctx, caller)
	}
	if err != nil {
		return nil, response.NewLedgerError(err)
	}
	s.receipts.Add(receipt.ID, receipt)
	return receipt, nil
}

func (s *Server) getVersion(ctx context.Context) (interface{}, *response.Error) {
	round, err := s.ledger.Version(ctx)
	if err != nil {
		return nil, response.NewInternalServerError("failed to query price feed version", err)
	}
	return result.Version{
		UserAgent:    s.userAgent,
		OracleRound:  round,
		MinimumUSD:   s.minimum.MinimumUSD,
		MaxWSClients: s.config.MaxWebSocketClients,
	}, nil
}

func (s *Server) getAmountFunded(ps request.Params) (interface{}, *response.Error) {
	acc, err := ps.Value(0).GetUint160FromAddressOrHex()
	if err != nil {
		return nil, response.ErrInvalidParams
	}
	amount, err := s.ledger.AmountFunded(acc)
	if err != nil {
		return nil, response.NewInternalServerError("failed to read funded amount", err)
	}
	return result.Amount{Amount: amount.ToBig().String()}, nil
}

func (s *Server) getFunder(ps request.Params) (interface{}, *response.Error) {
	index, err := ps.Value(0).GetInt()
	if err != nil || index < 0 {
		return nil, response.ErrInvalidParams
	}
	funder, err := s.ledger.Funder(uint32(index))
	if err != nil {
		return nil, response.NewLedgerError(err)
	}
	return result.Funder{
		Index:   uint32(index),
		Address: address.Uint160ToString(funder),
	}, nil
}

func (s *Server) getReceipt(ps request.Params) (interface{}, *response.Error) {
	id, err := ps.Value(0).GetUUID()
	if err != nil {
		return nil, response.ErrInvalidParams
	}
	receipt, ok := s.receipts.Get(id)
	if !ok {
		return nil, response.NewUnknownReceiptError(id.String())
	}
	return receipt, nil
}

func (s *Server) subscribe(ps request.Params, sub *subscriber) (interface{}, *response.Error) {
	streamName, err := ps.Value(0).GetString()
	if err != nil {
		return nil, response.ErrInvalidParams
	}
	event, err := response.GetEventIDFromString(streamName)
	if err != nil || event == response.MissedEventID {
		return nil, response.ErrInvalidParams
	}
	s.subsLock.Lock()
	defer s.subsLock.Unlock()
	id := -1
	for i := range sub.feeds {
		if sub.feeds[i] == response.InvalidEventID {
			id = i
			break
		}
	}
	if id == -1 {
		return nil, response.NewInternalServerError("maximum number of subscriptions is reached", nil)
	}
	sub.feeds[id] = event
	return id, nil
}

func (s *Server) unsubscribe(ps request.Params, sub *subscriber) (interface{}, *response.Error) {
	id, err := ps.Value(0).GetInt()
	if err != nil || id < 0 || id >= len(sub.feeds) {
		return nil, response.ErrInvalidParams
	}
	s.subsLock.Lock()
	defer s.subsLock.Unlock()
	if sub.feeds[id] == response.InvalidEventID {
		return nil, response.ErrInvalidParams
	}
	sub.feeds[id] = response.InvalidEventID
	return true, nil
}

func (s *Server) handleWsWrites(ws *websocket.Conn, subChan <-chan *websocket.PreparedMessage) {
	for {
		select {
		case <-s.shutdown:
			break
		case event, ok := <-subChan:
			if !ok {
				break
			}
			if err := ws.WritePreparedMessage(event); err != nil {
				break
			}
			continue
		}
		break
	}
	ws.Close()
}

func (s *Server) handleWsReads(ws *websocket.Conn, subscr *subscriber) {
	ws.SetReadLimit(wsReadLimit)
	for {
		req := request.NewIn()
		err := ws.ReadJSON(req)
		if err != nil {
			break
		}
		res, resErr := s.handleIn(context.Background(), req, subscr)
		var resp response.Raw
		if resErr != nil {
			resp = s.packErrorResponse(req, resErr)
		} else {
			resp, err = s.packResponse(req, res)
			if err != nil {
				break
			}
		}
		b, err := json.Marshal(resp)
		if err != nil {
			break
		}
		pm, err := websocket.NewPreparedMessage(websocket.TextMessage, b)
		if err != nil {
			break
		}
		select {
		case <-s.shutdown:
		case subscr.writer <- pm:
			continue
		}
		break
	}
	s.subsLock.Lock()
	delete(s.subscribers, subscr)
	s.subsLock.Unlock()
	close(subscr.writer)
	ws.Close()
}

// handleSubEvents pumps ledger events to matching subscribed clients.
func (s *Server) handleSubEvents() {
	for {
		var e ledger.Event
		select {
		case <-s.shutdown:
			return
		case e = <-s.events:
		}
		eventID := eventIDFromLedger(e.Type)
		msg := response.Notification{
			JSONRPC: request.JSONRPCVersion,
			Event:   eventID,
			Payload: []interface{}{eventPayload{
				Account: address.Uint160ToString(e.Account),
				Amount:  e.Amount.ToBig().String(),
			}},
		}
		b, err := json.Marshal(msg)
		if err != nil {
			s.log.Error("failed to marshal notification",
				zap.Error(err),
				zap.String("type", eventID.String()))
			continue
		}
		pm, err := websocket.NewPreparedMessage(websocket.TextMessage, b)
		if err != nil {
			s.log.Error("failed to prepare notification message", zap.Error(err))
			continue
		}
		s.subsLock.RLock()
		for sub := range s.subscribers {
			for i := range sub.feeds {
				if sub.feeds[i] == eventID {
					select {
					case sub.writer <- pm:
					default:
					}
					break
				}
			}
		}
		s.subsLock.RUnlock()
	}
}

func eventIDFromLedger(t ledger.EventType) response.EventID {
	switch t {
	case ledger.ContributionMade:
		return response.ContributionEventID
	case ledger.FundsWithdrawn:
		return response.WithdrawalEventID
	default:
		return response.InvalidEventID
	}
}

func (s *Server) packResponse(r *request.In, result interface{}) (response.Raw, error) {
	resJSON, err := json.Marshal(result)
	if err != nil {
		s.log.Error("failed to marshal result",
			zap.Error(err),
			zap.String("method", r.Method))
		return response.Raw{}, err
	}
	return response.Raw{
		HeaderAndError: response.HeaderAndError{
			Header: response.Header{
				JSONRPC: r.JSONRPC,
				ID:      r.RawID,
			},
		},
		Result: resJSON,
	}, nil
}

func (s *Server) packErrorResponse(r *request.In, jsonErr *response.Error) response.Raw {
	return response.Raw{
		HeaderAndError: response.HeaderAndError{
			Header: response.Header{
				JSONRPC: r.JSONRPC,
				ID:      r.RawID,
			},
			Error: jsonErr,
		},
	}
}

// WriteErrorResponse writes an error response to the ResponseWriter.
func (s *Server) WriteErrorResponse(r *request.In, w http.ResponseWriter, err error) {
	jsonErr, ok := err.(*response.Error)
	if !ok {
		jsonErr = response.NewInternalServerError("Internal server error", err)
	}

	logFields := []zap.Field{
		zap.Error(jsonErr.Cause),
		zap.String("method", r.Method),
	}
	params, perr := r.Params()
	if perr == nil {
		logFields = append(logFields, zap.Any("params", params))
	}
	s.log.Error("Error encountered with rpc request", logFields...)

	w.WriteHeader(jsonErr.HTTPCode)
	s.writeServerResponse(r, w, s.packErrorResponse(r, jsonErr))
}

// WriteResponse encodes the response and writes it to the ResponseWriter.
func (s *Server) WriteResponse(r *request.In, w http.ResponseWriter, result interface{}) {
	resp, err := s.packResponse(r, result)
	if err != nil {
		return
	}
	s.writeServerResponse(r, w, resp)
}

func (s *Server) writeServerResponse(r *request.In, w http.ResponseWriter, resp response.Raw) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	encoder := json.NewEncoder(w)
	err := encoder.Encode(resp)
	if err != nil {
		s.log.Error("Error encountered while encoding response",
			zap.String("err", err.Error()),
			zap.String("method", r.Method))
	}
}

// validateAddress checks whether the raw JSON value given is a valid
// base58check address.
func validateAddress(raw json.RawMessage) result.ValidateAddress {
	var addr interface{}
	_ = json.Unmarshal(raw, &addr)
	resp := result.ValidateAddress{Address: addr}
	if addr, ok := addr.(string); ok {
		_, err := address.StringToUint160(addr)
		resp.IsValid = (err == nil)
	}
	return resp
}
