package feed

import (
	"context"
	"strconv"

	binance "github.com/adshao/go-binance/v2"
	"github.com/tradecanvas/paperbroker/internal/logger"
	"github.com/tradecanvas/paperbroker/internal/types"
	"github.com/tradecanvas/paperbroker/pkg/errors"
	"go.uber.org/zap"
)

// WsAggTradeHandler handles a raw aggregated-trade event.
type WsAggTradeHandler func(event *binance.WsAggTradeEvent)

// WsErrorHandler handles a websocket transport error.
type WsErrorHandler func(err error)

// BinanceWebSocketService abstracts the go-binance websocket entry point so
// tests can drive the feed without a network connection.
type BinanceWebSocketService interface {
	WsAggTradeServe(symbol string, handler WsAggTradeHandler, errHandler WsErrorHandler) (doneC, stopC chan struct{}, err error)
}

type liveBinanceWebSocket struct{}

func (liveBinanceWebSocket) WsAggTradeServe(symbol string, handler WsAggTradeHandler, errHandler WsErrorHandler) (chan struct{}, chan struct{}, error) {
	return binance.WsAggTradeServe(symbol, binance.WsAggTradeHandler(handler), binance.ErrHandler(errHandler))
}

// BinanceFeed streams aggregated trades from Binance spot websockets. Every
// trade becomes one tick; there is no bar aggregation.
type BinanceFeed struct {
	ws  BinanceWebSocketService
	log *logger.Logger
}

// NewBinanceFeed creates a feed backed by the live Binance websocket API.
func NewBinanceFeed(log *logger.Logger) *BinanceFeed {
	return &BinanceFeed{
		ws:  liveBinanceWebSocket{},
		log: log,
	}
}

// NewBinanceFeedWithWebSocket creates a feed over an injected websocket
// service. Used by tests.
func NewBinanceFeedWithWebSocket(ws BinanceWebSocketService, log *logger.Logger) *BinanceFeed {
	return &BinanceFeed{
		ws:  ws,
		log: log,
	}
}

// Stream implements Feed. It opens one websocket per symbol and blocks until
// the context is canceled or a transport error occurs.
func (f *BinanceFeed) Stream(ctx context.Context, symbols []string, handler Handler) error {
	if len(symbols) == 0 {
		return errors.New(errors.ErrCodeFeedConnect, "no symbols provided")
	}

	errCh := make(chan error, len(symbols))

	var (
		stops []chan struct{}
		dones []chan struct{}
	)

	for _, symbol := range symbols {
		wsHandler := func(event *binance.WsAggTradeEvent) {
			if event == nil {
				return
			}

			price, err := strconv.ParseFloat(event.Price, 64)
			if err != nil {
				f.log.Warn("discarded unparseable trade price",
					zap.String("symbol", event.Symbol),
					zap.String("price", event.Price),
				)

				return
			}

			handler(types.NewTick(event.Symbol, price, event.TradeTime))
		}

		errHandler := func(err error) {
			select {
			case errCh <- errors.Wrapf(errors.ErrCodeFeedConnect, err, "websocket error for %s", symbol):
			default:
			}
		}

		doneC, stopC, err := f.ws.WsAggTradeServe(symbol, wsHandler, errHandler)
		if err != nil {
			for _, stop := range stops {
				close(stop)
			}

			return errors.Wrapf(errors.ErrCodeFeedConnect, err, "failed to start websocket for %s", symbol)
		}

		stops = append(stops, stopC)
		dones = append(dones, doneC)

		f.log.Info("subscribed to aggregated trades", zap.String("symbol", symbol))
	}

	var streamErr error

	select {
	case <-ctx.Done():
		streamErr = ctx.Err()
	case err := <-errCh:
		streamErr = err
	}

	for _, stop := range stops {
		close(stop)
	}

	for _, done := range dones {
		<-done
	}

	return streamErr
}
