package feed

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"
	"github.com/tradecanvas/paperbroker/internal/logger"
	"github.com/tradecanvas/paperbroker/internal/types"
	"github.com/tradecanvas/paperbroker/pkg/errors"
	"go.uber.org/zap"
)

// wireTick is the JSON frame accepted by the generic websocket feed. Time is
// epoch milliseconds.
type wireTick struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Time   int64   `json:"time"`
}

type subscribeFrame struct {
	Op      string   `json:"op"`
	Symbols []string `json:"symbols"`
}

// WebSocketFeed consumes ticks from any endpoint speaking the plain JSON tick
// frame. It subscribes by sending {"op":"subscribe","symbols":[...]} after
// connecting, which is also what the paper-trading UI emits.
type WebSocketFeed struct {
	url string
	log *logger.Logger
}

// NewWebSocketFeed creates a feed for the given ws:// or wss:// URL.
func NewWebSocketFeed(url string, log *logger.Logger) *WebSocketFeed {
	return &WebSocketFeed{
		url: url,
		log: log,
	}
}

// Stream implements Feed. Malformed frames are logged and skipped; a broken
// connection ends the stream with an error so the caller can decide whether
// to reconnect.
func (f *WebSocketFeed) Stream(ctx context.Context, symbols []string, handler Handler) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeFeedConnect, err, "failed to connect to %s", f.url)
	}

	defer conn.Close()

	if len(symbols) > 0 {
		if err := conn.WriteJSON(subscribeFrame{Op: "subscribe", Symbols: symbols}); err != nil {
			return errors.Wrap(errors.ErrCodeFeedConnect, "failed to subscribe", err)
		}
	}

	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		wanted[s] = true
	}

	// Unblock the read loop when the context is canceled.
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	f.log.Info("connected to tick feed", zap.String("url", f.url), zap.Strings("symbols", symbols))

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			return errors.Wrap(errors.ErrCodeFeedConnect, "connection lost", err)
		}

		var frame wireTick
		if err := json.Unmarshal(payload, &frame); err != nil {
			f.log.Warn("discarded malformed tick frame", zap.Error(err))

			continue
		}

		if frame.Symbol == "" || (len(wanted) > 0 && !wanted[frame.Symbol]) {
			continue
		}

		handler(types.NewTick(frame.Symbol, frame.Price, frame.Time))
	}
}
