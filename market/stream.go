package market

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"nofx/logger"
)

// klineStreamMsg is the payload shape of a Binance futures combined-stream
// kline event, trimmed to the fields LiveRefresher needs.
type klineStreamMsg struct {
	Stream string `json:"stream"`
	Data   struct {
		Kline struct {
			Symbol string `json:"s"`
			Closed bool   `json:"x"`
		} `json:"k"`
	} `json:"data"`
}

// LiveRefresher subscribes to Binance's combined kline stream and
// invalidates the corresponding Service cache entry as soon as a candle
// closes, so the next Snapshot call refetches instead of waiting out the
// TTL. Reconnects on any read failure with a fixed backoff.
type LiveRefresher struct {
	svc       *Service
	symbols   []string
	interval  string
	batchSize int

	mu      sync.Mutex
	conn    *websocket.Conn
	done    chan struct{}
	closing bool
}

// NewLiveRefresher builds a refresher for svc over the given symbols and
// kline interval. batchSize caps how many streams are requested per
// subscribe message, mirroring Binance's own per-message stream limit.
func NewLiveRefresher(svc *Service, symbols []string, interval string, batchSize int) *LiveRefresher {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &LiveRefresher{
		svc:       svc,
		symbols:   symbols,
		interval:  interval,
		batchSize: batchSize,
		done:      make(chan struct{}),
	}
}

// Start connects and begins invalidating cache entries in the background.
// It returns once the first connection succeeds; reconnection after that
// point happens internally and is logged, never returned to the caller.
func (r *LiveRefresher) Start() error {
	if err := r.connect(); err != nil {
		return err
	}
	go r.readLoop()
	return nil
}

// Stop tears down the connection and stops reconnecting.
func (r *LiveRefresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closing {
		return
	}
	r.closing = true
	close(r.done)
	if r.conn != nil {
		r.conn.Close()
	}
}

func (r *LiveRefresher) connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial("wss://fstream.binance.com/stream", nil)
	if err != nil {
		return fmt.Errorf("market: combined stream dial failed: %w", err)
	}

	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()

	return r.subscribe(conn)
}

func (r *LiveRefresher) subscribe(conn *websocket.Conn) error {
	for i := 0; i < len(r.symbols); i += r.batchSize {
		end := i + r.batchSize
		if end > len(r.symbols) {
			end = len(r.symbols)
		}
		batch := r.symbols[i:end]

		streams := make([]string, len(batch))
		for j, symbol := range batch {
			streams[j] = fmt.Sprintf("%s@kline_%s", strings.ToLower(symbol), r.interval)
		}

		msg := map[string]any{
			"method": "SUBSCRIBE",
			"params": streams,
			"id":     time.Now().UnixNano(),
		}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("market: subscribe batch %d: %w", i/r.batchSize+1, err)
		}
	}
	return nil
}

func (r *LiveRefresher) readLoop() {
	for {
		select {
		case <-r.done:
			return
		default:
		}

		r.mu.Lock()
		conn := r.conn
		r.mu.Unlock()
		if conn == nil {
			time.Sleep(time.Second)
			continue
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-r.done:
				return
			default:
			}
			logger.Warnf("market: combined stream read failed, reconnecting: %v", err)
			time.Sleep(3 * time.Second)
			if err := r.connect(); err != nil {
				logger.Warnf("market: combined stream reconnect failed: %v", err)
			}
			continue
		}

		r.handle(raw)
	}
}

func (r *LiveRefresher) handle(raw []byte) {
	var msg klineStreamMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if !msg.Data.Kline.Closed {
		return
	}
	r.svc.Invalidate(msg.Data.Kline.Symbol)
}
