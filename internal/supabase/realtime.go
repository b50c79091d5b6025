package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Change is one row change delivered by the realtime feed.
type Change struct {
	Schema    string         `json:"schema"`
	Table     string         `json:"table"`
	Type      string         `json:"type"` // INSERT, UPDATE or DELETE
	Record    map[string]any `json:"record"`
	OldRecord map[string]any `json:"old_record"`
}

// Field returns a string column from the new row, falling back to the old one.
func (c Change) Field(name string) string {
	for _, rec := range []map[string]any{c.Record, c.OldRecord} {
		if v, ok := rec[name]; ok && v != nil {
			if s, ok := v.(string); ok {
				return s
			}
			return fmt.Sprint(v)
		}
	}
	return ""
}

type ChangeHandler func(Change)

type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

// Listener subscribes to postgres_changes for a set of public tables and
// dispatches them to handlers. Run reconnects until its context ends.
type Listener struct {
	url       string
	tables    []string
	heartbeat time.Duration
	log       logrus.FieldLogger

	mu       sync.RWMutex
	handlers map[string][]ChangeHandler
	ref      int64
}

func NewListener(baseURL, apiKey string, tables []string, log logrus.FieldLogger) *Listener {
	ws := baseURL
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	ws = strings.TrimSuffix(ws, "/") + "/realtime/v1/websocket?apikey=" + apiKey + "&vsn=1.0.0"
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Listener{
		url:       ws,
		tables:    tables,
		heartbeat: 25 * time.Second,
		log:       log,
		handlers:  make(map[string][]ChangeHandler),
	}
}

// On registers h for changes of table.
func (l *Listener) On(table string, h ChangeHandler) {
	l.mu.Lock()
	l.handlers[table] = append(l.handlers[table], h)
	l.mu.Unlock()
}

func (l *Listener) nextRef() string {
	return strconv.FormatInt(atomic.AddInt64(&l.ref, 1), 10)
}

func (l *Listener) Run(ctx context.Context) {
	delay := time.Second
	for {
		start := time.Now()
		err := l.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if time.Since(start) > time.Minute {
			delay = time.Second
		}
		l.log.WithError(err).WithField("retry_in", delay).Warn("realtime connection lost")
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
}

func (l *Listener) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, l.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	var writeMu sync.Mutex
	send := func(m phxMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(m)
	}

	for _, table := range l.tables {
		payload, _ := json.Marshal(map[string]any{
			"config": map[string]any{
				"postgres_changes": []map[string]string{{"event": "*", "schema": "public", "table": table}},
			},
		})
		if err := send(phxMessage{Topic: "realtime:public:" + table, Event: "phx_join", Payload: payload, Ref: l.nextRef()}); err != nil {
			return fmt.Errorf("join %s: %w", table, err)
		}
	}
	l.log.WithField("tables", l.tables).Info("realtime subscribed")

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(l.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				writeMu.Lock()
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				writeMu.Unlock()
				conn.Close()
				return
			case <-ticker.C:
				if err := send(phxMessage{Topic: "phoenix", Event: "heartbeat", Payload: json.RawMessage(`{}`), Ref: l.nextRef()}); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		var msg phxMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		if msg.Event != "postgres_changes" {
			continue
		}
		var payload struct {
			Data Change `json:"data"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			l.log.WithError(err).Warn("undecodable realtime payload")
			continue
		}
		l.dispatch(payload.Data)
	}
}

func (l *Listener) dispatch(ch Change) {
	l.mu.RLock()
	hs := append([]ChangeHandler(nil), l.handlers[ch.Table]...)
	l.mu.RUnlock()
	for _, h := range hs {
		h(ch)
	}
}
