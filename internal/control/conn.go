package control

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/divinesarathi/voice/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Conversation is the voice session driven by control clients.
type Conversation interface {
	Open(ctx context.Context, topic domain.Topic) error
	Start() error
	Stop() error
	ToggleMute() bool
	Cleanup()
	Disconnect()
	Snapshot() domain.Snapshot
	Subscribe() (<-chan domain.Snapshot, func())
}

// command is a client request.
type command struct {
	Action string        `json:"action"`
	Topic  *domain.Topic `json:"topic,omitempty"`
}

// message is a server push: either a state snapshot or a command result.
type message struct {
	Type   string           `json:"type"`
	State  *domain.Snapshot `json:"state,omitempty"`
	Action string           `json:"action,omitempty"`
	OK     *bool            `json:"ok,omitempty"`
	Error  string           `json:"error,omitempty"`
	Kind   domain.ErrorKind `json:"kind,omitempty"`
	Muted  *bool            `json:"muted,omitempty"`
}

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Conn is one control client WebSocket.
type Conn struct {
	conn         *websocket.Conn
	conv         Conversation
	defaultTopic domain.Topic
	pingPeriod   time.Duration

	mu     sync.Mutex
	closed chan struct{}
	once   sync.Once
}

// Serve upgrades the request and runs the connection until the client goes
// away. Leaving tears the voice session down the way leaving the screen does.
func Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, conv Conversation, topic domain.Topic, pingPeriod time.Duration) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("module", "control").Msg("ws upgrade")
		return
	}

	c := &Conn{
		conn:         ws,
		conv:         conv,
		defaultTopic: topic,
		pingPeriod:   pingPeriod,
		closed:       make(chan struct{}),
	}
	log.Info().Str("module", "control").Str("remote", r.RemoteAddr).Msg("control client connected")

	ctx, cancel := context.WithCancel(ctx)
	updates, unsubscribe := conv.Subscribe()

	go c.forward(updates)
	go c.pingLoop()
	go func() {
		defer cancel()
		defer unsubscribe()
		c.readLoop(ctx)
		conv.Disconnect()
		log.Info().Str("module", "control").Str("remote", r.RemoteAddr).Msg("control client gone")
	}()
}

// Close shuts down the WebSocket connection.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

func (c *Conn) sendJSON(msg any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "control").Msg("marshal")
		return
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Warn().Err(err).Str("module", "control").Msg("write")
	}
}

func (c *Conn) forward(updates <-chan domain.Snapshot) {
	for {
		select {
		case <-c.closed:
			return
		case snap, ok := <-updates:
			if !ok {
				c.Close()
				return
			}
			c.sendJSON(message{Type: "state", State: &snap})
		}
	}
}

func (c *Conn) readLoop(ctx context.Context) {
	defer c.Close()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn().Err(err).Str("module", "control").Msg("read")
				}
			}
			return
		}

		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			log.Warn().Err(err).Str("module", "control").Msg("bad command")
			c.sendJSON(result("", false, err))
			continue
		}
		c.dispatch(ctx, cmd)
	}
}

func (c *Conn) dispatch(ctx context.Context, cmd command) {
	log.Debug().Str("module", "control").Str("action", cmd.Action).Msg("command")

	switch cmd.Action {
	case "connect":
		topic := c.defaultTopic
		if cmd.Topic != nil {
			topic = *cmd.Topic
		}
		// Negotiation blocks; run it aside so disconnect stays responsive.
		go func() {
			err := c.conv.Open(ctx, topic)
			c.sendJSON(result(cmd.Action, err == nil, err))
		}()

	case "start":
		err := c.conv.Start()
		c.sendJSON(result(cmd.Action, err == nil, err))

	case "stop":
		err := c.conv.Stop()
		c.sendJSON(result(cmd.Action, err == nil, err))

	case "mute":
		muted := c.conv.ToggleMute()
		msg := result(cmd.Action, true, nil)
		msg.Muted = &muted
		c.sendJSON(msg)

	case "cleanup":
		c.conv.Cleanup()
		c.sendJSON(result(cmd.Action, true, nil))

	case "disconnect":
		c.conv.Disconnect()
		c.sendJSON(result(cmd.Action, true, nil))

	default:
		log.Warn().Str("module", "control").Str("action", cmd.Action).Msg("unknown action")
		c.sendJSON(message{Type: "result", Action: cmd.Action, OK: new(bool), Error: "unknown action"})
	}
}

func result(action string, ok bool, err error) message {
	msg := message{Type: "result", Action: action, OK: &ok}
	if err != nil {
		msg.Error = err.Error()
		msg.Kind = domain.KindOf(err)
	}
	return msg
}

func (c *Conn) pingLoop() {
	if c.pingPeriod <= 0 {
		return
	}
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.mu.Lock()
			err := c.conn.WriteControl(
				websocket.PingMessage,
				[]byte{},
				time.Now().Add(writeWait),
			)
			c.mu.Unlock()
			if err != nil {
				select {
				case <-c.closed:
				default:
					log.Warn().Err(err).Str("module", "control").Msg("ping")
				}
				return
			}
		}
	}
}
