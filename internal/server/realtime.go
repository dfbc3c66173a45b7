package server

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/smallbiznis/worldpulse/internal/observability/logger"
	questiondomain "github.com/smallbiznis/worldpulse/internal/question/domain"
	"github.com/smallbiznis/worldpulse/internal/tally"
	votedomain "github.com/smallbiznis/worldpulse/internal/vote/domain"
	"go.uber.org/zap"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 512
	wsSendBuffer     = 16
)

var (
	errSubscriberSlow   = errors.New("subscriber_slow")
	errSubscriberClosed = errors.New("subscriber_closed")
)

// wsSubscriber adapts one websocket connection to tally.Subscriber. Send only
// enqueues; a dedicated writer drains the queue onto the socket.
type wsSubscriber struct {
	conn *websocket.Conn
	out  chan tally.Message
	done chan struct{}
	once sync.Once
}

func newWSSubscriber(conn *websocket.Conn) *wsSubscriber {
	return &wsSubscriber{
		conn: conn,
		out:  make(chan tally.Message, wsSendBuffer),
		done: make(chan struct{}),
	}
}

func (w *wsSubscriber) Send(msg tally.Message) error {
	select {
	case <-w.done:
		return errSubscriberClosed
	default:
	}

	select {
	case w.out <- msg:
		return nil
	default:
		w.shutdown()
		return errSubscriberSlow
	}
}

func (w *wsSubscriber) shutdown() {
	w.once.Do(func() { close(w.done) })
}

func (w *wsSubscriber) writeLoop(log *zap.Logger) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = w.conn.Close()
	}()

	for {
		select {
		case <-w.done:
			w.closeFrame(websocket.CloseGoingAway, "")
			return
		case msg := <-w.out:
			_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := w.conn.WriteJSON(msg); err != nil {
				log.Debug("realtime.write.failed", zap.Error(err))
				w.shutdown()
				return
			}
			if msg.Type == tally.MessageQuestionChange {
				w.closeFrame(websocket.CloseNormalClosure, tally.MessageQuestionChange)
				w.shutdown()
				return
			}
		case <-ticker.C:
			_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				w.shutdown()
				return
			}
		}
	}
}

func (w *wsSubscriber) closeFrame(code int, text string) {
	_ = w.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteWait))
}

// readLoop discards client frames and returns when the peer goes away.
func (w *wsSubscriber) readLoop() {
	defer w.shutdown()

	w.conn.SetReadLimit(wsMaxMessageSize)
	_ = w.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := w.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func newUpgrader(origins []string) websocket.Upgrader {
	allowAll := len(origins) == 0 || (len(origins) == 1 && origins[0] == "*")
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		allowed[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if allowAll || origin == "" {
				return true
			}
			_, ok := allowed[strings.TrimRight(origin, "/")]
			return ok
		},
	}
}

// StreamVotes upgrades to a websocket that receives the current tally, every
// vote_update after it, and a final question_change before the server closes.
func (s *Server) StreamVotes(c *gin.Context) {
	questionID := strings.TrimSpace(c.Query("questionId"))
	if questionID == "" {
		AbortWithError(c, newValidationError("questionId", "invalid_question_id", "questionId is required"))
		return
	}

	ctx := c.Request.Context()
	question, err := s.questionSvc.GetByID(ctx, questionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if question.Status != questiondomain.StatusActive {
		AbortWithError(c, votedomain.ErrQuestionNotActive)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already replied
		c.Abort()
		return
	}

	log := logger.WithContext(ctx, s.log).With(zap.String("question_id", question.ID))
	sub := newWSSubscriber(conn)
	aggregator := s.registry.Aggregator(question.ID)
	subID, err := aggregator.Subscribe(ctx, sub)
	if err != nil {
		log.Warn("realtime.subscribe.failed", zap.Error(err))
		sub.closeFrame(websocket.CloseTryAgainLater, "unavailable")
		_ = conn.Close()
		return
	}
	defer aggregator.Unsubscribe(subID)

	log.Debug("realtime.subscribed", zap.Uint64("subscription_id", subID))
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		sub.writeLoop(log)
	}()
	sub.readLoop()
	<-writerDone
}
