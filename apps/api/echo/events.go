package echoapi

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/clubhub/core"
	"github.com/trezcool/clubhub/core/auth"
	"github.com/trezcool/clubhub/core/member"
	"github.com/trezcool/clubhub/core/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

// Stream message kinds
const (
	streamSession    = "SESSION"
	streamUserChange = "USER_CHANGED"
	streamSignedOut  = "SIGNED_OUT"
)

type streamMessage struct {
	Kind string       `json:"kind"`
	User *member.User `json:"user,omitempty"`
}

type eventStream struct {
	svc      *auth.Service
	profiles member.ProfileReader
	logger   core.Logger
	upgrader websocket.Upgrader
}

// registerEventStream mounts the websocket that pushes the session's user whenever an auth event changes it.
// Browsers cannot set headers on websockets: the token goes in the `token` query param.
func registerEventStream(
	g *echo.Group,
	bearer echo.MiddlewareFunc,
	svc *auth.Service,
	profiles member.ProfileReader,
	logger core.Logger,
	allowedOrigin string,
) {
	es := eventStream{
		svc:      svc,
		profiles: profiles,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowedOrigin
			},
		},
	}
	g.GET("/auth/events", es.serve, bearer)
}

func (es *eventStream) serve(ctx echo.Context) error {
	token, _ := ctx.Get(contextTokenKey).(string)

	conn, err := es.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return errors.Wrap(err, "upgrading to websocket")
	}
	defer func() { _ = conn.Close() }()

	out := make(chan streamMessage, sendBuffer)
	signedOut := make(chan struct{})
	var signOutOnce sync.Once

	push := func(msg streamMessage) {
		select {
		case out <- msg:
		default:
			es.logger.Warn(fmt.Sprintf("event stream: dropping %s message, client too slow", msg.Kind))
		}
	}

	store := session.NewStore(auth.NewClientWithToken(es.svc, token), es.profiles, es.logger)
	store.OnUserChange = func(usr member.User) { push(streamMessage{Kind: streamUserChange, User: &usr}) }
	store.OnSignOut = func() {
		signOutOnce.Do(func() {
			push(streamMessage{Kind: streamSignedOut})
			close(signedOut)
		})
	}
	defer store.Close()

	reqCtx := ctx.Request().Context()
	if err := store.Start(reqCtx); err != nil {
		es.logger.Warn(fmt.Sprintf("event stream: starting session: %v", err), err)
	}
	if usr := store.User(); usr != nil {
		push(streamMessage{Kind: streamSession, User: usr})
	} else {
		store.OnSignOut()
	}

	closed := make(chan struct{})
	go es.readPump(conn, closed)
	es.writePump(conn, out, signedOut, closed)
	return nil
}

// readPump discards client messages and reports when the connection goes away.
func (es *eventStream) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (es *eventStream) writePump(conn *websocket.Conn, out <-chan streamMessage, signedOut, closed <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(msg streamMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(msg) == nil
	}

	for {
		select {
		case msg := <-out:
			if !write(msg) {
				return
			}
		case <-signedOut:
			// flush what is pending, then say goodbye
			for {
				select {
				case msg := <-out:
					if !write(msg) {
						return
					}
				default:
					_ = conn.WriteControl(
						websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "signed out"),
						time.Now().Add(writeWait),
					)
					return
				}
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
