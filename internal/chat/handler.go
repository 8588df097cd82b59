package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/abhisek/coursepilot/internal/auth"
	"github.com/abhisek/coursepilot/internal/llm"
	"github.com/abhisek/coursepilot/internal/logger"
	"github.com/abhisek/coursepilot/internal/metrics"
	"github.com/abhisek/coursepilot/internal/schemas"
	"github.com/abhisek/coursepilot/internal/store"
)

const (
	writeWait   = 10 * time.Second
	maxReadSize = 1 << 20

	endpointBuilder = "course_builder"
	endpointCourse  = "course"
)

// Deps are the collaborators of a websocket Handler.
type Deps struct {
	Verifier     auth.Verifier
	Users        store.UserRepo
	Courses      store.CourseRepo
	Provider     llm.ChatProvider
	Orchestrator *Orchestrator

	Temperature float64
	MaxTokens   int

	// AllowedOrigins limits browser origins. Empty allows any.
	AllowedOrigins []string
	Log            *logger.Logger
}

// Handler serves one of the two chat sockets. Each connection is handled
// on its own goroutine and processes its messages one at a time.
type Handler struct {
	deps     Deps
	courseID func(*http.Request) string
	endpoint string
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewBuilderHandler serves the free-form course builder.
func NewBuilderHandler(deps Deps) *Handler {
	return newHandler(deps, nil, endpointBuilder)
}

// NewCourseHandler serves the builder scoped to an existing course.
// courseID extracts the course id from the request path.
func NewCourseHandler(deps Deps, courseID func(*http.Request) string) *Handler {
	return newHandler(deps, courseID, endpointCourse)
}

func newHandler(deps Deps, courseID func(*http.Request) string, endpoint string) *Handler {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	h := &Handler{deps: deps, courseID: courseID, endpoint: endpoint, log: log.With("endpoint", endpoint)}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.deps.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.deps.AllowedOrigins, r.Header.Get("Origin"))
}

// closeError ends a connection with a websocket close code.
type closeError struct {
	code   int
	reason string
}

func (e *closeError) Error() string { return e.reason }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxReadSize)

	metrics.WSConnections.WithLabelValues(h.endpoint).Inc()
	defer metrics.WSConnections.WithLabelValues(h.endpoint).Dec()

	c := &connection{h: h, conn: conn}

	var courseID string
	if h.courseID != nil {
		courseID = h.courseID(r)
		if _, err := uuid.Parse(courseID); err != nil {
			c.close(CloseInvalidCourse, "invalid course id")
			return
		}
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := c.Send(Outbound{Type: TypeConnected, CourseID: courseID, Message: "Connected. Send an auth message to begin."}); err != nil {
		return
	}

	inbox := make(chan Inbound)
	go c.readLoop(ctx, cancel, inbox)

	var scope *Scope
	for in := range inbox {
		if in.Type == TypeAuth {
			if scope != nil {
				if c.Send(Outbound{Type: TypeError, Message: "already authenticated"}) != nil {
					return
				}
				continue
			}
			var user *UserInfo
			scope, user, err = h.authenticate(ctx, in.Token, courseID)
			if err != nil {
				var ce *closeError
				if errors.As(err, &ce) {
					h.log.Info("closing unauthenticated connection", "code", ce.code, "reason", ce.reason)
					c.close(ce.code, ce.reason)
					return
				}
				h.log.Error("authentication failed", "error", err)
				c.close(websocket.CloseInternalServerErr, "authentication failed")
				return
			}
			if c.Send(Outbound{Type: TypeAuthSuccess, User: user, CourseID: courseID}) != nil {
				return
			}
			continue
		}

		if scope == nil {
			switch in.Type {
			case TypeMessage, TypeRefinement, TypeSave:
				c.close(closePolicyViolated, "authentication required")
				return
			}
			if c.Send(Outbound{Type: TypeError, Message: "authenticate first"}) != nil {
				return
			}
			continue
		}

		if err := h.deps.Orchestrator.Handle(ctx, scope, in, c); err != nil {
			h.log.Debug("connection lost while replying", "error", err)
			return
		}
	}
}

// authenticate verifies the token, mirrors the user locally and, on the
// course socket, checks that the user owns the course.
func (h *Handler) authenticate(ctx context.Context, token, courseID string) (*Scope, *UserInfo, error) {
	if token == "" {
		return nil, nil, &closeError{code: CloseAuthFailed, reason: "missing token"}
	}
	id, err := h.deps.Verifier.Verify(ctx, token)
	if err != nil {
		return nil, nil, &closeError{code: CloseAuthFailed, reason: "invalid token"}
	}
	user, err := h.deps.Users.Upsert(ctx, store.UserData{
		ExternalID:  id.Subject,
		Email:       id.Email,
		DisplayName: id.Name,
	})
	if err != nil {
		return nil, nil, err
	}

	sc := &Scope{UserID: user.ID, CourseID: courseID}
	system := BuilderSystem
	if h.courseID != nil {
		course, err := h.deps.Courses.Get(ctx, courseID)
		if err != nil {
			return nil, nil, err
		}
		if course == nil {
			return nil, nil, &closeError{code: CloseInvalidCourse, reason: "course not found"}
		}
		if course.OwnerID != user.ID {
			return nil, nil, &closeError{code: CloseForbidden, reason: "you do not own this course"}
		}
		sc.CourseTitle, sc.CourseDescription = course.Title, course.Description
		system = CourseSystem(course.Title, course.Description)
	}

	sc.Sessions = NewSessionStore(h.deps.Provider, llm.ChatConfig{
		System:      system,
		Temperature: h.deps.Temperature,
		MaxTokens:   h.deps.MaxTokens,
		Tools:       schemas.BuilderFunctions(),
	})
	h.log.Info("websocket authenticated", "user_id", user.ID, "course_id", courseID)
	return sc, &UserInfo{ID: user.ID, Email: user.Email, Name: user.DisplayName}, nil
}

// connection owns the socket writes. Only the ServeHTTP goroutine writes
// data frames; close frames go through WriteControl which is safe anywhere.
type connection struct {
	h    *Handler
	conn *websocket.Conn
}

func (c *connection) Send(m Outbound) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(m); err != nil {
		return err
	}
	metrics.WSMessagesTotal.WithLabelValues("out", m.Type).Inc()
	return nil
}

func (c *connection) close(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		c.h.log.Debug("write close frame", "error", err)
	}
}

// readLoop decodes client messages into inbox until the socket closes, then
// cancels ctx so an in-flight model call is abandoned.
func (c *connection) readLoop(ctx context.Context, cancel context.CancelFunc, inbox chan<- Inbound) {
	defer close(inbox)
	defer cancel()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.h.log.Debug("websocket read failed", "error", err)
			}
			return
		}

		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil || in.Type == "" {
			in = Inbound{Type: "invalid"}
		}
		metrics.WSMessagesTotal.WithLabelValues("in", messageLabel(in.Type)).Inc()

		select {
		case inbox <- in:
		case <-ctx.Done():
			return
		}
	}
}

// messageLabel bounds the metric label to known client types.
func messageLabel(t string) string {
	switch t {
	case TypeAuth, TypeMessage, TypeRefinement, TypeSave:
		return t
	}
	return "other"
}
