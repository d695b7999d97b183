package api

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/waldo1234567/task-management/domain"
)

const publishMaxSize = 64 * 1024 // 64 KiB

func (s *server) registerStream(e *echo.Echo) {
	e.GET("/streams", s.openStream)
	e.POST("/streams/:session/publish", s.publishStream)
	e.POST("/streams/:session/heartbeat", s.heartbeatStream)
}

// openStream establishes one push-channel session over SSE. Credentials
// arrive either as a token query parameter (primary negotiation) or as an
// Authorization header (downgrade clients).
func (s *server) openStream(c echo.Context) error {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		if token := c.QueryParam("token"); token != "" {
			authHeader = "Bearer " + token
		}
	}
	member, err := s.auth.MemberFromAuthHeader(authHeader)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}

	projectID := c.QueryParam("projectId")
	if projectID == "" {
		return c.String(http.StatusBadRequest, "missing projectId")
	}
	topics := strings.Split(c.QueryParam("topics"), ",")
	if len(topics) == 1 && topics[0] == "" {
		topics = []string{domain.EventTopic(projectID), domain.PresenceTopic(projectID)}
	}
	for _, t := range topics {
		if !projectTopic(projectID, t) {
			return c.String(http.StatusForbidden, "topic outside project scope")
		}
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}

	ctx := c.Request().Context()
	sessionID := uuid.NewString()
	session := s.hub.Add(ctx, sessionID, projectID, member, topics)
	defer s.hub.Remove(context.WithoutCancel(ctx), sessionID)

	open, err := sonic.ConfigStd.Marshal(domain.Frame{
		Body: []byte(`{"type":"` + domain.EventStreamOpen + `","session":"` + sessionID + `"}`),
	})
	if err != nil {
		return err
	}
	if err := writeFrame(c, flusher, open); err != nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-session.Frames():
			if !ok {
				return nil
			}
			if err := writeFrame(c, flusher, frame); err != nil {
				return nil
			}
		}
	}
}

func writeFrame(c echo.Context, flusher http.Flusher, frame []byte) error {
	if _, err := c.Response().Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := c.Response().Write(frame); err != nil {
		return err
	}
	if _, err := c.Response().Write([]byte("\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// publishStream accepts an outbound frame from a session and fans it out via
// the hub. Best effort from the client's perspective: acceptance only means
// the frame reached the bus.
func (s *server) publishStream(c echo.Context) error {
	session, ok := s.hub.Get(c.Param("session"))
	if !ok {
		return c.NoContent(http.StatusNotFound)
	}

	lr := io.LimitReader(c.Request().Body, publishMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	var frame domain.Frame
	if err := dec.Decode(&frame); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	if !projectTopic(session.ProjectID, frame.Topic) {
		return c.String(http.StatusForbidden, "topic outside project scope")
	}
	if err := s.hub.Publish(c.Request().Context(), frame.Topic, frame.Body); err != nil {
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, "publish failed")
	}
	return c.NoContent(http.StatusAccepted)
}

// projectTopic reports whether topic is one of the project's two broadcast
// topics.
func projectTopic(projectID, topic string) bool {
	return topic == domain.EventTopic(projectID) || topic == domain.PresenceTopic(projectID)
}

func (s *server) heartbeatStream(c echo.Context) error {
	if !s.hub.Heartbeat(c.Param("session")) {
		return c.NoContent(http.StatusNotFound)
	}
	return c.NoContent(http.StatusNoContent)
}
