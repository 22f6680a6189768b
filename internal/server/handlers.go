package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"groqchat/internal/models"
	"groqchat/internal/provider"
	"groqchat/internal/sse"
	"groqchat/internal/translator"
)

const defaultHeading = "LLM Client"

func (s *Server) handleModels(c echo.Context) error {
	ids, err := s.relay.Models(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, ids)
}

func (s *Server) handleTitle(c echo.Context) error {
	var body translator.TitleBody
	if err := decodeRequestBody(c, &body); err != nil {
		return err
	}

	raw, err := s.relay.Title(c.Request().Context(), body.ToMessages())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSONBlob(http.StatusOK, raw)
}

func (s *Server) handleChat(c echo.Context) error {
	var body translator.ChatBody
	if err := decodeRequestBody(c, &body); err != nil {
		return err
	}

	ctx := c.Request().Context()
	events, err := s.relay.Chat(ctx, body.ToMessages(), body.Params())
	if err != nil {
		return toHTTPError(err)
	}

	return writeChatStream(c, events)
}

// writeChatStream relays each upstream delta as soon as it arrives. Once the
// headers are out, failures can only be reported in-band.
func writeChatStream(c echo.Context, events <-chan models.StreamEvent) error {
	writer := c.Response().Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		slog.Error("http writer does not support flushing")
		return requestError{
			Status:  http.StatusInternalServerError,
			Message: "server does not support streaming responses",
			Type:    "server_error",
		}
	}

	header := c.Response().Header()
	header.Set(echo.HeaderContentType, sse.ContentType)
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	c.Response().WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := c.Request().Context()
	var done models.DonePayload

	for ev := range events {
		if ev.Err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("upstream stream failed", "err", ev.Err)
			return writeStreamError(c, ev.Err)
		}

		if ev.Content != "" {
			if err := sse.WriteEvent(writer, models.EventToken, models.TokenPayload{Content: ev.Content}); err != nil {
				slog.Error("failed to write SSE event", "event", models.EventToken, "err", err)
				return nil
			}
			flusher.Flush()
		}
		if ev.FinishReason != "" {
			done.FinishReason = ev.FinishReason
		}
	}

	if ctx.Err() != nil {
		return nil
	}
	if err := sse.WriteEvent(writer, models.EventDone, done); err != nil {
		slog.Error("failed to write SSE event", "event", models.EventDone, "err", err)
		return nil
	}
	flusher.Flush()
	return nil
}

func writeStreamError(c echo.Context, err error) error {
	body := models.ErrorPayload{Error: models.ErrorDetail{
		Message: "upstream provider error",
		Type:    "upstream_error",
	}}

	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		body.Error.Message = apiErr.Message
		if apiErr.Type != "" {
			body.Error.Type = apiErr.Type
		}
	}

	if werr := sse.WriteEvent(c.Response().Writer, models.EventError, body); werr != nil {
		slog.Error("failed to write SSE event", "event", models.EventError, "err", werr)
		return nil
	}
	c.Response().Flush()
	return nil
}
