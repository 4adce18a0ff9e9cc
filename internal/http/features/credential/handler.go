// Package credential serves the member's rotating access credential.
package credential

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tendant/gymkeeper/internal/http/middleware"
	"github.com/tendant/gymkeeper/internal/httputil"
	"github.com/tendant/gymkeeper/pkg/auth"
)

// StreamTracker counts open credential streams.
type StreamTracker interface {
	StreamOpened() func()
}

// Handler handles credential endpoints.
type Handler struct {
	logger   *slog.Logger
	signer   *auth.Signer
	rotator  *auth.Rotator
	manual   *auth.ManualCodeService
	upgrader *websocket.Upgrader
	streams  StreamTracker
	qrSize   int
}

// NewHandler creates a new credential handler. manual and streams may be nil.
func NewHandler(
	logger *slog.Logger,
	signer *auth.Signer,
	rotator *auth.Rotator,
	manual *auth.ManualCodeService,
	upgrader *websocket.Upgrader,
	streams StreamTracker,
) *Handler {
	return &Handler{
		logger:   logger,
		signer:   signer,
		rotator:  rotator,
		manual:   manual,
		upgrader: upgrader,
		streams:  streams,
		qrSize:   auth.DefaultQRSize,
	}
}

// CredentialResponse is the credential as rendered by the member's app.
type CredentialResponse struct {
	MemberID   string `json:"member_id"`
	Credential string `json:"credential"`
	IssuedAt   int64  `json:"issued_at"`
	ExpiresIn  int    `json:"expires_in"`
	QRCode     string `json:"qr_code"`
	ManualCode string `json:"manual_code,omitempty"`
}

// StreamMessage is pushed once per countdown step.
type StreamMessage struct {
	Credential string `json:"credential"`
	IssuedAt   int64  `json:"issued_at"`
	Countdown  int    `json:"countdown"`
	Rotated    bool   `json:"rotated"`
}

// Get issues a fresh credential for the caller.
// GET /v1/me/credential
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	memberID, ok := middleware.GetMemberID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	encoded, c, err := h.signer.IssueEncoded(memberID)
	if err != nil {
		h.logger.Error("failed to issue credential", "member_id", memberID, "error", err)
		httputil.Error(w, http.StatusServiceUnavailable, "could not issue credential, please retry")
		return
	}

	qr, err := auth.RenderQR(encoded, h.qrSize)
	if err != nil {
		h.logger.Error("failed to render credential code", "member_id", memberID, "error", err)
		httputil.Error(w, http.StatusInternalServerError, "could not render credential")
		return
	}

	resp := CredentialResponse{
		MemberID:   memberID,
		Credential: encoded,
		IssuedAt:   c.IssuedAt,
		ExpiresIn:  seconds(h.rotator.Interval()),
		QRCode:     qr,
	}
	if h.manual != nil {
		code, err := h.manual.Generate(memberID)
		if err != nil {
			h.logger.Warn("failed to generate manual code", "member_id", memberID, "error", err)
		} else {
			resp.ManualCode = code
		}
	}

	httputil.JSON(w, http.StatusOK, resp)
}

// Stream pushes the rotating credential and its countdown over a websocket
// until the member closes the view.
// GET /v1/me/credential/stream
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	memberID, ok := middleware.GetMemberID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		h.logger.Warn("credential stream upgrade failed", "member_id", memberID, "error", err)
		return
	}
	if h.streams != nil {
		defer h.streams.StreamOpened()()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ticks := make(chan StreamMessage, 1)
	go func() {
		defer close(ticks)
		h.rotator.Run(ctx, memberID, func(t auth.RotationTick) {
			offerLatest(ticks, StreamMessage{
				Credential: t.Encoded,
				IssuedAt:   t.IssuedAt,
				Countdown:  seconds(t.Remaining),
				Rotated:    t.Rotated,
			})
		})
	}()

	h.logger.Debug("credential stream opened", "member_id", memberID)
	if err := httputil.Stream(ctx, conn, ticks); err != nil {
		h.logger.Debug("credential stream ended", "member_id", memberID, "error", err)
	}
}

// offerLatest replaces any unsent message so a slow client only ever sees
// the current credential.
func offerLatest(ch chan StreamMessage, msg StreamMessage) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- msg:
	default:
	}
}

func seconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}
