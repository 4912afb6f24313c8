// README: Pricing handlers; vote submission over REST and a websocket vote stream.
package handlers

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"yatri/internal/modules/pricing"
	"yatri/internal/types"
)

type PricingHandler struct {
	pricing  *pricing.Service
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewPricingHandler(svc *pricing.Service, allowedOrigins []string, log zerolog.Logger) *PricingHandler {
	return &PricingHandler{
		pricing: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log,
	}
}

// originChecker returns nil (gorilla's same-host check) for an empty list.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.ContainsFunc(allowed, func(a string) bool {
			return strings.EqualFold(a, origin)
		})
	}
}

type voteReq struct {
	DriverID  string `json:"driver_id"`
	Direction int    `json:"direction"`
}

type voteAck struct {
	Accepted   bool    `json:"accepted"`
	Error      string  `json:"error,omitempty"`
	Adjustment float64 `json:"adjustment"`
	Votes      int     `json:"votes"`
}

func (h *PricingHandler) Vote(c *gin.Context) {
	var req voteReq
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	if err := h.pricing.SubmitVote(ctx, types.ID(req.DriverID), req.Direction); err != nil {
		writeServiceError(c, err)
		return
	}
	sum, err := h.pricing.Summary(ctx)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, voteAck{Accepted: true, Adjustment: sum.Adjustment, Votes: sum.Votes})
}

func (h *PricingHandler) Adjustment(c *gin.Context) {
	sum, err := h.pricing.Summary(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sum)
}

// Stream accepts votes as JSON frames and acks each one with the current adjustment.
func (h *PricingHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	for {
		var req voteReq
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug().Err(err).Msg("vote stream closed")
			}
			return
		}
		ack := voteAck{Accepted: true}
		if err := h.pricing.SubmitVote(ctx, types.ID(req.DriverID), req.Direction); err != nil {
			ack.Accepted = false
			ack.Error = err.Error()
		}
		if sum, err := h.pricing.Summary(ctx); err == nil {
			ack.Adjustment = sum.Adjustment
			ack.Votes = sum.Votes
		}
		if err := conn.WriteJSON(ack); err != nil {
			return
		}
	}
}
