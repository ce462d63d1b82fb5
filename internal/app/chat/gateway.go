package chat

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"groupmatch/internal/app/matchmaking"
	"groupmatch/internal/pkg/errs"
	"groupmatch/internal/pkg/limiter"
	"groupmatch/internal/pkg/logx"
	"groupmatch/internal/pkg/req"
)

// Matchmaker is the part of the matchmaking manager the gateway drives.
type Matchmaker interface {
	RequestJoin(ctx context.Context, r matchmaking.JoinRequest) (matchmaking.Outcome, error)
	LeaveQueue(ctx context.Context, userID string) error
	Disconnect(ctx context.Context, sessionID string) error
}

// GatewayConfig holds the per-session throttles and the per-event deadline.
type GatewayConfig struct {
	ChatLimit    int
	ChatWindow   time.Duration
	JoinLimit    int
	JoinWindow   time.Duration
	EventTimeout time.Duration
}

// Gateway decodes inbound frames, applies policy and throttles, and dispatches them.
type Gateway struct {
	matchmaker Matchmaker
	router     *Router
	policy     Policy

	chatLimiter *limiter.KeyedLimiter
	joinLimiter *limiter.KeyedLimiter

	timeout time.Duration

	logger zerolog.Logger
}

// NewGateway creates a Gateway. Call Stop to release its limiters.
func NewGateway(matchmaker Matchmaker, router *Router, policy Policy, cfg GatewayConfig) *Gateway {
	return &Gateway{
		matchmaker:  matchmaker,
		router:      router,
		policy:      policy,
		chatLimiter: limiter.PerWindow(cfg.ChatLimit, cfg.ChatWindow),
		joinLimiter: limiter.PerWindow(cfg.JoinLimit, cfg.JoinWindow),
		timeout:     cfg.EventTimeout,
		logger:      logx.Component("Gateway"),
	}
}

// Stop releases the limiter sweeps.
func (g *Gateway) Stop() {
	g.chatLimiter.Stop()
	g.joinLimiter.Stop()
}

// HandleFrame implements FrameHandler.
func (g *Gateway) HandleFrame(c *Client, raw []byte) {
	f, err := decodeFrame(raw)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid JSON")
		c.SendError("", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	var (
		result any
		hErr   error
	)

	switch f.Event {
	case EventJoinRoom:
		result, hErr = g.handleJoin(ctx, c, f)
	case EventChat:
		result, hErr = g.handleChat(ctx, c, f)
	case EventKickUser:
		result, hErr = g.handleKick(ctx, c, f)
	case EventLeaveQueue:
		result, hErr = g.handleLeave(ctx, c, f)
	default:
		hErr = errs.NewError(errs.ErrUnsupportedEvent, string(f.Event))
	}

	if hErr != nil {
		if _, ok := errs.As(hErr); !ok {
			g.logger.Error().Err(hErr).Str("session_id", c.ID).Str("event", string(f.Event)).Msg("Event handling failed.")
		}
		c.SendError(f.ID, hErr)
		return
	}

	c.SendAck(f.ID, result)
}

// admit decodes data into dst and verifies the sender owns the user descriptor.
func (g *Gateway) admit(c *Client, f Frame, dst any, actor func() UserPayload) error {
	if customErr := req.DecodeJSON(f.Data, dst); customErr != nil {
		return customErr
	}
	return g.policy.CheckSession(c.ID, actor())
}

func (g *Gateway) handleJoin(ctx context.Context, c *Client, f Frame) (any, error) {
	var p JoinRoomPayload
	if err := g.admit(c, f, &p, func() UserPayload { return p.User }); err != nil {
		return nil, err
	}

	if !g.joinLimiter.Allow(c.ID) {
		return nil, errs.NewError(errs.ErrRateLimitExceeded)
	}

	return g.matchmaker.RequestJoin(ctx, matchmaking.JoinRequest{
		UserID:    p.User.UserID,
		UserName:  p.User.UserName,
		Email:     p.User.Email,
		SessionID: p.User.SessionID,
		GroupSize: int(p.MembersNumber),
		RoomName:  p.RoomName,
	})
}

func (g *Gateway) handleChat(ctx context.Context, c *Client, f Frame) (any, error) {
	var p ChatMessage
	if err := g.admit(c, f, &p, func() UserPayload { return p.User }); err != nil {
		return nil, err
	}

	if !g.chatLimiter.Allow(c.ID) {
		return nil, errs.NewError(errs.ErrRateLimitExceeded)
	}

	if err := g.policy.CheckChat(ctx, p.User, p.RoomName); err != nil {
		return nil, err
	}

	return g.router.RelayMessage(ctx, p)
}

func (g *Gateway) handleKick(ctx context.Context, c *Client, f Frame) (any, error) {
	var p KickUserPayload
	if err := g.admit(c, f, &p, func() UserPayload { return p.User }); err != nil {
		return nil, err
	}

	if err := g.policy.CheckKick(ctx, p.User, p.UserToKick, p.RoomName); err != nil {
		return nil, err
	}

	if err := g.router.KickUser(ctx, p.User, p.UserToKick, p.RoomName); err != nil {
		return nil, err
	}
	return true, nil
}

func (g *Gateway) handleLeave(ctx context.Context, c *Client, f Frame) (any, error) {
	var p LeaveQueuePayload
	if err := g.admit(c, f, &p, func() UserPayload { return p.User }); err != nil {
		return nil, err
	}

	if err := g.matchmaker.LeaveQueue(ctx, p.User.UserID); err != nil {
		return nil, err
	}
	return true, nil
}

// Disconnected reconciles a closed session. It is the hub's OnDisconnect callback.
func (g *Gateway) Disconnected(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	if err := g.matchmaker.Disconnect(ctx, sessionID); err != nil {
		g.logger.Error().Err(err).Str("session_id", sessionID).Msg("Disconnect reconciliation failed.")
	}

	g.chatLimiter.Forget(sessionID)
	g.joinLimiter.Forget(sessionID)
}
