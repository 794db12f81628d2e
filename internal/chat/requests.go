package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/relay/internal/domain"
	"github.com/matheus3301/relay/internal/live"
	"github.com/matheus3301/relay/internal/store"
	"go.uber.org/zap"
)

func requestTopics(r *domain.ConnectionRequest) []string {
	return []string{live.RequestsSentTopic(r.SenderID), live.RequestsReceivedTopic(r.ReceiverID)}
}

// SendConnectionRequest creates a pending request from sender to receiver and
// returns its id.
func (e *Engine) SendConnectionRequest(ctx context.Context, senderID, receiverID string) (string, error) {
	if senderID == receiverID {
		return "", domain.InvalidState("cannot send a connection request to yourself")
	}

	var (
		req              *domain.ConnectionRequest
		sender, receiver *domain.User
	)
	err := e.mutate(ctx, "send_connection_request", func(tx *store.Tx, c *change) error {
		var err error
		if sender, err = mustUser(ctx, tx, senderID); err != nil {
			return err
		}
		if receiver, err = mustUser(ctx, tx, receiverID); err != nil {
			return err
		}

		conv, err := tx.FindDirect(ctx, senderID, receiverID)
		if err != nil {
			return err
		}
		if conv != nil {
			return domain.InvalidState("already connected")
		}

		now := e.now()
		existing, err := tx.RequestsBetween(ctx, senderID, receiverID)
		if err != nil {
			return err
		}
		for i := range existing {
			r := &existing[i]
			if r.Status == domain.RequestPending && r.EffectiveStatus(now) == domain.RequestExpired {
				if err := tx.SetRequestStatus(ctx, r.ID, domain.RequestExpired); err != nil {
					return err
				}
				c.touch(requestTopics(r)...)
				continue
			}
			if !r.Active(now) {
				continue
			}
			switch {
			case r.Status == domain.RequestAccepted:
				return domain.InvalidState("already connected")
			case r.SenderID == senderID:
				return domain.InvalidState("connection request already sent")
			default:
				return domain.InvalidState("this user already sent you a connection request")
			}
		}

		req = &domain.ConnectionRequest{
			ID:         uuid.NewString(),
			SenderID:   senderID,
			ReceiverID: receiverID,
			Status:     domain.RequestPending,
			CreatedAt:  now.UnixMilli(),
			ExpiresAt:  now.Add(e.requestTTL).UnixMilli(),
		}
		if err := tx.InsertRequest(ctx, req); err != nil {
			return err
		}
		c.touch(requestTopics(req)...)

		if receiver.Email != "" && e.notifier != nil {
			toEmail, toName, fromName := receiver.Email, receiver.DisplayName, sender.DisplayName
			c.afterCommit(func(ctx context.Context) {
				if err := e.notifier.NotifyConnectionRequest(ctx, toEmail, toName, fromName); err != nil {
					e.logger.Warn("enqueue connection request notification", zap.String("request", req.ID), zap.Error(err))
				}
			})
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return req.ID, nil
}

// AcceptConnectionRequest accepts a pending request addressed to userID and
// returns the direct conversation between the two parties, creating it if
// needed. A request past its deadline is marked expired and ErrExpired is
// returned.
func (e *Engine) AcceptConnectionRequest(ctx context.Context, requestID, userID string) (string, error) {
	var conversationID string
	err := e.mutate(ctx, "accept_connection_request", func(tx *store.Tx, c *change) error {
		req, err := e.pendingRequest(ctx, tx, c, requestID, userID, "accept")
		if err != nil {
			return err
		}
		if err := domain.Transition(req.Status, domain.RequestAccepted); err != nil {
			return err
		}
		if err := tx.SetRequestStatus(ctx, req.ID, domain.RequestAccepted); err != nil {
			return err
		}
		c.touch(requestTopics(req)...)

		conv, err := e.findOrCreateDirect(ctx, tx, c, req.SenderID, req.ReceiverID)
		if err != nil {
			return err
		}
		conversationID = conv.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	return conversationID, nil
}

// RejectConnectionRequest rejects a pending request addressed to userID.
func (e *Engine) RejectConnectionRequest(ctx context.Context, requestID, userID string) error {
	return e.mutate(ctx, "reject_connection_request", func(tx *store.Tx, c *change) error {
		req, err := e.pendingRequest(ctx, tx, c, requestID, userID, "reject")
		if err != nil {
			return err
		}
		if err := domain.Transition(req.Status, domain.RequestRejected); err != nil {
			return err
		}
		if err := tx.SetRequestStatus(ctx, req.ID, domain.RequestRejected); err != nil {
			return err
		}
		c.touch(requestTopics(req)...)
		return nil
	})
}

// pendingRequest loads a request the receiver is about to act on. A pending
// request past its deadline is patched to expired and the returned error keeps
// the patch committed.
func (e *Engine) pendingRequest(ctx context.Context, tx *store.Tx, c *change, requestID, userID, op string) (*domain.ConnectionRequest, error) {
	req, err := tx.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, domain.NotFound("connection request", requestID)
	}
	if req.ReceiverID != userID {
		return nil, domain.Unauthorized(userID, op+" connection request "+requestID)
	}
	if req.Status != domain.RequestPending {
		return nil, domain.InvalidState("connection request %s is %s", requestID, req.Status)
	}
	if req.EffectiveStatus(e.now()) == domain.RequestExpired {
		if err := tx.SetRequestStatus(ctx, req.ID, domain.RequestExpired); err != nil {
			return nil, err
		}
		c.touch(requestTopics(req)...)
		return nil, c.keep(domain.Expired(requestID))
	}
	return req, nil
}

// GetConnectionStatus reports how userA relates to userB: connected, then the
// latest request userA sent, then the latest request userA received, else none.
func (e *Engine) GetConnectionStatus(ctx context.Context, userA, userB string) (*domain.ConnectionStatus, error) {
	return view(ctx, e, func(ctx context.Context, r *reader) (*domain.ConnectionStatus, error) {
		return e.connectionStatus(ctx, r, userA, userB)
	})
}

func (e *Engine) connectionStatus(ctx context.Context, r *reader, userA, userB string) (*domain.ConnectionStatus, error) {
	r.depend(live.MemberTopic(userA), live.RequestsSentTopic(userA), live.RequestsSentTopic(userB))

	conv, err := r.tx.FindDirect(ctx, userA, userB)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return &domain.ConnectionStatus{Status: string(domain.StateConnected), ConversationID: conv.ID}, nil
	}

	lookups := []struct {
		from, to string
		dir      domain.Direction
	}{
		{userA, userB, domain.DirectionSent},
		{userB, userA, domain.DirectionReceived},
	}
	for _, l := range lookups {
		req, err := r.tx.LatestRequest(ctx, l.from, l.to)
		if err != nil {
			return nil, err
		}
		if req == nil {
			continue
		}
		status := req.EffectiveStatus(r.now)
		if status == domain.RequestPending {
			r.until(time.UnixMilli(req.ExpiresAt + 1))
		}
		return &domain.ConnectionStatus{Status: string(status), RequestID: req.ID, Direction: l.dir}, nil
	}
	return &domain.ConnectionStatus{Status: string(domain.StateNone)}, nil
}

// ListPendingRequests lists unexpired pending requests addressed to userID,
// newest first, with the sender profile.
func (e *Engine) ListPendingRequests(ctx context.Context, userID string) ([]domain.RequestView, error) {
	return view(ctx, e, func(ctx context.Context, r *reader) ([]domain.RequestView, error) {
		return e.pendingRequests(ctx, r, userID)
	})
}

func (e *Engine) pendingRequests(ctx context.Context, r *reader, userID string) ([]domain.RequestView, error) {
	r.depend(live.RequestsReceivedTopic(userID))
	reqs, err := r.tx.RequestsByReceiver(ctx, userID, domain.RequestPending)
	if err != nil {
		return nil, err
	}
	out := []domain.RequestView{}
	for _, req := range reqs {
		if req.EffectiveStatus(r.now) != domain.RequestPending {
			continue
		}
		r.until(time.UnixMilli(req.ExpiresAt + 1))
		v, err := requestView(ctx, r, req, req.SenderID)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ListSentRequests lists every request sent by userID, newest first, with the
// receiver profile and the effective status.
func (e *Engine) ListSentRequests(ctx context.Context, userID string) ([]domain.RequestView, error) {
	return view(ctx, e, func(ctx context.Context, r *reader) ([]domain.RequestView, error) {
		return e.sentRequests(ctx, r, userID)
	})
}

func (e *Engine) sentRequests(ctx context.Context, r *reader, userID string) ([]domain.RequestView, error) {
	r.depend(live.RequestsSentTopic(userID))
	reqs, err := r.tx.RequestsBySender(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := []domain.RequestView{}
	for _, req := range reqs {
		if req.Status == domain.RequestPending {
			if req.EffectiveStatus(r.now) == domain.RequestPending {
				r.until(time.UnixMilli(req.ExpiresAt + 1))
			}
			req.Status = req.EffectiveStatus(r.now)
		}
		v, err := requestView(ctx, r, req, req.ReceiverID)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func requestView(ctx context.Context, r *reader, req domain.ConnectionRequest, counterpartID string) (domain.RequestView, error) {
	r.depend(live.UserTopic(counterpartID))
	u, err := r.tx.GetUser(ctx, counterpartID)
	if err != nil {
		return domain.RequestView{}, err
	}
	return domain.RequestView{ConnectionRequest: req, Counterpart: u}, nil
}

func mustUser(ctx context.Context, tx *store.Tx, id string) (*domain.User, error) {
	u, err := tx.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, domain.NotFound("user", id)
	}
	return u, nil
}
