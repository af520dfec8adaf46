package cloud

import (
	"context"

	"gamenight/internal/proto"
)

// Caller is the host operation surface consumed by the join flow. The
// session state machine depends on this interface; tests substitute fakes.
type Caller interface {
	// GetSessionPreview is idempotent and safe to auto-retry.
	GetSessionPreview(ctx context.Context, sessionID string) (*proto.PreviewResponse, error)

	// ClaimSessionSlot is non-idempotent: a blind retry could double-claim
	// a seat. Callers must use the no-retry variant.
	ClaimSessionSlot(ctx context.Context, req proto.ClaimSlotRequest) (*proto.ClaimSlotResponse, error)

	// GetSessionGames is idempotent and safe to auto-retry.
	GetSessionGames(ctx context.Context, sessionID string) ([]proto.GameInfo, error)

	// GetSharedPreferences is idempotent and safe to auto-retry.
	GetSharedPreferences(ctx context.Context, sessionID string) (*proto.SharedPreferencesResponse, error)

	// SubmitGuestPreferences is non-idempotent, no auto-retry.
	SubmitGuestPreferences(ctx context.Context, req proto.SubmitPreferencesRequest) (*proto.SubmitPreferencesResponse, error)

	// SetGuestToken attaches the signed guest token to future calls.
	SetGuestToken(token string)
}

var _ Caller = (*Client)(nil)

// GetSessionPreview fetches the pre-join view of a session.
func (c *Client) GetSessionPreview(ctx context.Context, sessionID string) (*proto.PreviewResponse, error) {
	var resp proto.PreviewResponse
	err := c.call(ctx, proto.OpGetSessionPreview, proto.PreviewRequest{SessionID: sessionID}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClaimSessionSlot claims a seat, optionally a named slot.
func (c *Client) ClaimSessionSlot(ctx context.Context, req proto.ClaimSlotRequest) (*proto.ClaimSlotResponse, error) {
	var resp proto.ClaimSlotResponse
	if err := c.call(ctx, proto.OpClaimSessionSlot, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSessionGames fetches the session's candidate games.
func (c *Client) GetSessionGames(ctx context.Context, sessionID string) ([]proto.GameInfo, error) {
	var resp proto.GamesResponse
	if err := c.call(ctx, proto.OpGetSessionGames, proto.GamesRequest{SessionID: sessionID}, &resp); err != nil {
		return nil, err
	}
	return resp.Games, nil
}

// GetSharedPreferences fetches preferences the host pre-shared for this guest.
func (c *Client) GetSharedPreferences(ctx context.Context, sessionID string) (*proto.SharedPreferencesResponse, error) {
	var resp proto.SharedPreferencesResponse
	if err := c.call(ctx, proto.OpGetSharedPreferences, proto.SharedPreferencesRequest{SessionID: sessionID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitGuestPreferences pushes the guest's working set to the host.
func (c *Client) SubmitGuestPreferences(ctx context.Context, req proto.SubmitPreferencesRequest) (*proto.SubmitPreferencesResponse, error) {
	var resp proto.SubmitPreferencesResponse
	if err := c.call(ctx, proto.OpSubmitGuestPreferences, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
