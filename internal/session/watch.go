package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"gamenight/internal/prefs"
	"gamenight/internal/proto"
	"gamenight/internal/store"
)

// AggregateHandler receives the recomputed participant view after every
// roster or preference event.
type AggregateHandler func(users []prefs.MergedUser, view map[string][]*store.PreferenceRecord)

// Watcher follows the host's session event stream and keeps the merged
// aggregate view current. Hidden-duplicate sets are recomputed on every
// event rather than frozen at join time, so local renames self-heal.
//
// A dropped connection is reported to the caller, never reconnected
// automatically; reconnecting is a user-intent decision like any other
// non-idempotent action.
type Watcher struct {
	url     string
	store   store.Store
	handler AggregateHandler
	log     *zerolog.Logger

	mu     sync.Mutex
	guests map[string]prefs.LiveGuest // keyed by participant id
}

// NewWatcher builds a watcher for one session's event stream.
func NewWatcher(eventsBaseURL, sessionID string, st store.Store, handler AggregateHandler, logger *zerolog.Logger) *Watcher {
	return &Watcher{
		url:     strings.TrimRight(eventsBaseURL, "/") + "/v1/session/" + sessionID + "/events",
		store:   st,
		handler: handler,
		log:     logger,
		guests:  make(map[string]prefs.LiveGuest),
	}
}

// Run dials the stream and processes events until the session closes, the
// context is cancelled, or the connection drops. Cancellation is checked
// before every state mutation that follows a read.
func (w *Watcher) Run(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial events: %w", err)
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	for {
		var event proto.SessionEvent
		if err := wsjson.Read(ctx, conn, &event); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		closed, err := w.handleEvent(ctx, event)
		if err != nil {
			return err
		}
		if closed {
			conn.Close(websocket.StatusNormalClosure, "session closed")
			return nil
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event proto.SessionEvent) (closed bool, err error) {
	switch event.Type {
	case proto.EventParticipantJoined:
		var data proto.ParticipantJoinedData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return false, fmt.Errorf("decode %s: %w", event.Type, err)
		}
		w.mu.Lock()
		w.guests[data.ParticipantID] = prefs.LiveGuest{
			ParticipantID: data.ParticipantID,
			Username:      data.Username,
			DisplayName:   data.DisplayName,
		}
		w.mu.Unlock()

	case proto.EventParticipantLeft:
		var data proto.ParticipantLeftData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return false, fmt.Errorf("decode %s: %w", event.Type, err)
		}
		w.mu.Lock()
		delete(w.guests, data.ParticipantID)
		w.mu.Unlock()

	case proto.EventPreferencesSubmitted:
		var data proto.PreferencesSubmittedData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return false, fmt.Errorf("decode %s: %w", event.Type, err)
		}
		w.mu.Lock()
		guest, ok := w.guests[data.ParticipantID]
		if !ok {
			guest = prefs.LiveGuest{ParticipantID: data.ParticipantID, Username: data.Username}
		}
		// An empty submission is meaningful; keep a non-nil slice so the
		// merger can tell "no data yet" from "zero preferences".
		recs := prefs.RecordsFromPayloads(data.Username, data.Preferences)
		if recs == nil {
			recs = []*store.PreferenceRecord{}
		}
		guest.Preferences = recs
		w.guests[data.ParticipantID] = guest
		w.mu.Unlock()

	case proto.EventSessionClosed:
		return true, nil

	default:
		if w.log != nil {
			w.log.Debug().Str("type", event.Type).Msg("ignoring unknown session event")
		}
		return false, nil
	}

	return false, w.recompute(ctx)
}

// recompute rebuilds the merged view from local users and the live roster
// and hands it to the handler.
func (w *Watcher) recompute(ctx context.Context) error {
	identities, err := w.store.ListLocalUsers(ctx)
	if err != nil {
		return fmt.Errorf("list local users: %w", err)
	}

	locals := make([]prefs.LocalUser, 0, len(identities))
	for _, id := range identities {
		recs, err := w.store.ListPreferences(ctx, id.Username)
		if err != nil {
			return fmt.Errorf("list preferences for %s: %w", id.Username, err)
		}
		locals = append(locals, prefs.LocalUser{
			Username:    id.Username,
			DisplayName: id.DisplayName,
			Preferences: recs,
		})
	}

	w.mu.Lock()
	guests := make([]prefs.LiveGuest, 0, len(w.guests))
	for _, guest := range w.guests {
		guests = append(guests, guest)
	}
	w.mu.Unlock()
	sort.Slice(guests, func(i, j int) bool { return guests[i].ParticipantID < guests[j].ParticipantID })

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	hidden := prefs.ComputeHiddenLocalUsernames(locals, guests)
	users := prefs.MergeUsers(locals, guests, hidden)
	view := prefs.MergePreferences(locals, guests, hidden)

	if w.handler != nil {
		w.handler(users, view)
	}
	return nil
}
