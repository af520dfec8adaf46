// Package hosttest provides an in-process fake of the session host for
// integration tests that exercise the real HTTP client end to end.
package hosttest

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"gamenight/internal/proto"
)

// Session is one hosted session's scripted state.
type Session struct {
	ID                string
	Status            string
	Capacity          int
	ShareMode         string
	HostName          string
	NamedSlots        []proto.NamedSlot
	Games             []proto.GameInfo
	SharedPreferences []proto.PreferencePayload

	claimed map[string]string // participant id -> display name
}

// Host implements the five host operations over HTTP with the same wire
// contract as the real service: POST /v1/op/<name>, JSON bodies, the
// structured error envelope on failure, and signed guest tokens.
type Host struct {
	secret []byte

	mu          sync.Mutex
	sessions    map[string]*Session
	failures    map[string]int // op -> remaining injected failures
	submissions map[string][]proto.PreferencePayload
	anonSeq     int
}

// New builds an empty fake host.
func New() *Host {
	return &Host{
		secret:      []byte("hosttest-secret"),
		sessions:    make(map[string]*Session),
		failures:    make(map[string]int),
		submissions: make(map[string][]proto.PreferencePayload),
	}
}

// AddSession registers a session. Zero-value Status defaults to open.
func (h *Host) AddSession(s *Session) {
	if s.Status == "" {
		s.Status = proto.SessionStatusOpen
	}
	if s.claimed == nil {
		s.claimed = make(map[string]string)
	}
	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()
}

// FailNext makes the next n calls to op fail with an unavailable error,
// for driving the retry path.
func (h *Host) FailNext(op string, n int) {
	h.mu.Lock()
	h.failures[op] = n
	h.mu.Unlock()
}

// Submissions returns what a participant has submitted, or nil.
func (h *Host) Submissions(participantID string) []proto.PreferencePayload {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.submissions[participantID]
}

// Handler returns the HTTP handler serving the host API.
func (h *Host) Handler() http.Handler {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/v1/op/:op", h.dispatch)
	return r
}

func (h *Host) dispatch(c *gin.Context) {
	op := c.Param("op")

	h.mu.Lock()
	if n := h.failures[op]; n > 0 {
		h.failures[op] = n - 1
		h.mu.Unlock()
		writeError(c, http.StatusServiceUnavailable, "unavailable", "injected failure")
		return
	}
	h.mu.Unlock()

	switch op {
	case proto.OpGetSessionPreview:
		h.getSessionPreview(c)
	case proto.OpClaimSessionSlot:
		h.claimSessionSlot(c)
	case proto.OpGetSessionGames:
		h.getSessionGames(c)
	case proto.OpGetSharedPreferences:
		h.getSharedPreferences(c)
	case proto.OpSubmitGuestPreferences:
		h.submitGuestPreferences(c)
	default:
		writeError(c, http.StatusNotFound, "unimplemented", fmt.Sprintf("unknown operation %q", op))
	}
}

func (h *Host) getSessionPreview(c *gin.Context) {
	var req proto.PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[req.SessionID]
	if !ok {
		writeError(c, http.StatusNotFound, "not_found", "session not found")
		return
	}
	c.JSON(http.StatusOK, proto.PreviewResponse{
		SessionID:    s.ID,
		Status:       s.Status,
		Capacity:     s.Capacity,
		ClaimedCount: len(s.claimed),
		NamedSlots:   s.NamedSlots,
		ShareMode:    s.ShareMode,
		HostName:     s.HostName,
	})
}

func (h *Host) claimSessionSlot(c *gin.Context) {
	var req proto.ClaimSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[req.SessionID]
	if !ok {
		writeError(c, http.StatusNotFound, "not_found", "session not found")
		return
	}
	if s.Status != proto.SessionStatusOpen {
		writeError(c, http.StatusConflict, "failed_precondition", "session not open")
		return
	}
	if s.Capacity > 0 && len(s.claimed) >= s.Capacity {
		writeError(c, http.StatusConflict, "failed_precondition", "session full")
		return
	}

	participantID := req.ParticipantID
	if participantID != "" {
		var slot *proto.NamedSlot
		for i := range s.NamedSlots {
			if s.NamedSlots[i].ParticipantID == participantID {
				slot = &s.NamedSlots[i]
				break
			}
		}
		if slot == nil {
			writeError(c, http.StatusNotFound, "not_found", "no such slot")
			return
		}
		if _, taken := s.claimed[participantID]; taken {
			writeError(c, http.StatusConflict, "already_exists", "slot already claimed")
			return
		}
	} else {
		for _, name := range s.claimed {
			if strings.EqualFold(name, req.DisplayName) {
				writeError(c, http.StatusConflict, "already_exists", "name already taken")
				return
			}
		}
		h.anonSeq++
		participantID = fmt.Sprintf("anon-%d", h.anonSeq)
	}
	s.claimed[participantID] = req.DisplayName

	token, err := h.signGuestToken(s.ID, participantID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	c.JSON(http.StatusOK, proto.ClaimSlotResponse{
		ParticipantID:        participantID,
		GuestToken:           token,
		HasSharedPreferences: len(s.SharedPreferences) > 0,
	})
}

func (h *Host) getSessionGames(c *gin.Context) {
	var req proto.GamesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[req.SessionID]
	if !ok {
		writeError(c, http.StatusNotFound, "not_found", "session not found")
		return
	}
	c.JSON(http.StatusOK, proto.GamesResponse{Games: s.Games})
}

func (h *Host) getSharedPreferences(c *gin.Context) {
	var req proto.SharedPreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[req.SessionID]
	if !ok {
		writeError(c, http.StatusNotFound, "not_found", "session not found")
		return
	}
	c.JSON(http.StatusOK, proto.SharedPreferencesResponse{
		HasPreferences: len(s.SharedPreferences) > 0,
		Preferences:    s.SharedPreferences,
		DisplayName:    s.HostName,
	})
}

func (h *Host) submitGuestPreferences(c *gin.Context) {
	participantID, ok := h.authenticate(c)
	if !ok {
		return
	}

	var req proto.SubmitPreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.sessions[req.SessionID]; !exists {
		writeError(c, http.StatusNotFound, "not_found", "session not found")
		return
	}
	if req.Preferences == nil {
		req.Preferences = []proto.PreferencePayload{}
	}
	h.submissions[participantID] = req.Preferences
	c.JSON(http.StatusOK, proto.SubmitPreferencesResponse{PreferencesCount: len(req.Preferences)})
}

// authenticate verifies the bearer guest token and returns the
// participant id it was issued to.
func (h *Host) authenticate(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found || raw == "" {
		writeError(c, http.StatusUnauthorized, "unauthenticated", "missing guest token")
		return "", false
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return h.secret, nil
	})
	if err != nil || !token.Valid {
		writeError(c, http.StatusUnauthorized, "unauthenticated", "invalid guest token")
		return "", false
	}
	participantID, _ := claims["participant_id"].(string)
	if participantID == "" {
		writeError(c, http.StatusUnauthorized, "unauthenticated", "token missing participant")
		return "", false
	}
	return participantID, true
}

func (h *Host) signGuestToken(sessionID, participantID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"session_id":     sessionID,
		"participant_id": participantID,
		"iat":            now.Unix(),
		"exp":            now.Add(24 * time.Hour).Unix(),
	})
	return token.SignedString(h.secret)
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, proto.ErrorBody{Error: proto.RemoteErrorBody{Code: code, Message: message}})
}
