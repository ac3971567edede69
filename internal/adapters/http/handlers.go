package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/NolanKnievel/bucket-list-sub001/internal/adapters/signal"
	"github.com/NolanKnievel/bucket-list-sub001/internal/app"
	"github.com/NolanKnievel/bucket-list-sub001/internal/app/stats"
	"github.com/NolanKnievel/bucket-list-sub001/internal/core"
	"github.com/NolanKnievel/bucket-list-sub001/internal/domain"
	"github.com/NolanKnievel/bucket-list-sub001/internal/store"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type handlers struct {
	groups *app.Orchestrator
	stats  *stats.Service
	signal *signal.SignalWSController
}

type CreateGroupRequest struct {
	Name        string     `json:"name" binding:"required"`
	Description string     `json:"description"`
	Deadline    *time.Time `json:"deadline"`
	CreatorName string     `json:"creatorName" binding:"required"`
}

type CreateGroupResponse struct {
	Group  *domain.Group  `json:"group"`
	Member *domain.Member `json:"member"`
}

type JoinGroupRequest struct {
	Name string `json:"name" binding:"required"`
}

type AddItemRequest struct {
	ID          domain.ItemID   `json:"id"`
	Title       string          `json:"title" binding:"required"`
	Description string          `json:"description"`
	MemberID    domain.MemberID `json:"memberId"`
}

type UpdateItemRequest struct {
	Completed *bool           `json:"completed" binding:"required"`
	MemberID  domain.MemberID `json:"memberId"`
}

func sessionKey(groupID domain.GroupID) string {
	return "member:" + string(groupID)
}

func rememberMember(c *gin.Context, m *domain.Member) {
	s := sessions.Default(c)
	s.Set(sessionKey(m.GroupID), string(m.ID))
	if err := s.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
	}
}

// memberFrom prefers an explicit id and falls back to the one the join
// endpoint stored in the session cookie.
func memberFrom(c *gin.Context, groupID domain.GroupID, explicit domain.MemberID) domain.MemberID {
	if explicit != "" {
		return explicit
	}
	if v, ok := sessions.Default(c).Get(sessionKey(groupID)).(string); ok {
		return domain.MemberID(v)
	}
	return ""
}

func groupParam(c *gin.Context) (domain.GroupID, bool) {
	id, err := domain.ParseGroupID(c.Param("groupId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": store.ErrGroupNotFound.Error()})
		return "", false
	}
	return id, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrGroupNotFound), errors.Is(err, store.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrNotMember), errors.Is(err, store.ErrMemberNotFound):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNameTaken), errors.Is(err, store.ErrItemExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNameEmpty), errors.Is(err, domain.ErrNameTooLong),
		errors.Is(err, domain.ErrTitleEmpty), errors.Is(err, domain.ErrTitleTooLong),
		errors.Is(err, domain.ErrDescTooLong), errors.Is(err, domain.ErrDeadlineInPast),
		errors.Is(err, domain.ErrInvalidItemID):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// authorize resolves and verifies the acting member of a mutation.
func (h *handlers) authorize(c *gin.Context, groupID domain.GroupID, explicit domain.MemberID) (domain.MemberID, bool) {
	memberID := memberFrom(c, groupID, explicit)
	if memberID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "memberId required"})
		return "", false
	}
	if _, err := h.groups.VerifyMember(c.Request.Context(), groupID, memberID); err != nil {
		writeError(c, err)
		return "", false
	}
	return memberID, true
}

func (h *handlers) health(c *gin.Context) {
	total, err := h.stats.TotalConnections(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": total})
}

func (h *handlers) createGroup(c *gin.Context) {
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	g, m, err := h.groups.CreateGroup(c.Request.Context(), req.Name, req.Description, req.Deadline, req.CreatorName)
	if err != nil {
		writeError(c, err)
		return
	}
	rememberMember(c, m)
	c.JSON(http.StatusCreated, CreateGroupResponse{Group: g, Member: m})
}

func (h *handlers) getGroup(c *gin.Context) {
	groupID, ok := groupParam(c)
	if !ok {
		return
	}
	snap, err := h.groups.Snapshot(c.Request.Context(), groupID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *handlers) joinGroup(c *gin.Context) {
	groupID, ok := groupParam(c)
	if !ok {
		return
	}
	var req JoinGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m, err := h.groups.JoinGroup(c.Request.Context(), groupID, req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	rememberMember(c, m)
	c.JSON(http.StatusCreated, m)
}

func (h *handlers) addItem(c *gin.Context) {
	groupID, ok := groupParam(c)
	if !ok {
		return
	}
	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	memberID, ok := h.authorize(c, groupID, req.MemberID)
	if !ok {
		return
	}
	draft := app.ItemDraft{ID: req.ID, Title: req.Title, Description: req.Description}
	it, err := h.groups.AddItem(c.Request.Context(), groupID, memberID, draft, "")
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, it)
}

func (h *handlers) updateItem(c *gin.Context) {
	groupID, ok := groupParam(c)
	if !ok {
		return
	}
	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := h.authorize(c, groupID, req.MemberID); !ok {
		return
	}
	it, err := h.groups.SetItemCompleted(c.Request.Context(), groupID, domain.ItemID(c.Param("itemId")), *req.Completed, "")
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, it)
}

func (h *handlers) upgrade(c *gin.Context) {
	groupID, ok := groupParam(c)
	if !ok {
		return
	}
	memberID := memberFrom(c, groupID, domain.MemberID(c.Query("memberId")))
	log.Info().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Str("group", string(groupID)).Msg("ws endpoint hit")
	h.signal.HandleSignal(c, groupID, memberID)
}

func (h *handlers) roomStats(c *gin.Context) {
	groupID, err := domain.ParseGroupID(c.Param("groupId"))
	if err != nil {
		c.JSON(http.StatusOK, core.RoomStats{})
		return
	}
	st, err := h.stats.GetRoomStats(c.Request.Context(), groupID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *handlers) allRoomStats(c *gin.Context) {
	all, err := h.stats.GetAllRoomStats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, all)
}
