// Package handler exposes the dispatch engine over HTTP.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dispatch_backend/internal/dispatch/domain"
	"dispatch_backend/internal/dispatch/repository"
	"dispatch_backend/internal/dispatch/service"
	"dispatch_backend/internal/dispatch/transport"
	"dispatch_backend/platform/httpkit"
	"dispatch_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidLeadID    = "invalid lead id"
	msgInvalidCloserID  = "invalid closer id"
)

type Handler struct {
	svc        *service.Service
	activities repository.ActivityStore
	val        *validator.Validator
}

func New(svc *service.Service, activities repository.ActivityStore, val *validator.Validator) *Handler {
	return &Handler{svc: svc, activities: activities, val: val}
}

func callerFrom(identity httpkit.Identity) service.Caller {
	return service.Caller{
		UID:    identity.UserID(),
		Role:   identity.Role(),
		TeamID: identity.TeamID(),
	}
}

// CreateLead registers an intake lead and triggers the dispatch reaction.
// POST /api/v1/leads
func (h *Handler) CreateLead(c *gin.Context) {
	var req transport.CreateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid-argument", msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid-argument", msgValidationFailed, err.Error())
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	teamID, err := uuid.Parse(req.TeamID)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid-argument", "invalid team id", nil)
		return
	}
	if identity.TeamID() != teamID && identity.Role() != domain.RoleAdmin {
		httpkit.Error(c, http.StatusForbidden, "permission-denied", "caller is not on the target team", nil)
		return
	}

	var setterID *uuid.UUID
	if req.SetterID != nil {
		parsed, err := uuid.Parse(*req.SetterID)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid-argument", "invalid setter id", nil)
			return
		}
		setterID = &parsed
	}

	lead, err := h.svc.CreateLead(c.Request.Context(), repository.CreateLeadParams{
		TeamID:                   teamID,
		Status:                   domain.LeadStatus(req.Status),
		DispatchType:             domain.DispatchType(req.DispatchType),
		ScheduledAppointmentTime: req.ScheduledAppointmentTime,
		SetterVerified:           req.SetterVerified,
		SetterID:                 setterID,
		CustomerName:             req.CustomerName,
		CustomerPhone:            req.CustomerPhone,
		Address:                  req.Address,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, lead)
}

// GetLead returns one lead.
// GET /api/v1/leads/:id
func (h *Handler) GetLead(c *gin.Context) {
	leadID, identity, ok := h.leadRequest(c)
	if !ok {
		return
	}

	lead, err := h.svc.GetLead(c.Request.Context(), callerFrom(identity), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

// UpdateLead patches intake fields (appointment time, verification, status).
// PATCH /api/v1/leads/:id
func (h *Handler) UpdateLead(c *gin.Context) {
	leadID, identity, ok := h.leadRequest(c)
	if !ok {
		return
	}

	var req transport.UpdateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid-argument", msgInvalidRequest, nil)
		return
	}

	params := repository.UpdateLeadParams{
		ScheduledAppointmentTime: req.ScheduledAppointmentTime,
		SetterVerified:           req.SetterVerified,
	}
	if req.Status != nil {
		status := domain.LeadStatus(*req.Status)
		params.Status = &status
	}

	lead, err := h.svc.UpdateLead(c.Request.Context(), callerFrom(identity), leadID, params)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

// UpdateLeadStatus applies one lifecycle transition.
// PATCH /api/v1/leads/:id/status
func (h *Handler) UpdateLeadStatus(c *gin.Context) {
	leadID, identity, ok := h.leadRequest(c)
	if !ok {
		return
	}

	var req transport.UpdateLeadStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid-argument", msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid-argument", msgValidationFailed, err.Error())
		return
	}

	lead, err := h.svc.UpdateLeadStatus(c.Request.Context(), callerFrom(identity), leadID, domain.LeadStatus(req.Status))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

// ManualAssign routes a lead through the selector.
// POST /api/v1/leads/:id/assign
func (h *Handler) ManualAssign(c *gin.Context) {
	leadID, identity, ok := h.leadRequest(c)
	if !ok {
		return
	}

	result, err := h.svc.ManualAssign(c.Request.Context(), callerFrom(identity), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// SelfAssign lets the caller claim an unassigned lead.
// POST /api/v1/leads/:id/self-assign
func (h *Handler) SelfAssign(c *gin.Context) {
	leadID, identity, ok := h.leadRequest(c)
	if !ok {
		return
	}

	result, err := h.svc.SelfAssign(c.Request.Context(), callerFrom(identity), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// AcceptJob marks a lead accepted by its assigned closer.
// POST /api/v1/leads/:id/accept
func (h *Handler) AcceptJob(c *gin.Context) {
	leadID, identity, ok := h.leadRequest(c)
	if !ok {
		return
	}

	result, err := h.svc.AcceptJob(c.Request.Context(), callerFrom(identity), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// UpdateCloserStatus flips a closer's duty status.
// PATCH /api/v1/closers/:uid/status
func (h *Handler) UpdateCloserStatus(c *gin.Context) {
	closerUID, err := uuid.Parse(c.Param("uid"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid-argument", msgInvalidCloserID, nil)
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.UpdateCloserStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid-argument", msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid-argument", msgValidationFailed, err.Error())
		return
	}

	closer, err := h.svc.SetCloserStatus(c.Request.Context(), callerFrom(identity), closerUID, domain.CloserStatus(req.Status))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, closer)
}

// ListActivities returns the team's recent activity feed.
// GET /api/v1/activities
func (h *Handler) ListActivities(c *gin.Context) {
	var req transport.ListActivitiesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid-argument", msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid-argument", msgValidationFailed, err.Error())
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	items, err := h.activities.ListByTeam(c.Request.Context(), identity.TeamID(), req.Limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": items})
}

func (h *Handler) leadRequest(c *gin.Context) (uuid.UUID, httpkit.Identity, bool) {
	leadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid-argument", msgInvalidLeadID, nil)
		return uuid.Nil, nil, false
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return uuid.Nil, nil, false
	}
	return leadID, identity, true
}
