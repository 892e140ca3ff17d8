package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/access-control-api/internal/service"
)

type InvitationHandler struct {
	Invitations *service.Invitations
}

type createInvitationReq struct {
	Email       string `json:"email" validate:"required,email,max=255"`
	PhoneNumber string `json:"phoneNumber" validate:"omitempty,max=20"`
	RoleID      int64  `json:"roleId" validate:"required,min=1"`
	ExpiryDays  int    `json:"expiryDays" validate:"min=0,max=365"`
}

func (h *InvitationHandler) Create(c echo.Context) error {
	var req createInvitationReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	inv, err := h.Invitations.Create(ctx, service.CreateInvitationInput{
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		RoleID:      req.RoleID,
		ExpiryDays:  req.ExpiryDays,
		InvitedBy:   principal(c).UserID,
	})
	if err != nil {
		return err
	}
	return created(c, "invitation created", toInvitation(inv, time.Now().UTC()))
}

func (h *InvitationHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	invs, err := h.Invitations.List(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	out := make([]invitationDTO, 0, len(invs))
	for i := range invs {
		out = append(out, toInvitation(&invs[i], now))
	}
	return ok(c, "invitations", out)
}

func (h *InvitationHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	inv, err := h.Invitations.Get(ctx, id)
	if err != nil {
		return err
	}
	return ok(c, "invitation", toInvitation(inv, time.Now().UTC()))
}

func (h *InvitationHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Invitations.Delete(ctx, id); err != nil {
		return err
	}
	return ok(c, "invitation deleted", nil)
}

// Check is public. It reveals only whether an unused invitation exists.
func (h *InvitationHandler) Check(c echo.Context) error {
	email := c.QueryParam("email")
	if email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email query parameter is required")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	chk, err := h.Invitations.Check(ctx, email)
	if err != nil {
		return err
	}
	return ok(c, "invitation status", invitationCheckDTO{
		IsInvited: chk.IsInvited,
		RoleName:  chk.RoleName,
		ExpiresAt: chk.ExpiresAt,
		IsExpired: chk.IsExpired,
	})
}
