package handler

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/access-control-api/internal/service"
)

type UserHandler struct {
	Accounts *service.Accounts
}

type createUserReq struct {
	FirstName   string `json:"firstName" validate:"required,max=100"`
	LastName    string `json:"lastName" validate:"required,max=100"`
	Email       string `json:"email" validate:"required,email,max=255"`
	PhoneNumber string `json:"phoneNumber" validate:"omitempty,max=20"`
	Password    string `json:"password" validate:"required,min=6,max=72"`
	RoleID      int64  `json:"roleId" validate:"omitempty,min=1"`
	IsActive    *bool  `json:"isActive"`
}

type updateUserReq struct {
	FirstName      *string `json:"firstName" validate:"omitempty,min=1,max=100"`
	LastName       *string `json:"lastName" validate:"omitempty,min=1,max=100"`
	PhoneNumber    *string `json:"phoneNumber" validate:"omitempty,max=20"`
	ProfilePicture *string `json:"profilePicture" validate:"omitempty,max=500"`
}

type setStatusReq struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

type assignRoleReq struct {
	RoleID int64 `json:"roleId" validate:"required,min=1"`
}

func (h *UserHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if email := c.QueryParam("email"); email != "" {
		u, err := h.Accounts.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		return ok(c, "user", toUser(u))
	}
	us, err := h.Accounts.List(ctx)
	if err != nil {
		return err
	}
	return ok(c, "users", toUsers(us))
}

func (h *UserHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Accounts.Get(ctx, id)
	if err != nil {
		return err
	}
	return ok(c, "user", toUser(u))
}

func (h *UserHandler) GetByEmail(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Accounts.GetByEmail(ctx, c.Param("email"))
	if err != nil {
		return err
	}
	return ok(c, "user", toUser(u))
}

func (h *UserHandler) Create(c echo.Context) error {
	var req createUserReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Accounts.Create(ctx, service.CreateUserInput{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Password:    req.Password,
		RoleID:      req.RoleID,
		IsActive:    req.IsActive,
	}, principal(c).UserID)
	if err != nil {
		return err
	}
	return created(c, "user created", toUser(u))
}

func (h *UserHandler) Update(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req updateUserReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Accounts.Update(ctx, id, service.UpdateUserInput{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		PhoneNumber:    req.PhoneNumber,
		ProfilePicture: req.ProfilePicture,
	})
	if err != nil {
		return err
	}
	return ok(c, "user updated", toUser(u))
}

func (h *UserHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Accounts.Delete(ctx, id, principal(c).UserID); err != nil {
		return err
	}
	return ok(c, "user deleted", nil)
}

func (h *UserHandler) ToggleStatus(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Accounts.ToggleStatus(ctx, id)
	if err != nil {
		return err
	}
	return ok(c, "user status updated", toUser(u))
}

func (h *UserHandler) SetStatus(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req setStatusReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Accounts.SetStatus(ctx, id, *req.IsActive)
	if err != nil {
		return err
	}
	return ok(c, "user status updated", toUser(u))
}

func (h *UserHandler) AssignRole(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req assignRoleReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Accounts.AssignRole(ctx, id, req.RoleID)
	if err != nil {
		return err
	}
	return ok(c, "role assigned", toUser(u))
}

func (h *UserHandler) RemoveRole(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Accounts.RemoveRole(ctx, id)
	if err != nil {
		return err
	}
	return ok(c, "role removed", toUser(u))
}
