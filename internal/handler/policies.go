package handler

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/access-control-api/internal/service"
)

type PolicyHandler struct {
	Policies *service.Policies
}

type createPolicyReq struct {
	Type    string `json:"type" validate:"required,max=50"`
	Content string `json:"content" validate:"required"`
	Version string `json:"version" validate:"max=20"`
}

type updatePolicyReq struct {
	Content  *string `json:"content" validate:"omitempty,min=1"`
	Version  *string `json:"version" validate:"omitempty,max=20"`
	IsActive *bool   `json:"isActive"`
}

func (h *PolicyHandler) active(c echo.Context, typ string) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	p, err := h.Policies.Active(ctx, typ)
	if err != nil {
		return err
	}
	return ok(c, typ+" policy", toPolicy(p))
}

func (h *PolicyHandler) Terms(c echo.Context) error { return h.active(c, service.PolicyTerms) }

func (h *PolicyHandler) Privacy(c echo.Context) error { return h.active(c, service.PolicyPrivacy) }

func (h *PolicyHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	ps, err := h.Policies.List(ctx)
	if err != nil {
		return err
	}
	out := make([]policyDTO, 0, len(ps))
	for i := range ps {
		out = append(out, toPolicy(&ps[i]))
	}
	return ok(c, "policies", out)
}

func (h *PolicyHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	p, err := h.Policies.Get(ctx, id)
	if err != nil {
		return err
	}
	return ok(c, "policy", toPolicy(p))
}

func (h *PolicyHandler) Create(c echo.Context) error {
	var req createPolicyReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	p, err := h.Policies.Create(ctx, req.Type, req.Content, req.Version)
	if err != nil {
		return err
	}
	return created(c, "policy created", toPolicy(p))
}

func (h *PolicyHandler) Update(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req updatePolicyReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	p, err := h.Policies.Update(ctx, id, service.UpdatePolicyInput{
		Content:  req.Content,
		Version:  req.Version,
		IsActive: req.IsActive,
	})
	if err != nil {
		return err
	}
	return ok(c, "policy updated", toPolicy(p))
}

func (h *PolicyHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Policies.Delete(ctx, id); err != nil {
		return err
	}
	return ok(c, "policy deleted", nil)
}
