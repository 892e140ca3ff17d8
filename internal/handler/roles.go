package handler

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/access-control-api/internal/service"
)

// RBACHandler serves roles, role hierarchy and privileges.
type RBACHandler struct {
	RBAC *service.RBAC
}

type roleReq struct {
	Name        string `json:"name" validate:"required,max=50"`
	Description string `json:"description" validate:"max=200"`
}

type hierarchyReq struct {
	ParentRoleID   *int64 `json:"parentRoleId" validate:"omitempty,min=1"`
	HierarchyLevel int    `json:"hierarchyLevel" validate:"min=0"`
}

type assignPrivilegesReq struct {
	PrivilegeIDs []int64 `json:"privilegeIds" validate:"required,dive,min=1"`
}

type privilegeReq struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=200"`
	Category    string `json:"category" validate:"required,max=50"`
}

func (h *RBACHandler) ListRoles(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	rs, err := h.RBAC.ListRoles(ctx)
	if err != nil {
		return err
	}
	return ok(c, "roles", toRoles(rs))
}

func (h *RBACHandler) GetRole(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	r, err := h.RBAC.GetRole(ctx, id)
	if err != nil {
		return err
	}
	return ok(c, "role", toRole(r))
}

func (h *RBACHandler) CreateRole(c echo.Context) error {
	var req roleReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	r, err := h.RBAC.CreateRole(ctx, req.Name, req.Description)
	if err != nil {
		return err
	}
	return created(c, "role created", toRole(r))
}

func (h *RBACHandler) UpdateRole(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req roleReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	r, err := h.RBAC.UpdateRole(ctx, id, req.Name, req.Description)
	if err != nil {
		return err
	}
	return ok(c, "role updated", toRole(r))
}

func (h *RBACHandler) DeleteRole(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.RBAC.DeleteRole(ctx, id); err != nil {
		return err
	}
	return ok(c, "role deleted", nil)
}

func (h *RBACHandler) SetHierarchy(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req hierarchyReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	r, err := h.RBAC.SetHierarchy(ctx, id, req.ParentRoleID, req.HierarchyLevel)
	if err != nil {
		return err
	}
	return ok(c, "role hierarchy updated", toRole(r))
}

func (h *RBACHandler) Hierarchy(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	forest, err := h.RBAC.Hierarchy(ctx)
	if err != nil {
		return err
	}
	return ok(c, "role hierarchy", toForest(forest))
}

func (h *RBACHandler) AssignPrivileges(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req assignPrivilegesReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	ps, err := h.RBAC.AssignPrivileges(ctx, id, req.PrivilegeIDs)
	if err != nil {
		return err
	}
	return ok(c, "privileges assigned", toPrivileges(ps))
}

func (h *RBACHandler) RolePrivileges(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	ps, err := h.RBAC.EffectivePrivileges(ctx, id)
	if err != nil {
		return err
	}
	return ok(c, "role privileges", toPrivileges(ps))
}

func (h *RBACHandler) RemovePrivilege(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	pid, err := pathID(c, "privilegeId")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.RBAC.RemovePrivilege(ctx, id, pid); err != nil {
		return err
	}
	return ok(c, "privilege removed from role", nil)
}

func (h *RBACHandler) ListPrivileges(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	ps, err := h.RBAC.ListPrivileges(ctx)
	if err != nil {
		return err
	}
	return ok(c, "privileges", toPrivileges(ps))
}

func (h *RBACHandler) GetPrivilege(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	p, err := h.RBAC.GetPrivilege(ctx, id)
	if err != nil {
		return err
	}
	return ok(c, "privilege", toPrivilege(p))
}

func (h *RBACHandler) CreatePrivilege(c echo.Context) error {
	var req privilegeReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	p, err := h.RBAC.CreatePrivilege(ctx, req.Name, req.Description, req.Category)
	if err != nil {
		return err
	}
	return created(c, "privilege created", toPrivilege(p))
}

func (h *RBACHandler) UpdatePrivilege(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req privilegeReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	p, err := h.RBAC.UpdatePrivilege(ctx, id, req.Name, req.Description, req.Category)
	if err != nil {
		return err
	}
	return ok(c, "privilege updated", toPrivilege(p))
}

func (h *RBACHandler) DeletePrivilege(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.RBAC.DeletePrivilege(ctx, id); err != nil {
		return err
	}
	return ok(c, "privilege deleted", nil)
}
