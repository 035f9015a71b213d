package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/branch-ledger/internal/application/dto"
	"github.com/jhoicas/branch-ledger/pkg/jwt"
)

// canAccessBranch indica si el token puede operar sobre la sucursal.
// admin y los tokens sin sucursal ven todas; el resto solo la propia.
func canAccessBranch(c *fiber.Ctx, branchCode string) bool {
	if GetRole(c) == jwt.RoleAdmin {
		return true
	}
	own := GetBranchCode(c)
	return own == "" || own == branchCode
}

// RequireBranchAccess verifica que el parámetro de ruta :param corresponda a la sucursal
// del token. Debe usarse DESPUÉS de AuthMiddleware.
func RequireBranchAccess(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		branch := c.Params(param)
		if branch == "" {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "MISSING_BRANCH", Message: param + " es requerido"})
		}
		if !canAccessBranch(c, branch) {
			return forbiddenBranch(c, branch)
		}
		return c.Next()
	}
}

func forbiddenBranch(c *fiber.Ctx, branch string) error {
	return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
		Code:    "BRANCH_FORBIDDEN",
		Message: "sin acceso a la sucursal '" + branch + "'",
	})
}
