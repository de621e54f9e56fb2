package controllers

import (
	"shortstacks/middleware"
	"shortstacks/services/notifications"
	"shortstacks/services/users"
	"shortstacks/utils"

	"github.com/gofiber/fiber/v2"
)

type AuthController struct {
	auth     *middleware.Auth
	users    *users.Service
	linker   *notifications.LineLinker
	activity middleware.ActivityRecorder
}

func NewAuthController(auth *middleware.Auth, svc *users.Service, linker *notifications.LineLinker, activity middleware.ActivityRecorder) *AuthController {
	return &AuthController{auth: auth, users: svc, linker: linker, activity: activity}
}

// Login authenticates a teacher or super admin and returns a JWT token
func (ac *AuthController) Login(c *fiber.Ctx) error {
	var req users.LoginInput
	if err := utils.ParseBody(c, &req); err != nil {
		return err
	}
	user, err := ac.users.Authenticate(c.UserContext(), req)
	if err != nil {
		return err
	}
	token, expires, err := ac.auth.GenerateToken(user, 0)
	if err != nil {
		return utils.Internal(err, "Failed to generate token")
	}

	c.Locals("user", user)
	middleware.LogActivity(c, ac.activity, "LOGIN", "auth", user.ID, fiber.Map{"role": user.Role})

	return utils.Success(c, fiber.Map{
		"token":      token,
		"expires_at": expires,
		"user":       user,
	})
}

// StudentLogin authenticates a student through a class join code.
func (ac *AuthController) StudentLogin(c *fiber.Ctx) error {
	var req users.StudentLoginInput
	if err := utils.ParseBody(c, &req); err != nil {
		return err
	}
	user, class, err := ac.users.AuthenticateStudent(c.UserContext(), req)
	if err != nil {
		return err
	}
	token, expires, err := ac.auth.GenerateToken(user, class.ID)
	if err != nil {
		return utils.Internal(err, "Failed to generate token")
	}

	c.Locals("user", user)
	middleware.LogActivity(c, ac.activity, "LOGIN", "auth", user.ID, fiber.Map{"class_id": class.ID})

	return utils.Success(c, fiber.Map{
		"token":      token,
		"expires_at": expires,
		"user":       user,
		"class": fiber.Map{
			"id":     class.ID,
			"name":   class.Name,
			"period": class.Period,
		},
	})
}

// Logout revokes the current token until it expires.
func (ac *AuthController) Logout(c *fiber.Ctx) error {
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil {
		return err
	}
	if err := ac.auth.Revoke(c.UserContext(), claims); err != nil {
		return utils.Internal(err, "Failed to revoke token")
	}
	middleware.LogActivity(c, ac.activity, "LOGOUT", "auth", claims.UserID, nil)
	return utils.Success(c, fiber.Map{"message": "Logged out successfully"})
}

// Profile returns the signed-in user.
func (ac *AuthController) Profile(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	return utils.Success(c, user)
}

func (ac *AuthController) ChangePassword(c *fiber.Ctx) error {
	var req users.ChangePasswordInput
	if err := utils.ParseBody(c, &req); err != nil {
		return err
	}
	p := middleware.CurrentPrincipal(c)
	if err := ac.users.ChangePassword(c.UserContext(), p.UserID, req); err != nil {
		return err
	}
	middleware.LogActivity(c, ac.activity, "UPDATE", "auth", p.UserID, fiber.Map{"field": "password"})
	return utils.Success(c, fiber.Map{"message": "Password changed successfully"})
}

// LinkLine issues a one-time code the caller sends to the LINE bot as "LINK <code>".
func (ac *AuthController) LinkLine(c *fiber.Ctx) error {
	if ac.linker == nil {
		return utils.NotFound("LINE notifications are not enabled")
	}
	p := middleware.CurrentPrincipal(c)
	code, expires, err := ac.linker.IssueCode(c.UserContext(), p.UserID)
	if err != nil {
		return err
	}
	return utils.Success(c, fiber.Map{"code": code, "expires_at": expires, "instructions": "Send LINK " + code + " to our LINE account"})
}
