package controllers

import (
	"net/http"
	"strconv"

	"github.com/Krish-Depani/showcase-auth/models"
	"github.com/Krish-Depani/showcase-auth/services"
	"github.com/Krish-Depani/showcase-auth/validators"
	"github.com/gin-gonic/gin"
)

// UserController is the admin-only user directory.
type UserController struct {
	base
	users *services.UserService
}

func NewUserController(users *services.UserService, opts Options) *UserController {
	return &UserController{
		base:  newBase(opts),
		users: users,
	}
}

func (uc *UserController) ListUsers(c *gin.Context) {
	users, err := uc.users.ListUsers(c.Request.Context())
	if err != nil {
		uc.respondError(c, err)
		return
	}

	public := make([]models.PublicUser, 0, len(users))
	for _, u := range users {
		public = append(public, u.Public())
	}

	c.JSON(http.StatusOK, gin.H{"users": public})
}

func (uc *UserController) CreateUser(c *gin.Context) {
	req, ok := validators.BindJSON[validators.CreateUserRequest](c)
	if !ok {
		return
	}

	role, err := models.ParseRole(req.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := uc.users.CreateUser(c.Request.Context(), req.Username, req.Password, role)
	if err != nil {
		uc.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user.Public()})
}

func (uc *UserController) DeleteUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}

	if err := uc.users.DeleteUser(c.Request.Context(), uint(id)); err != nil {
		uc.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
}
