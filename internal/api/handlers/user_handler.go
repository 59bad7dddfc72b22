package handlers

import (
	"edge-backend/internal/models"
	"edge-backend/internal/service"
	"edge-backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// CreateUserRequest 创建用户请求
type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
	Email    string `json:"email" binding:"required,email"`
	Role     string `json:"role"`
}

type UserHandler struct {
	userService *service.UserService
}

func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// CreateUser godoc
// @Summary 创建用户
// @Description 创建新用户（仅管理员可用）
// @Tags 用户管理
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body CreateUserRequest true "用户信息"
// @Success 200 {object} utils.Response{data=models.User}
// @Failure 400 {object} utils.Response
// @Router /admin/users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, utils.VALIDATION_ERROR, err.Error())
		return
	}

	user := &models.User{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
		Role:     models.UserRole(req.Role),
	}
	if err := h.userService.CreateUser(user); err != nil {
		utils.Error(c, utils.ERROR, "创建用户失败")
		return
	}

	// 不返回密码哈希
	user.Password = ""
	utils.SuccessWithMessage(c, user, "用户创建成功")
}
