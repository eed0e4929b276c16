package service

import (
	"crypto/subtle"

	"loyaltyledger/internal/config"
)

// AdminService 后台口令校验
//
// 只用于前端切换到后台界面，不是安全边界
type AdminService struct {
	password string
}

func NewAdminService(cfg *config.Config) *AdminService {
	return &AdminService{password: cfg.Business.AdminPassword}
}

// VerifyPassword 未配置口令时一律拒绝
func (s *AdminService) VerifyPassword(password string) bool {
	if s.password == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) == 1
}
