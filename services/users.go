package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"

	"vparking/models"
	"vparking/utils"
)

// UserDirectory 使用者註冊、登入與查詢
type UserDirectory struct {
	db *gorm.DB
}

func NewUserDirectory(db *gorm.DB) *UserDirectory {
	return &UserDirectory{db: db}
}

// Register 註冊一般使用者
func (d *UserDirectory) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = normalizeEmail(email)
	if username == "" || email == "" || password == "" {
		return nil, validationf("username, email and password are required")
	}

	exists, err := d.EmailExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, conflictf("email %s is already in use", email)
	}

	hashed, err := utils.HashPassword(password)
	if err != nil {
		log.Printf("Failed to hash password: %v", err)
		return nil, err
	}

	user := models.User{
		Username: username,
		Email:    email,
		Password: hashed,
		Role:     models.RoleUser,
		Active:   true,
	}
	if err := d.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, conflictf("email %s is already in use", email)
		}
		log.Printf("Failed to register user: %v", err)
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	log.Printf("Successfully registered user with ID %d", user.ID)
	return &user, nil
}

// Authenticate 驗證帳密；停用的帳號視同帳密錯誤
func (d *UserDirectory) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := d.GetByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			log.Printf("Login attempt for unknown email %s", email)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !utils.CheckPasswordHash(password, user.Password) {
		log.Printf("Invalid password for email %s", email)
		return nil, ErrInvalidCredentials
	}
	if !user.Active {
		log.Printf("Inactive user %d attempted to log in", user.ID)
		return nil, ErrInvalidCredentials
	}

	log.Printf("User with ID %d logged in successfully", user.ID)
	return user, nil
}

func (d *UserDirectory) GetByID(ctx context.Context, id int) (*models.User, error) {
	var user models.User
	if err := d.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if isRecordNotFound(err) {
			return nil, notFoundf("user %d not found", id)
		}
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return &user, nil
}

func (d *UserDirectory) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = normalizeEmail(email)
	var user models.User
	if err := d.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if isRecordNotFound(err) {
			return nil, notFoundf("user with email %s not found", email)
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

func (d *UserDirectory) EmailExists(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := d.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", normalizeEmail(email)).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return count > 0, nil
}

// List 所有使用者；activeOnly 供排程通知使用
func (d *UserDirectory) List(ctx context.Context, activeOnly bool) ([]models.User, error) {
	query := d.db.WithContext(ctx).Order("id ASC")
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// EnsureAdmin 啟動時確保預設管理員存在
func (d *UserDirectory) EnsureAdmin(ctx context.Context, email, password string) (*models.User, error) {
	db := d.db.WithContext(ctx)

	var admin models.User
	err := db.Where("role = ?", models.RoleAdmin).First(&admin).Error
	if err == nil {
		log.Printf("Admin already exists: email=%s", admin.Email)
		return &admin, nil
	}
	if !isRecordNotFound(err) {
		return nil, fmt.Errorf("failed to look up admin: %w", err)
	}

	hashed, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}
	admin = models.User{
		Username: "admin",
		Email:    normalizeEmail(email),
		Password: hashed,
		Role:     models.RoleAdmin,
		Active:   true,
	}
	if err := db.Create(&admin).Error; err != nil {
		return nil, fmt.Errorf("failed to create default admin: %w", err)
	}

	log.Printf("Default admin created: email=%s", admin.Email)
	return &admin, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
