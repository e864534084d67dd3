package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ticrm/tire-storage-api/logger"
	"github.com/ticrm/tire-storage-api/models"
	"github.com/ticrm/tire-storage-api/telegram"
	"github.com/ticrm/tire-storage-api/utils"
	"gorm.io/gorm"
)

// UserService manages users: chat-platform sign-in and the client directory
type UserService struct {
	db       *gorm.DB
	adminIDs map[int64]bool
	log      logger.ILogger
	now      func() time.Time
}

func NewUserService(db *gorm.DB, adminTelegramIDs []int64, log logger.ILogger) *UserService {
	admins := make(map[int64]bool, len(adminTelegramIDs))
	for _, id := range adminTelegramIDs {
		admins[id] = true
	}
	return &UserService{db: db, adminIDs: admins, log: log, now: time.Now}
}

// UpsertTelegramUser finds or creates the user behind a platform profile.
// New users become clients, or admins when allow-listed. Existing users get
// their last login refreshed.
func (s *UserService) UpsertTelegramUser(ctx context.Context, p telegram.UserProfile) (*models.User, error) {
	if p.ID == 0 {
		return nil, fmt.Errorf("%w: telegram id is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	db := s.db.WithContext(ctx)

	var user models.User
	err := db.Where("telegram_id = ?", p.ID).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		created, createErr := s.createTelegramUser(ctx, p, now)
		if createErr == nil {
			return created, nil
		}
		if !isUniqueViolation(createErr) {
			return nil, createErr
		}
		// Lost a race with a concurrent sign-in; fall through to the update path.
		if err := db.Where("telegram_id = ?", p.ID).First(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	updates := map[string]interface{}{"last_login_at": now}
	user.LastLoginAt = &now
	if p.Username != "" {
		username := p.Username
		updates["username"] = username
		user.Username = &username
	}
	if name := p.FullName(); name != "" {
		updates["full_name"] = name
		user.FullName = name
	}
	if s.adminIDs[p.ID] && user.Role != models.RoleAdmin {
		updates["role"] = models.RoleAdmin
		user.Role = models.RoleAdmin
		s.log.Info("promoting allow-listed user to admin", logger.Int64("telegram_id", p.ID))
	}
	if err := db.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return &user, nil
}

func (s *UserService) createTelegramUser(ctx context.Context, p telegram.UserProfile, now time.Time) (*models.User, error) {
	telegramID := p.ID
	user := models.User{
		TelegramID:  &telegramID,
		FullName:    p.FullName(),
		Role:        models.RoleClient,
		LastLoginAt: &now,
	}
	if user.FullName == "" {
		user.FullName = p.Username
	}
	if p.Username != "" {
		username := p.Username
		user.Username = &username
	}
	if s.adminIDs[p.ID] {
		user.Role = models.RoleAdmin
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.log.Info("user registered", logger.Int64("telegram_id", p.ID), logger.String("role", user.Role))
	return &user, nil
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}

// CreateClientInput is the staff-entered data for a new client.
type CreateClientInput struct {
	FullName      string
	Phone         string
	CarNumber     string
	Address       string
	TrafficSource string
}

// CreateClient adds a client. A phone already in use yields ErrClientExists.
func (s *UserService) CreateClient(ctx context.Context, in CreateClientInput) (*models.User, error) {
	name := strings.TrimSpace(in.FullName)
	if name == "" {
		return nil, fmt.Errorf("%w: fullName is required", ErrInvalidInput)
	}
	if !utils.ValidatePhone(in.Phone) {
		return nil, fmt.Errorf("%w: phone is invalid", ErrInvalidInput)
	}
	phone := utils.NormalizePhone(in.Phone)

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("phone = ?", phone).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check phone: %w", err)
	}
	if count > 0 {
		return nil, ErrClientExists
	}

	client := models.User{
		FullName:      name,
		Phone:         &phone,
		CarNumber:     optional(in.CarNumber),
		Address:       optional(in.Address),
		TrafficSource: optional(in.TrafficSource),
		Role:          models.RoleClient,
	}
	if err := s.db.WithContext(ctx).Create(&client).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrClientExists
		}
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return &client, nil
}

// ClientFilter selects a page of clients.
type ClientFilter struct {
	Search string
	Page   int
	Limit  int
}

// ClientSummary is a client with the number of orders and tires on record.
type ClientSummary struct {
	models.User
	OrdersCount int64 `json:"ordersCount"`
	TiresCount  int64 `json:"tiresCount"`
}

// ListClients returns clients newest first. Search is a case-insensitive
// substring match on name, phone and car plate.
func (s *UserService) ListClients(ctx context.Context, f ClientFilter) ([]ClientSummary, Pagination, error) {
	page, limit := NormalizePage(f.Page, f.Limit)

	query := s.db.WithContext(ctx).Model(&models.User{}).Where("users.role = ?", models.RoleClient)
	if search := strings.TrimSpace(f.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(users.full_name) LIKE ? OR LOWER(COALESCE(users.phone, '')) LIKE ? OR LOWER(COALESCE(users.car_number, '')) LIKE ?",
			like, like, like,
		)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to count clients: %w", err)
	}

	clients := []ClientSummary{}
	err := query.Session(&gorm.Session{}).
		Select("users.*, " +
			"(SELECT COUNT(*) FROM orders WHERE orders.client_id = users.id) AS orders_count, " +
			"(SELECT COUNT(*) FROM tires WHERE tires.client_id = users.id) AS tires_count").
		Order("users.created_at DESC").
		Offset(offset(page, limit)).
		Limit(limit).
		Scan(&clients).Error
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to list clients: %w", err)
	}
	return clients, NewPagination(page, limit, total), nil
}

// findOrCreateClientByPhone resolves the client of a new order inside tx.
// newID is used when the client has to be created.
func findOrCreateClientByPhone(tx *gorm.DB, phone, name, carNumber, address string, newID uuid.UUID) (*models.User, error) {
	var client models.User
	err := tx.Where("phone = ?", phone).First(&client).Error
	if err == nil {
		return &client, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up client: %w", err)
	}

	client = models.User{
		ID:        newID,
		FullName:  strings.TrimSpace(name),
		Phone:     &phone,
		CarNumber: optional(carNumber),
		Address:   optional(address),
		Role:      models.RoleClient,
	}
	if client.FullName == "" {
		client.FullName = phone
	}
	if err := tx.Create(&client).Error; err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return &client, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
