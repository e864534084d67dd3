package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/ticrm/tire-storage-api/lifecycle"
	"github.com/ticrm/tire-storage-api/logger"
	"github.com/ticrm/tire-storage-api/models"
	"github.com/ticrm/tire-storage-api/telegram"
	"github.com/ticrm/tire-storage-api/utils"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxOrderNumberAttempts = 5
	defaultWarehouse       = "Склад 1"
	defaultCell            = "A-1"
	photoWorkers           = 4
)

var errOrderNumberTaken = errors.New("order number already taken")

// Notifier records and delivers a notification to a user.
type Notifier interface {
	Notify(ctx context.Context, user *models.User, kind, message string, data map[string]interface{}) (*models.Notification, error)
}

// Viewer is the authenticated caller of a read operation.
type Viewer struct {
	UserID uuid.UUID
	Role   string
}

// TireInput describes one tire set handed over for storage.
type TireInput struct {
	Brand        string
	Model        string
	Size         string
	Season       string
	Description  string
	WearLevel    *int
	DotCodes     []string
	Photos       []string // base64 or data URLs
	Quantity     int
	PricePerUnit decimal.Decimal
}

// ServiceInput is an ancillary service line.
type ServiceInput struct {
	Type        string
	Description string
	Price       decimal.Decimal
}

// CreateOrderInput is everything needed to open a storage order.
type CreateOrderInput struct {
	ClientPhone     string
	ClientName      string
	ClientCarNumber string
	ClientAddress   string
	Tires           []TireInput
	Services        []ServiceInput
	StoragePeriod   int
	StartDate       *time.Time
	Warehouse       string
	Cell            string
	TotalCost       decimal.Decimal
	Debt            decimal.Decimal
	ManagerID       *uuid.UUID
}

// OrderFilter selects a page of orders.
type OrderFilter struct {
	Status   string
	ClientID *uuid.UUID
	Page     int
	Limit    int
}

// OrderServiceOptions tunes an OrderService.
type OrderServiceOptions struct {
	Location        *time.Location
	AnalysisTimeout time.Duration
}

// OrderService implements the order lifecycle: creation, reads with lazy
// status synchronisation, completion and reminders
type OrderService struct {
	db              *gorm.DB
	photos          *PhotoService
	analyzer        Analyzer
	notifier        Notifier
	log             logger.ILogger
	loc             *time.Location
	analysisTimeout time.Duration

	now   func() time.Time
	sleep func(time.Duration)
}

func NewOrderService(db *gorm.DB, photos *PhotoService, analyzer Analyzer, notifier Notifier, opts OrderServiceOptions, log logger.ILogger) *OrderService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.AnalysisTimeout <= 0 {
		opts.AnalysisTimeout = 30 * time.Second
	}
	return &OrderService{
		db:              db,
		photos:          photos,
		analyzer:        analyzer,
		notifier:        notifier,
		log:             log,
		loc:             opts.Location,
		analysisTimeout: opts.AnalysisTimeout,
		now:             time.Now,
		sleep:           time.Sleep,
	}
}

// Location is the business timezone used for order numbers and dates.
func (s *OrderService) Location() *time.Location {
	return s.loc
}

type processedPhoto struct {
	upload   *UploadResult
	analysis *TireAnalysis
}

// Create validates the input, processes photos outside the transaction and
// writes the client, tires, order, links and services in one transaction.
func (s *OrderService) Create(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	photos, err := normalizeCreateOrder(&in)
	if err != nil {
		return nil, err
	}

	clientID := uuid.New()
	var existing models.User
	err = s.db.WithContext(ctx).Select("id").Where("phone = ?", in.ClientPhone).First(&existing).Error
	switch {
	case err == nil:
		clientID = existing.ID
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("failed to look up client: %w", err)
	}

	processed := s.processPhotos(ctx, clientID, photos)

	order, client, err := s.persistOrder(ctx, in, clientID, processed)
	if err != nil {
		s.discardUploads(ctx, processed)
		return nil, err
	}

	s.log.Info("order created",
		logger.String("order_id", order.ID.String()),
		logger.String("order_number", order.OrderNumber),
		logger.String("client_id", client.ID.String()),
	)

	if client.TelegramID != nil && s.notifier != nil {
		msg := telegram.OrderCreatedMessage(order.OrderNumber, order.EndDate, s.loc)
		data := map[string]interface{}{"orderId": order.ID, "orderNumber": order.OrderNumber}
		if _, err := s.notifier.Notify(ctx, client, models.NotificationOrderCreated, msg, data); err != nil {
			s.log.Warning("order_created notification failed", logger.String("order_id", order.ID.String()), logger.Error(err))
		}
	}

	return s.load(ctx, order.ID)
}

func normalizeCreateOrder(in *CreateOrderInput) ([][]*Photo, error) {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidInput}, args...)...)
	}

	if !utils.ValidatePhone(in.ClientPhone) {
		return nil, invalid("clientPhone is invalid")
	}
	in.ClientPhone = utils.NormalizePhone(in.ClientPhone)
	if in.StoragePeriod <= 0 {
		return nil, invalid("storagePeriod must be positive")
	}
	if len(in.Tires) == 0 {
		return nil, invalid("at least one tire set is required")
	}
	if in.TotalCost.IsNegative() || in.Debt.IsNegative() {
		return nil, invalid("totalCost and debt must not be negative")
	}
	in.Warehouse = strings.TrimSpace(in.Warehouse)
	if in.Warehouse == "" {
		in.Warehouse = defaultWarehouse
	}
	in.Cell = strings.TrimSpace(in.Cell)
	if in.Cell == "" {
		in.Cell = defaultCell
	}

	photos := make([][]*Photo, len(in.Tires))
	for i := range in.Tires {
		t := &in.Tires[i]
		if strings.TrimSpace(t.Brand) == "" || strings.TrimSpace(t.Size) == "" {
			return nil, invalid("tires[%d]: brand and size are required", i)
		}
		if !models.IsValidSeason(t.Season) {
			return nil, invalid("tires[%d]: season must be summer, winter or all-season", i)
		}
		if t.WearLevel != nil && (*t.WearLevel < 0 || *t.WearLevel > 100) {
			return nil, invalid("tires[%d]: wearLevel must be between 0 and 100", i)
		}
		valid, bad := utils.MergeDotCodes(t.DotCodes)
		if len(bad) > 0 {
			return nil, invalid("tires[%d]: invalid DOT code %q", i, bad[0])
		}
		t.DotCodes = valid
		if t.Quantity <= 0 {
			t.Quantity = 1
		}
		if t.PricePerUnit.IsNegative() {
			return nil, invalid("tires[%d]: pricePerUnit must not be negative", i)
		}

		for j, encoded := range t.Photos {
			p, err := DecodePhoto(encoded)
			if err != nil {
				return nil, invalid("tires[%d].photos[%d]: %v", i, j, err)
			}
			photos[i] = append(photos[i], p)
		}
	}

	for i, svc := range in.Services {
		if strings.TrimSpace(svc.Type) == "" {
			return nil, invalid("services[%d]: type is required", i)
		}
		if svc.Price.IsNegative() {
			return nil, invalid("services[%d]: price must not be negative", i)
		}
	}
	return photos, nil
}

// processPhotos uploads and analyses every photo concurrently. Failed
// uploads leave a nil upload, failed analyses a nil analysis.
func (s *OrderService) processPhotos(ctx context.Context, clientID uuid.UUID, photos [][]*Photo) [][]processedPhoto {
	results := make([][]processedPhoto, len(photos))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(photoWorkers)
	for i := range photos {
		results[i] = make([]processedPhoto, len(photos[i]))
		for j, p := range photos[i] {
			i, j, p := i, j, p
			g.Go(func() error {
				res, err := s.photos.UploadTirePhoto(gctx, clientID, p)
				if err != nil {
					s.log.Warning("photo upload failed, dropping photo",
						logger.Int("tire", i), logger.Int("photo", j), logger.Error(err))
					return nil
				}
				results[i][j].upload = res
				return nil
			})
			g.Go(func() error {
				results[i][j].analysis = s.analyze(gctx, p)
				return nil
			})
		}
	}
	_ = g.Wait()
	return results
}

func (s *OrderService) analyze(ctx context.Context, p *Photo) (analysis *TireAnalysis) {
	if s.analyzer == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("tire analysis panicked", logger.Any("panic", r))
			analysis = nil
		}
	}()

	actx, cancel := context.WithTimeout(ctx, s.analysisTimeout)
	defer cancel()

	result, err := s.analyzer.AnalyzeTirePhoto(actx, p.Data, p.ContentType)
	if err != nil {
		s.log.Warning("tire analysis failed", logger.Error(err))
		return nil
	}
	return result
}

func (s *OrderService) discardUploads(ctx context.Context, processed [][]processedPhoto) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	for _, tire := range processed {
		for _, p := range tire {
			if p.upload == nil {
				continue
			}
			if err := s.photos.DeletePhoto(cleanupCtx, p.upload.URL); err != nil {
				s.log.Warning("failed to delete orphaned photo", logger.String("url", p.upload.URL), logger.Error(err))
			}
		}
	}
}

// buildTire turns input plus photo results into a tire ready for insert.
// Analysis DOT codes are merged in and its wear level fills a missing one.
func buildTire(in TireInput, clientID uuid.UUID, location string, photos []processedPhoto) models.Tire {
	tire := models.Tire{
		ClientID:        clientID,
		Brand:           strings.TrimSpace(in.Brand),
		Model:           optional(in.Model),
		Size:            strings.TrimSpace(in.Size),
		Season:          in.Season,
		Description:     optional(in.Description),
		WearLevel:       in.WearLevel,
		StorageLocation: location,
		Status:          models.TireStatusStorage,
	}

	codes := [][]string{in.DotCodes}
	for _, p := range photos {
		if p.analysis != nil {
			codes = append(codes, p.analysis.DotCodes)
			if tire.WearLevel == nil && p.analysis.Confidence > 0 {
				w := p.analysis.WearLevelPercent()
				tire.WearLevel = &w
			}
		}
		if p.upload == nil {
			continue
		}
		photo := models.TirePhoto{URL: p.upload.URL, StorageType: p.upload.Backend}
		if p.analysis != nil {
			if raw, err := json.Marshal(p.analysis); err == nil {
				photo.AIAnalysis = datatypes.JSON(raw)
			}
		}
		tire.Photos = append(tire.Photos, photo)
	}

	valid, _ := utils.MergeDotCodes(codes...)
	for _, code := range valid {
		tire.DotCodes = append(tire.DotCodes, models.TireDotCode{DotCode: code})
	}
	return tire
}

func (s *OrderService) persistOrder(ctx context.Context, in CreateOrderInput, clientID uuid.UUID, processed [][]processedPhoto) (*models.Order, *models.User, error) {
	var (
		order  *models.Order
		client *models.User
		err    error
	)

	for attempt := 1; attempt <= maxOrderNumberAttempts; attempt++ {
		createdAt := s.now().UTC()
		order, client, err = s.createInTx(ctx, in, clientID, processed, createdAt)
		if !errors.Is(err, errOrderNumberTaken) {
			break
		}
		s.log.Warning("order number collision, retrying",
			logger.String("order_number", lifecycle.OrderNumber(createdAt, s.loc)), logger.Int("attempt", attempt))
		if attempt < maxOrderNumberAttempts {
			s.sleep(untilNextSecond(createdAt) + time.Duration(rand.Int63n(int64(100*time.Millisecond))))
		}
	}
	if errors.Is(err, errOrderNumberTaken) {
		return nil, nil, fmt.Errorf("failed to allocate a unique order number after %d attempts: %w", maxOrderNumberAttempts, err)
	}
	return order, client, err
}

func untilNextSecond(t time.Time) time.Duration {
	return t.Truncate(time.Second).Add(time.Second).Sub(t)
}

func (s *OrderService) createInTx(ctx context.Context, in CreateOrderInput, clientID uuid.UUID, processed [][]processedPhoto, createdAt time.Time) (*models.Order, *models.User, error) {
	start := createdAt
	if in.StartDate != nil {
		start = in.StartDate.UTC()
	}
	end, reminder := lifecycle.Dates(start, in.StoragePeriod)
	location := in.Warehouse + "-" + in.Cell

	var (
		order  models.Order
		client *models.User
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		client, err = findOrCreateClientByPhone(tx, in.ClientPhone, in.ClientName, in.ClientCarNumber, in.ClientAddress, clientID)
		if err != nil {
			return err
		}

		tires := make([]models.Tire, len(in.Tires))
		for i, t := range in.Tires {
			tires[i] = buildTire(t, client.ID, location, processed[i])
			if err := tx.Create(&tires[i]).Error; err != nil {
				return fmt.Errorf("failed to create tire: %w", err)
			}
		}

		order = models.Order{
			OrderNumber:   lifecycle.OrderNumber(createdAt, s.loc),
			ClientID:      client.ID,
			ManagerID:     in.ManagerID,
			StoragePeriod: in.StoragePeriod,
			StartDate:     start,
			EndDate:       end,
			ReminderDate:  reminder,
			Warehouse:     in.Warehouse,
			Cell:          in.Cell,
			TotalCost:     in.TotalCost,
			Debt:          in.Debt,
			Status:        models.OrderStatusActive,
		}
		if err := tx.Omit(clause.Associations).Create(&order).Error; err != nil {
			if isUniqueViolation(err) {
				return errOrderNumberTaken
			}
			return fmt.Errorf("failed to create order: %w", err)
		}

		links := make([]models.OrderTire, len(tires))
		for i, tire := range tires {
			links[i] = models.OrderTire{
				OrderID:      order.ID,
				TireID:       tire.ID,
				Quantity:     in.Tires[i].Quantity,
				PricePerUnit: in.Tires[i].PricePerUnit,
			}
		}
		if err := tx.Omit(clause.Associations).Create(&links).Error; err != nil {
			return fmt.Errorf("failed to link tires: %w", err)
		}

		if len(in.Services) > 0 {
			services := make([]models.Service, len(in.Services))
			for i, svc := range in.Services {
				services[i] = models.Service{
					OrderID:     order.ID,
					ServiceType: strings.TrimSpace(svc.Type),
					Description: optional(svc.Description),
					Price:       svc.Price,
				}
			}
			if err := tx.Create(&services).Error; err != nil {
				return fmt.Errorf("failed to create services: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &order, client, nil
}

func (s *OrderService) preloaded(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("Client").
		Preload("Manager").
		Preload("OrderTires.Tire.DotCodes").
		Preload("OrderTires.Tire.Photos").
		Preload("Services")
}

func (s *OrderService) load(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := s.preloaded(ctx).First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &order, nil
}

// SyncStatuses brings the persisted status of every open order in line
// with its end date. Completed orders are never touched.
func (s *OrderService) SyncStatuses(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	var changed int64
	for _, w := range lifecycle.StatusWindows(now) {
		q := s.db.WithContext(ctx).Model(&models.Order{}).
			Where("status <> ?", models.OrderStatusCompleted).
			Where("status <> ?", w.Status)
		if w.After != nil {
			q = q.Where("end_date > ?", *w.After)
		}
		if w.AtMost != nil {
			q = q.Where("end_date <= ?", *w.AtMost)
		}
		res := q.Update("status", w.Status)
		if res.Error != nil {
			return changed, fmt.Errorf("failed to sync %s orders: %w", w.Status, res.Error)
		}
		changed += res.RowsAffected
	}
	if changed > 0 {
		s.log.Debug("order statuses synchronised", logger.Int64("changed", changed))
	}
	return changed, nil
}

func (s *OrderService) syncQuietly(ctx context.Context) {
	if _, err := s.SyncStatuses(ctx); err != nil {
		s.log.Warning("status sync failed", logger.Error(err))
	}
}

// List returns a page of orders, newest first. Clients only ever see their
// own orders whatever ClientID they ask for.
func (s *OrderService) List(ctx context.Context, viewer Viewer, f OrderFilter) ([]models.Order, Pagination, error) {
	if f.Status != "" && !isOrderStatus(f.Status) {
		return nil, Pagination{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, f.Status)
	}
	s.syncQuietly(ctx)

	page, limit := NormalizePage(f.Page, f.Limit)
	query := s.db.WithContext(ctx).Model(&models.Order{})
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	clientID := f.ClientID
	if viewer.Role == models.RoleClient {
		clientID = &viewer.UserID
	}
	if clientID != nil {
		query = query.Where("client_id = ?", *clientID)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to count orders: %w", err)
	}

	orders := []models.Order{}
	err := query.Session(&gorm.Session{}).
		Preload("Client").
		Preload("OrderTires.Tire.DotCodes").
		Preload("OrderTires.Tire.Photos").
		Preload("Services").
		Order("created_at DESC").
		Offset(offset(page, limit)).
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, NewPagination(page, limit, total), nil
}

// Get returns one order. Clients may only read their own.
func (s *OrderService) Get(ctx context.Context, viewer Viewer, id uuid.UUID) (*models.Order, error) {
	s.syncQuietly(ctx)

	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if viewer.Role == models.RoleClient && order.ClientID != viewer.UserID {
		return nil, ErrForbidden
	}
	return order, nil
}

// ListOpenForClient returns a client's active and expiring orders.
func (s *OrderService) ListOpenForClient(ctx context.Context, clientID uuid.UUID) ([]models.Order, error) {
	s.syncQuietly(ctx)

	orders := []models.Order{}
	err := s.db.WithContext(ctx).
		Preload("OrderTires.Tire.DotCodes").
		Preload("OrderTires.Tire.Photos").
		Preload("Services").
		Where("client_id = ?", clientID).
		Where("status IN ?", []string{models.OrderStatusActive, models.OrderStatusExpiring}).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list client orders: %w", err)
	}
	return orders, nil
}

// ListOpenByTelegramID is ListOpenForClient keyed by chat identity. Unknown
// users simply have no orders.
func (s *OrderService) ListOpenByTelegramID(ctx context.Context, telegramID int64) ([]models.Order, error) {
	var user models.User
	err := s.db.WithContext(ctx).Select("id").Where("telegram_id = ?", telegramID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []models.Order{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return s.ListOpenForClient(ctx, user.ID)
}

// Complete closes an order and marks its tires returned. Completing an
// already completed order changes nothing.
func (s *OrderService) Complete(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	now := s.now().UTC()
	transitioned := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status <> ?", id, models.OrderStatusCompleted).
			Updates(map[string]interface{}{"status": models.OrderStatusCompleted, "completed_at": now})
		if res.Error != nil {
			return fmt.Errorf("failed to complete order: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Order{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrOrderNotFound
			}
			return nil
		}
		transitioned = true

		return tx.Model(&models.Tire{}).
			Where("id IN (?)", tx.Model(&models.OrderTire{}).Select("tire_id").Where("order_id = ?", id)).
			Update("status", models.TireStatusReturned).Error
	})
	if err != nil {
		return nil, err
	}

	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if transitioned {
		s.log.Info("order completed", logger.String("order_id", id.String()), logger.String("order_number", order.OrderNumber))
		if order.Client.TelegramID != nil && s.notifier != nil {
			data := map[string]interface{}{"orderId": order.ID, "orderNumber": order.OrderNumber}
			if _, err := s.notifier.Notify(ctx, &order.Client, models.NotificationOrderCompleted, telegram.OrderCompletedMessage(order.OrderNumber), data); err != nil {
				s.log.Warning("order_completed notification failed", logger.String("order_id", id.String()), logger.Error(err))
			}
		}
	}
	return order, nil
}

// SendDueReminders notifies clients whose reminder date has passed and who
// were not reminded yet. It returns the number of orders handled.
func (s *OrderService) SendDueReminders(ctx context.Context) (int, error) {
	if _, err := s.SyncStatuses(ctx); err != nil {
		return 0, err
	}
	now := s.now().UTC()

	var due []models.Order
	err := s.db.WithContext(ctx).
		Preload("Client").
		Where("status <> ?", models.OrderStatusCompleted).
		Where("reminder_date <= ?", now).
		Where("reminder_sent_at IS NULL").
		Order("end_date ASC").
		Find(&due).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load due reminders: %w", err)
	}

	sent := 0
	for i := range due {
		order := &due[i]
		days := lifecycle.DaysUntil(order.EndDate, now)
		if s.notifier != nil {
			data := map[string]interface{}{"orderId": order.ID, "orderNumber": order.OrderNumber, "daysLeft": days}
			msg := telegram.StorageExpiringMessage(order.OrderNumber, days)
			if days < 0 {
				msg = telegram.StorageOverdueMessage(order.OrderNumber, -days)
			}
			if _, err := s.notifier.Notify(ctx, &order.Client, models.NotificationStorageExpiring, msg, data); err != nil {
				s.log.Warning("reminder failed", logger.String("order_id", order.ID.String()), logger.Error(err))
				continue
			}
		}
		if err := s.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", order.ID).Update("reminder_sent_at", now).Error; err != nil {
			s.log.Warning("failed to mark reminder sent", logger.String("order_id", order.ID.String()), logger.Error(err))
			continue
		}
		sent++
	}
	s.log.Info("reminder sweep finished", logger.Int("due", len(due)), logger.Int("sent", sent))
	return sent, nil
}

func isOrderStatus(status string) bool {
	switch status {
	case models.OrderStatusActive, models.OrderStatusExpiring, models.OrderStatusOverdue, models.OrderStatusCompleted:
		return true
	}
	return false
}
