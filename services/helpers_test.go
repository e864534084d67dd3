package services

import (
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/ticrm/tire-storage-api/logger"
	"github.com/ticrm/tire-storage-api/tests/testutil"
	"gorm.io/gorm"
)

var testPNG = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

func encodedPNG() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(testPNG)
}

// orderFixture wires an OrderService to in-memory fakes and a controllable clock.
type orderFixture struct {
	db        *gorm.DB
	svc       *OrderService
	users     *UserService
	store     *MockPhotoStore
	analyzer  *MockAnalyzer
	messenger *MockMessenger
	notifier  *NotificationService

	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()

	db := testutil.NewTestDB(t)
	f := &orderFixture{
		db:        db,
		store:     NewMockPhotoStore(),
		analyzer:  &MockAnalyzer{},
		messenger: &MockMessenger{},
		now:       time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	log := logger.Nop()
	f.users = NewUserService(db, nil, log)
	f.notifier = NewNotificationService(db, f.messenger, time.Second, log)
	f.svc = NewOrderService(db, NewPhotoService(f.store), f.analyzer, f.notifier, OrderServiceOptions{
		Location:        time.UTC,
		AnalysisTimeout: time.Second,
	}, log)
	f.svc.now = f.clock
	f.svc.sleep = func(d time.Duration) {
		f.mu.Lock()
		f.sleeps = append(f.sleeps, d)
		f.now = f.now.Add(d)
		f.mu.Unlock()
	}
	f.notifier.now = f.clock
	f.users.now = f.clock
	return f
}

func (f *orderFixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *orderFixture) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func basicOrderInput(phone string) CreateOrderInput {
	return CreateOrderInput{
		ClientPhone: phone,
		ClientName:  "Иван Петров",
		Tires: []TireInput{{
			Brand:  "Michelin",
			Model:  "X-Ice",
			Size:   "205/55 R16",
			Season: "winter",
		}},
		StoragePeriod: 6,
	}
}
