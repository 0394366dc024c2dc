package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-class-api/internal/models"
	"github.com/noah-isme/studio-class-api/internal/repository"
)

const testStudio = "studio-1"

// memStore keeps sessions, bookings and waitlist entries in memory. Every
// method copies values in and out so services never share pointers with it.
type memStore struct {
	mu        sync.Mutex
	seq       int
	sessions  map[string]models.ClassSession
	bookings  map[string]models.Booking
	entries   map[string]models.WaitlistEntry
	listCalls int
}

func newMemStore() *memStore {
	return &memStore{
		sessions: map[string]models.ClassSession{},
		bookings: map[string]models.Booking{},
		entries:  map[string]models.WaitlistEntry{},
	}
}

func (m *memStore) stamp() time.Time {
	m.seq++
	return time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(m.seq) * time.Millisecond)
}

type memSessions struct{ *memStore }

func (m memSessions) List(ctx context.Context, filter models.SessionFilter) ([]models.ClassSession, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	var out []models.ClassSession
	for _, s := range m.sessions {
		if s.CancelledAt != nil || s.StudioID != filter.StudioID {
			continue
		}
		if filter.From != nil && s.StartTime.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !s.StartTime.Before(*filter.To) {
			continue
		}
		if filter.TeacherID != "" && s.TeacherID != filter.TeacherID {
			continue
		}
		if filter.RecurringGroupID != "" && (s.RecurringGroupID == nil || *s.RecurringGroupID != filter.RecurringGroupID) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, len(out), nil
}

func (m memSessions) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.CancelledAt != nil {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (m memSessions) ListByGroup(ctx context.Context, groupID string) ([]models.ClassSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ClassSession
	for _, s := range m.sessions {
		if s.CancelledAt == nil && s.RecurringGroupID != nil && *s.RecurringGroupID == groupID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m memSessions) FindOverlapping(ctx context.Context, teacherID, locationID string, start, end time.Time, excludeID string) ([]models.ClassSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ClassSession
	for _, s := range m.sessions {
		if s.CancelledAt != nil || s.ID == excludeID {
			continue
		}
		if (s.TeacherID == teacherID || s.LocationID == locationID) && s.Overlaps(start, end) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m memSessions) Create(ctx context.Context, exec sqlx.ExtContext, session *models.ClassSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	session.CreatedAt = m.stamp()
	session.UpdatedAt = session.CreatedAt
	m.sessions[session.ID] = *session
	return nil
}

func (m memSessions) Update(ctx context.Context, exec sqlx.ExtContext, session *models.ClassSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.ID]; ok {
		m.sessions[session.ID] = *session
	}
	return nil
}

func (m memSessions) MarkCancelled(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.CancelledAt = &at
		m.sessions[id] = s
	}
	return nil
}

type memBookings struct{ *memStore }

func (m memBookings) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &b, nil
}

func (m memBookings) ListBySession(ctx context.Context, sessionID string) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Booking
	for _, b := range m.bookings {
		if b.ClassSessionID == sessionID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m memBookings) ListByClient(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Booking
	for _, b := range m.bookings {
		if b.ClientID == filter.ClientID && (filter.Status == "" || b.Status == filter.Status) {
			out = append(out, b)
		}
	}
	return out, len(out), nil
}

func (m memBookings) CountActive(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, b := range m.bookings {
		if b.ClassSessionID == sessionID && b.Status == models.BookingStatusConfirmed {
			count++
		}
	}
	return count, nil
}

func (m memBookings) FindForClient(ctx context.Context, exec sqlx.ExtContext, sessionID, clientID string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.ClassSessionID == sessionID && b.ClientID == clientID && b.Status != models.BookingStatusCancelled {
			return &b, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m memBookings) FindClientOverlaps(ctx context.Context, exec sqlx.ExtContext, clientID string, start, end time.Time, excludeSessionID string) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Booking
	for _, b := range m.bookings {
		if b.ClientID != clientID || b.Status == models.BookingStatusCancelled || b.ClassSessionID == excludeSessionID {
			continue
		}
		s, ok := m.sessions[b.ClassSessionID]
		if ok && s.CancelledAt == nil && s.Overlaps(start, end) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m memBookings) Create(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	booking.CreatedAt = m.stamp()
	booking.UpdatedAt = booking.CreatedAt
	m.bookings[booking.ID] = *booking
	return nil
}

func (m memBookings) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[booking.ID] = *booking
	return nil
}

func (m memBookings) CancelActiveBySession(ctx context.Context, exec sqlx.ExtContext, sessionID, reason string, at time.Time) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Booking
	for id, b := range m.bookings {
		if b.ClassSessionID != sessionID || b.Status != models.BookingStatusConfirmed {
			continue
		}
		r := reason
		cancelledAt := at
		b.Status = models.BookingStatusCancelled
		b.CancelledAt = &cancelledAt
		b.CancellationReason = &r
		m.bookings[id] = b
		out = append(out, b)
	}
	return out, nil
}

type memWaitlist struct{ *memStore }

func (m memWaitlist) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.WaitlistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (m memWaitlist) open(sessionID string) []models.WaitlistEntry {
	var out []models.WaitlistEntry
	for _, e := range m.entries {
		if e.ClassSessionID == sessionID && e.Status.Open() {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m memWaitlist) ListBySession(ctx context.Context, sessionID string) ([]models.WaitlistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open(sessionID), nil
}

func (m memWaitlist) FindOpenForClient(ctx context.Context, exec sqlx.ExtContext, sessionID, clientID string) (*models.WaitlistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.open(sessionID) {
		if e.ClientID == clientID {
			return &e, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m memWaitlist) NextPosition(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, e := range m.open(sessionID) {
		if e.Status == models.WaitlistStatusWaiting && e.Position > max {
			max = e.Position
		}
	}
	return max + 1, nil
}

func (m memWaitlist) NextWaiting(ctx context.Context, exec sqlx.ExtContext, sessionID string) (*models.WaitlistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.open(sessionID) {
		if e.Status == models.WaitlistStatusWaiting {
			return &e, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m memWaitlist) CountOutstandingOffers(ctx context.Context, exec sqlx.ExtContext, sessionID string, now time.Time, excludeID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, e := range m.open(sessionID) {
		if e.ID != excludeID && e.OfferOutstanding(now) {
			count++
		}
	}
	return count, nil
}

func (m memWaitlist) CountOpen(ctx context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open(sessionID)), nil
}

func (m memWaitlist) Create(ctx context.Context, exec sqlx.ExtContext, entry *models.WaitlistEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = m.stamp()
	entry.UpdatedAt = entry.CreatedAt
	m.entries[entry.ID] = *entry
	return nil
}

func (m memWaitlist) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, entry *models.WaitlistEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.ID] = *entry
	return nil
}

func (m memWaitlist) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func (m memWaitlist) Compact(ctx context.Context, exec sqlx.ExtContext, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	position := 0
	for _, e := range m.open(sessionID) {
		if e.Status != models.WaitlistStatusWaiting {
			continue
		}
		position++
		e.Position = position
		m.entries[e.ID] = e
	}
	return nil
}

func (m memWaitlist) DeleteOpenBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dropped := 0
	for _, e := range m.open(sessionID) {
		delete(m.entries, e.ID)
		dropped++
	}
	return dropped, nil
}

func (m memWaitlist) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.WaitlistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WaitlistEntry
	for _, e := range m.entries {
		if e.Status == models.WaitlistStatusNotified && e.ExpiresAt != nil && !now.Before(*e.ExpiresAt) {
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, notification models.Notification) error {
	args := m.Called(ctx, notification)
	return args.Error(0)
}

func (m *mockNotifier) sent(kind models.NotificationType) []models.Notification {
	var out []models.Notification
	for _, call := range m.Calls {
		n := call.Arguments.Get(1).(models.Notification)
		if n.Type == kind {
			out = append(out, n)
		}
	}
	return out
}

type schedulingFixture struct {
	store     *memStore
	clock     *fakeClock
	notifier  *mockNotifier
	settings  *StudioSettingsService
	conflicts *ConflictService
	waitlist  *WaitlistService
	bookings  *BookingService
	sessions  *SessionService
	series    *SeriesService
}

func newSchedulingFixture(t *testing.T) *schedulingFixture {
	t.Helper()
	store := newMemStore()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)}
	notifier := &mockNotifier{}
	notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

	validate := validator.New()
	logger := zap.NewNop()
	locker := repository.NewSessionLocker(nil, 2*time.Second)
	sessionRepo := memSessions{store}
	bookingRepo := memBookings{store}
	waitlistRepo := memWaitlist{store}

	settings := NewStudioSettingsService(nil, "UTC", time.Hour, validate, logger)
	conflicts := NewConflictService(sessionRepo, nil, logger)
	waitlist := NewWaitlistService(WaitlistServiceParams{
		Sessions:  sessionRepo,
		Bookings:  bookingRepo,
		Waitlist:  waitlistRepo,
		Locker:    locker,
		Settings:  settings,
		Notifier:  notifier,
		Validator: validate,
		Logger:    logger,
	})
	bookings := NewBookingService(BookingServiceParams{
		Sessions:             sessionRepo,
		Bookings:             bookingRepo,
		Waitlist:             waitlistRepo,
		Locker:               locker,
		Promoter:             waitlist,
		Notifier:             notifier,
		Validator:            validate,
		Logger:               logger,
		PreventClientOverlap: true,
	})
	sessions := NewSessionService(SessionServiceParams{
		Sessions:  sessionRepo,
		Bookings:  bookingRepo,
		Waitlist:  waitlistRepo,
		Conflicts: conflicts,
		Locker:    locker,
		Canceller: bookings,
		Promoter:  waitlist,
		Notifier:  notifier,
		Validator: validate,
		Logger:    logger,
	})
	series := NewSeriesService(sessionRepo, sessions, settings, nil, validate, logger)

	waitlist.now = clock.Now
	bookings.now = clock.Now
	sessions.now = clock.Now
	series.now = clock.Now

	return &schedulingFixture{
		store:     store,
		clock:     clock,
		notifier:  notifier,
		settings:  settings,
		conflicts: conflicts,
		waitlist:  waitlist,
		bookings:  bookings,
		sessions:  sessions,
		series:    series,
	}
}

// seedSession stores an active session starting offset after the fixture clock.
func (f *schedulingFixture) seedSession(t *testing.T, capacity int, offset time.Duration) models.ClassSession {
	t.Helper()
	start := f.clock.Now().Add(offset)
	session := models.ClassSession{
		StudioID:    testStudio,
		ClassTypeID: "yoga",
		TeacherID:   "teacher-" + uuid.NewString()[:8],
		LocationID:  "room-" + uuid.NewString()[:8],
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
		Capacity:    capacity,
	}
	require.NoError(t, memSessions{f.store}.Create(context.Background(), nil, &session))
	return session
}

func (f *schedulingFixture) session(t *testing.T, id string) models.ClassSession {
	t.Helper()
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	s, ok := f.store.sessions[id]
	require.True(t, ok)
	return s
}

func (f *schedulingFixture) booking(t *testing.T, id string) models.Booking {
	t.Helper()
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	b, ok := f.store.bookings[id]
	require.True(t, ok)
	return b
}

func (f *schedulingFixture) entry(t *testing.T, id string) (models.WaitlistEntry, bool) {
	t.Helper()
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	e, ok := f.store.entries[id]
	return e, ok
}

func (f *schedulingFixture) activeBookings(sessionID string) int {
	count, _ := memBookings{f.store}.CountActive(context.Background(), nil, sessionID)
	return count
}
