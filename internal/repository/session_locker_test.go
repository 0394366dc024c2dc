package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLockerSerializesSameSession(t *testing.T) {
	locker := NewSessionLocker(nil, time.Second)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithSessionLock(context.Background(), "s1", func(exec sqlx.ExtContext) error {
				assert.Nil(t, exec)
				mu.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, locker.slots)
}

func TestSessionLockerIndependentSessionsRunInParallel(t *testing.T) {
	locker := NewSessionLocker(nil, time.Second)
	inside := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = locker.WithSessionLock(context.Background(), "s1", func(sqlx.ExtContext) error {
			close(inside)
			<-release
			return nil
		})
	}()
	<-inside

	err := locker.WithSessionLock(context.Background(), "s2", func(sqlx.ExtContext) error { return nil })
	close(release)
	assert.NoError(t, err)
}

func TestSessionLockerTimesOut(t *testing.T) {
	locker := NewSessionLocker(nil, 20*time.Millisecond)
	inside := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = locker.WithSessionLock(context.Background(), "s1", func(sqlx.ExtContext) error {
			close(inside)
			<-release
			return nil
		})
	}()
	<-inside

	err := locker.WithSessionLock(context.Background(), "s1", func(sqlx.ExtContext) error {
		t.Fatal("callback must not run without the lock")
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
	<-done
}

func TestSessionLockerCommitsTransaction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	locker := NewSessionLocker(db, time.Second)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM class_sessions WHERE id = \\$1 FOR UPDATE").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s1"))
	mock.ExpectExec("UPDATE bookings").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := locker.WithSessionLock(context.Background(), "s1", func(exec sqlx.ExtContext) error {
		require.NotNil(t, exec)
		_, err := exec.ExecContext(context.Background(), "UPDATE bookings SET status = 'CANCELLED'")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionLockerRollsBackOnCallbackError(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	locker := NewSessionLocker(db, time.Second)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("s1").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s1"))
	mock.ExpectRollback()

	sentinel := errors.New("session full")
	err := locker.WithSessionLock(context.Background(), "s1", func(sqlx.ExtContext) error { return sentinel })
	assert.Same(t, sentinel, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
