package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/omnidesk/backend/internal/models"
	"github.com/omnidesk/backend/internal/store"
)

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock, NewWithPool(mock)
}

func TestClaimAttendance(t *testing.T) {
	t.Parallel()

	dept := "d1"
	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{name: "row still matches", affected: 1},
		{name: "lost race", affected: 0, wantErr: store.ErrStale},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			mock, s := newMock(t)
			mock.ExpectBegin()
			mock.ExpectExec(`UPDATE attendances\s+SET status = 'IN_PROGRESS'`).
				WithArgs("u1", pgxmock.AnyArg(), pgxmock.AnyArg(), "t1", "a1", "OPEN", pgxmock.AnyArg()).
				WillReturnResult(pgxmock.NewResult("UPDATE", tc.affected))
			if tc.wantErr == nil {
				mock.ExpectCommit()
			} else {
				mock.ExpectRollback()
			}

			err := s.WithTx(context.Background(), func(tx store.Tx) error {
				return tx.ClaimAttendance(context.Background(), store.ClaimUpdate{
					TenantID:     "t1",
					AttendanceID: "a1",
					ExpectStatus: models.StatusOpen,
					UserID:       "u1",
					DepartmentID: &dept,
					At:           time.Now(),
				})
			})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected error %v, got %v", tc.wantErr, err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}

func TestInsertAttendanceConflict(t *testing.T) {
	mock, s := newMock(t)
	x := pgxmock.AnyArg()
	mock.ExpectExec(`INSERT INTO attendances`).
		WithArgs("a2", "t1", "l1", x, x, x, "OPEN", "NORMAL", false,
			x, x, x, x, x, x, x, x, x, x).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	var inserted bool
	err := s.View(context.Background(), func(tx store.Tx) error {
		var err error
		inserted, err = tx.InsertAttendance(context.Background(), models.Attendance{
			ID: "a2", TenantID: "t1", LeadID: "l1", Status: models.StatusOpen, Priority: models.PriorityNormal,
		})
		return err
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if inserted {
		t.Fatalf("insert must report the existing active attendance")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteDepartmentRollsBackOnMissingRow(t *testing.T) {
	mock, s := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM department_members`).
		WithArgs("t1", "d1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectQuery(`UPDATE attendances SET department_id = NULL`).
		WithArgs("t1", "d1", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectExec(`DELETE FROM departments`).
		WithArgs("t1", "d1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		ctx := context.Background()
		if err := tx.DeleteMemberships(ctx, "t1", "d1"); err != nil {
			return err
		}
		if _, err := tx.ClearAttendanceDepartment(ctx, "t1", "d1", time.Now()); err != nil {
			return err
		}
		return tx.DeleteDepartment(ctx, "t1", "d1")
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertDepartmentDuplicate(t *testing.T) {
	mock, s := newMock(t)
	mock.ExpectExec(`INSERT INTO departments`).
		WithArgs("d1", "t1", "Sales", "", false, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := s.View(context.Background(), func(tx store.Tx) error {
		return tx.InsertDepartment(context.Background(), models.Department{ID: "d1", TenantID: "t1", Name: "Sales"})
	})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetAttendanceNotFound(t *testing.T) {
	mock, s := newMock(t)
	mock.ExpectQuery(`(?s)SELECT .* FROM attendances a`).
		WithArgs("t1", "missing").
		WillReturnError(pgx.ErrNoRows)

	err := s.View(context.Background(), func(tx store.Tx) error {
		_, err := tx.GetAttendance(context.Background(), "t1", "missing")
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertMemberRequiresTenantDepartment(t *testing.T) {
	mock, s := newMock(t)
	mock.ExpectExec(`INSERT INTO department_members`).
		WithArgs("d-other", "u1", "MEMBER", pgxmock.AnyArg(), "t1").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := s.View(context.Background(), func(tx store.Tx) error {
		return tx.UpsertMember(context.Background(), "t1", models.DepartmentMembership{
			DepartmentID: "d-other", UserID: "u1", Role: models.MembershipMember, CreatedAt: time.Now(),
		})
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestForUpdateReadsLockTheRow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		read func(tx store.Tx) error
		args []any
	}{
		{
			name: "by id",
			read: func(tx store.Tx) error {
				_, err := tx.GetAttendanceForUpdate(context.Background(), "t1", "a1")
				return err
			},
			args: []any{"t1", "a1"},
		},
		{
			name: "active by lead",
			read: func(tx store.Tx) error {
				_, err := tx.GetActiveAttendanceByLeadForUpdate(context.Background(), "t1", "l1")
				return err
			},
			args: []any{"t1", "l1"},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			mock, s := newMock(t)
			mock.ExpectBegin()
			mock.ExpectQuery(`(?s)FROM attendances a\s.*FOR UPDATE OF a\s*$`).
				WithArgs(tc.args...).
				WillReturnError(pgx.ErrNoRows)
			mock.ExpectRollback()

			err := s.WithTx(context.Background(), tc.read)
			if !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}
