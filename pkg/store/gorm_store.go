package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"librarydesk/pkg/domain"
)

const migrateLockID int64 = 51507692

// GormStore implements Store using GORM over Postgres or SQLite.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB named by databaseURL and runs auto-migrations.
// Accepted forms: postgres://..., postgresql://..., sqlite://path/to/file.db.
func NewGormStore(databaseURL string) (*GormStore, error) {
	dialector, isPostgres, err := openDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	migrate := func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&BookModel{}, &MemberModel{}, &TransactionModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}
	if isPostgres {
		err = withMigrationLock(db, migrate)
	} else {
		if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
		err = migrate(db)
	}
	if err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func openDialector(databaseURL string) (gorm.Dialector, bool, error) {
	url := strings.TrimSpace(databaseURL)
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return postgres.Open(url), true, nil
	case strings.HasPrefix(url, "sqlite://"):
		path := strings.TrimPrefix(url, "sqlite://")
		if path == "" {
			return nil, false, errors.New("sqlite path required")
		}
		// Immediate transactions take the write lock at BEGIN, so concurrent
		// issues queue on the busy timeout instead of failing the lock upgrade.
		dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate", path)
		return sqlite.Open(dsn), false, nil
	default:
		return nil, false, fmt.Errorf("unsupported database URL %q", databaseURL)
	}
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveBook stores or updates a book.
func (s *GormStore) SaveBook(b domain.Book) error {
	model := bookToModel(b)
	now := time.Now().UTC()
	model.CreatedAt = now
	model.UpdatedAt = now
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "author", "edition", "language", "volume", "section", "category", "shelf_number", "copies", "updated_at"}),
	}).Create(&model).Error
}

// ListBooks returns all books ordered by created_at.
func (s *GormStore) ListBooks() ([]domain.Book, error) {
	var models []BookModel
	if err := s.db.Order("created_at ASC").Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

// GetBook retrieves a book.
func (s *GormStore) GetBook(id string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// DeleteBook removes a book that has no copies on loan.
func (s *GormStore) DeleteBook(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		open, err := countOpen(tx, "book_id = ?", id)
		if err != nil {
			return err
		}
		if open > 0 {
			return domain.ErrBookOnLoan
		}
		res := tx.Delete(&BookModel{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrBookNotFound
		}
		return nil
	})
}

// SaveMember stores or updates a member.
func (s *GormStore) SaveMember(m domain.Member) error {
	model := memberToModel(m)
	now := time.Now().UTC()
	model.CreatedAt = now
	model.UpdatedAt = now
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "father_name", "address", "email", "phone", "updated_at"}),
	}).Create(&model).Error
}

// ListMembers returns all members ordered by created_at.
func (s *GormStore) ListMembers() ([]domain.Member, error) {
	var models []MemberModel
	if err := s.db.Order("created_at ASC").Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Member, 0, len(models))
	for _, m := range models {
		res = append(res, memberFromModel(m))
	}
	return res, nil
}

// GetMember retrieves a member.
func (s *GormStore) GetMember(id string) (domain.Member, bool, error) {
	var model MemberModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Member{}, false, nil
		}
		return domain.Member{}, false, err
	}
	return memberFromModel(model), true, nil
}

// DeleteMember removes a member with no books on loan.
func (s *GormStore) DeleteMember(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		open, err := countOpen(tx, "member_id = ?", id)
		if err != nil {
			return err
		}
		if open > 0 {
			return domain.ErrMemberHasLoans
		}
		res := tx.Delete(&MemberModel{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrMemberNotFound
		}
		return nil
	})
}

// IssueBook records the loan and takes one copy off the shelf in one transaction.
// The copy decrement is conditional so two concurrent issues cannot take the last copy twice.
func (s *GormStore) IssueBook(t domain.Transaction) (domain.Transaction, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var book BookModel
		if err := tx.First(&book, "id = ?", t.BookID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrBookNotFound
			}
			return err
		}
		var members int64
		if err := tx.Model(&MemberModel{}).Where("id = ?", t.MemberID).Count(&members).Error; err != nil {
			return err
		}
		if members == 0 {
			return domain.ErrMemberNotFound
		}
		res := tx.Model(&BookModel{}).
			Where("id = ? AND copies > 0", t.BookID).
			Updates(map[string]any{
				"copies":     gorm.Expr("copies - 1"),
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNoCopiesAvailable
		}
		t.BookTitle = book.Title
		t.Status = domain.StatusIssued
		t.ReturnDate = nil
		t.Fine = 0
		model := transactionToModel(t)
		return tx.Create(&model).Error
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	return t, nil
}

// ReturnBook closes the oldest matching open loan, prices it, and restocks the copy.
func (s *GormStore) ReturnBook(req ReturnRequest) (domain.Transaction, error) {
	var closed domain.Transaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		q := tx.Where("book_id = ? AND status = ?", req.BookID, string(domain.StatusIssued))
		if req.MemberID != "" {
			q = q.Where("member_id = ?", req.MemberID)
		}
		var model TransactionModel
		if err := q.Order("issue_date ASC").First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrLoanNotFound
			}
			return err
		}
		closed = transactionFromModel(model)
		returnedAt := req.ReturnedAt.UTC()
		closed.Fine = assess(req.Assess, closed, returnedAt)
		closed.Status = domain.StatusReturned
		closed.ReturnDate = &returnedAt

		res := tx.Model(&TransactionModel{}).
			Where("id = ? AND status = ?", model.ID, string(domain.StatusIssued)).
			Updates(map[string]any{
				"status":      string(domain.StatusReturned),
				"return_date": returnedAt,
				"fine":        closed.Fine,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrLoanNotFound
		}
		return tx.Model(&BookModel{}).
			Where("id = ?", model.BookID).
			Updates(map[string]any{
				"copies":     gorm.Expr("copies + 1"),
				"updated_at": time.Now().UTC(),
			}).Error
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	return closed, nil
}

// ListTransactions returns matching transactions ordered by issue date.
func (s *GormStore) ListTransactions(f TransactionFilter) ([]domain.Transaction, error) {
	q := s.db.Model(&TransactionModel{})
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.BookID != "" {
		q = q.Where("book_id = ?", f.BookID)
	}
	if f.MemberID != "" {
		q = q.Where("member_id = ?", f.MemberID)
	}
	var models []TransactionModel
	if err := q.Order("issue_date ASC").Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Transaction, 0, len(models))
	for _, m := range models {
		res = append(res, transactionFromModel(m))
	}
	return res, nil
}

func countOpen(tx *gorm.DB, cond string, arg string) (int64, error) {
	var n int64
	err := tx.Model(&TransactionModel{}).
		Where("status = ?", string(domain.StatusIssued)).
		Where(cond, arg).
		Count(&n).Error
	return n, err
}
