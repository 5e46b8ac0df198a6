// Package store は利用者・蔵書・貸出レコードの永続化を提供します。
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrEmailTaken は登録済みメールアドレスでの重複登録を表します。
var ErrEmailTaken = errors.New("email is already registered")

// Store は GORM を介してデータベースへアクセスします。
type Store struct {
	db *gorm.DB
}

// New は指定パスの SQLite データベースを開き、スキーマを反映した Store を返します。
// path に ":memory:" を渡すとインメモリデータベースを使用します（テスト用）。
func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		// WAL と busy_timeout で同時アクセス時の安定性を確保する
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		// 一意制約違反を gorm.ErrDuplicatedKey に変換する
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("failed to run database migration: %w", err)
	}

	return &Store{db: db}, nil
}

// FindUserByEmail はメールアドレスで利用者を検索します。存在しない場合は (nil, nil) を返します。
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// FindUserByID はIDで利用者を検索します。存在しない場合は (nil, nil) を返します。
func (s *Store) FindUserByID(ctx context.Context, id int64) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// CreateUser は利用者を登録します。メールアドレスが重複している場合は ErrEmailTaken を返します。
func (s *Store) CreateUser(ctx context.Context, email, name string, password, salt []byte) (*User, error) {
	user := &User{
		Email:    email,
		Name:     name,
		Password: password,
		Salt:     salt,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return user, nil
}

// CreateBook は蔵書を登録します。
func (s *Store) CreateBook(ctx context.Context, book *Book) error {
	return s.db.WithContext(ctx).Create(book).Error
}

// FindBookByID はIDで蔵書を検索します。存在しない場合は (nil, nil) を返します。
func (s *Store) FindBookByID(ctx context.Context, id int64) (*Book, error) {
	var book Book
	err := s.db.WithContext(ctx).First(&book, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &book, nil
}

// UpdateBook は蔵書情報を更新します。ゼロ値も含めて全フィールドを書き換えます。
func (s *Store) UpdateBook(ctx context.Context, book *Book) error {
	return s.db.WithContext(ctx).Model(&Book{}).Where("id = ?", book.ID).
		Updates(map[string]any{
			"isbn13":       book.ISBN13,
			"title":        book.Title,
			"author":       book.Author,
			"publish_date": book.PublishDate,
		}).Error
}

// ListBooks はID昇順で蔵書の一部を取得します。
func (s *Store) ListBooks(ctx context.Context, offset, limit int) ([]Book, error) {
	var books []Book
	err := s.db.WithContext(ctx).Order("id asc").Offset(offset).Limit(limit).Find(&books).Error
	return books, err
}

// CountBooks は蔵書の総数を返します。
func (s *Store) CountBooks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Book{}).Count(&count).Error
	return count, err
}

// FindBooksByIDs は指定IDの蔵書をまとめて取得し、IDをキーとするマップで返します。
func (s *Store) FindBooksByIDs(ctx context.Context, ids []int64) (map[int64]Book, error) {
	result := make(map[int64]Book, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var books []Book
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&books).Error; err != nil {
		return nil, err
	}
	for _, b := range books {
		result[b.ID] = b
	}
	return result, nil
}

// FindUsersByIDs は指定IDの利用者をまとめて取得し、IDをキーとするマップで返します。
func (s *Store) FindUsersByIDs(ctx context.Context, ids []int64) (map[int64]User, error) {
	result := make(map[int64]User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var users []User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		result[u.ID] = u
	}
	return result, nil
}

// ActiveRentalBookIDs は貸出中の書籍IDの集合を返します。
func (s *Store) ActiveRentalBookIDs(ctx context.Context) (map[int64]struct{}, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&Rental{}).
		Where("return_date IS NULL").Pluck("book_id", &ids).Error
	if err != nil {
		return nil, err
	}
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// FindActiveRentalByBook は指定書籍の貸出中レコードを返します。存在しない場合は (nil, nil) を返します。
func (s *Store) FindActiveRentalByBook(ctx context.Context, bookID int64) (*Rental, error) {
	var rental Rental
	err := s.db.WithContext(ctx).
		Where("book_id = ? AND return_date IS NULL", bookID).First(&rental).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rental, nil
}

// CreateRental は貸出レコードを作成します。
func (s *Store) CreateRental(ctx context.Context, rental *Rental) error {
	return s.db.WithContext(ctx).Create(rental).Error
}

// FindActiveRentalForUser は指定利用者が借用中の貸出レコードをIDで検索します。
// 他の利用者のレコードや返却済みレコードは対象外です。
func (s *Store) FindActiveRentalForUser(ctx context.Context, rentalID, userID int64) (*Rental, error) {
	var rental Rental
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ? AND return_date IS NULL", rentalID, userID).
		First(&rental).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rental, nil
}

// CompleteRental は貸出レコードに返却日時を記録します。
func (s *Store) CompleteRental(ctx context.Context, rentalID int64, at time.Time) error {
	return s.db.WithContext(ctx).Model(&Rental{}).
		Where("id = ?", rentalID).Update("return_date", at).Error
}

// ListActiveRentalsByUser は指定利用者の貸出中レコード一覧を返します。
func (s *Store) ListActiveRentalsByUser(ctx context.Context, userID int64) ([]Rental, error) {
	var rentals []Rental
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND return_date IS NULL", userID).Find(&rentals).Error
	return rentals, err
}

// ListReturnedRentalsByUser は指定利用者の返却済みレコード一覧を返します。
func (s *Store) ListReturnedRentalsByUser(ctx context.Context, userID int64) ([]Rental, error) {
	var rentals []Rental
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND return_date IS NOT NULL", userID).Find(&rentals).Error
	return rentals, err
}

// ListActiveRentals は全利用者の貸出中レコード一覧を返します。
func (s *Store) ListActiveRentals(ctx context.Context) ([]Rental, error) {
	var rentals []Rental
	err := s.db.WithContext(ctx).Where("return_date IS NULL").Find(&rentals).Error
	return rentals, err
}

// ListOverdueRentals は返却期限を過ぎた貸出中レコード一覧を返します。
func (s *Store) ListOverdueRentals(ctx context.Context, now time.Time) ([]Rental, error) {
	var rentals []Rental
	err := s.db.WithContext(ctx).
		Where("return_date IS NULL AND return_deadline < ?", now).Find(&rentals).Error
	return rentals, err
}
