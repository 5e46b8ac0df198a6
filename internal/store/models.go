package store

import "time"

// User は利用者アカウントを表します。
// Password には scrypt で導出した鍵（192バイト）を、Salt には登録時に
// 生成した64バイトの乱数を保持します。平文パスワードは保存しません。
type User struct {
	ID       int64  `gorm:"primaryKey" json:"id"`
	Email    string `gorm:"uniqueIndex;not null;size:255" json:"email"`
	Name     string `gorm:"not null;size:255" json:"name"`
	Password []byte `gorm:"not null" json:"-"`
	Salt     []byte `gorm:"not null" json:"-"`
	IsAdmin  bool   `gorm:"not null;default:false" json:"isAdmin"`
}

// TableName は User のテーブル名を返します。
func (User) TableName() string { return "users" }

// Book は蔵書を表します。
type Book struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	ISBN13      string    `gorm:"column:isbn13;size:13" json:"isbn13"`
	Title       string    `gorm:"not null;size:255" json:"title"`
	Author      string    `gorm:"size:255" json:"author"`
	PublishDate time.Time `json:"publishDate"`
}

// TableName は Book のテーブル名を返します。
func (Book) TableName() string { return "books" }

// Rental は貸出レコードを表します。ReturnDate が nil のレコードが貸出中です。
type Rental struct {
	ID             int64      `gorm:"primaryKey" json:"id"`
	BookID         int64      `gorm:"index;not null" json:"bookId"`
	UserID         int64      `gorm:"index;not null" json:"userId"`
	RentalDate     time.Time  `gorm:"not null" json:"rentalDate"`
	ReturnDeadline time.Time  `gorm:"not null" json:"returnDeadline"`
	ReturnDate     *time.Time `json:"returnDate"`
}

// TableName は Rental のテーブル名を返します。
func (Rental) TableName() string { return "rental" }

// AllModels はマイグレーション対象のモデル一覧を返します。
func AllModels() []any {
	return []any{&User{}, &Book{}, &Rental{}}
}
