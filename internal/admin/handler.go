// Package admin は管理者向けの蔵書管理・貸出状況ハンドラーを提供します。
// 各ハンドラーは auth.Gate の RequireAdmin を通過した後にのみ実行されます。
package admin

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/library-rental/internal/book"
	"github.com/yourusername/library-rental/internal/storage"
	"github.com/yourusername/library-rental/internal/store"
)

// Store は管理者ハンドラーが必要とするストア操作です。
type Store interface {
	CreateBook(ctx context.Context, b *store.Book) error
	FindBookByID(ctx context.Context, id int64) (*store.Book, error)
	UpdateBook(ctx context.Context, b *store.Book) error
	ListActiveRentals(ctx context.Context) ([]store.Rental, error)
	ListActiveRentalsByUser(ctx context.Context, userID int64) ([]store.Rental, error)
	FindBooksByIDs(ctx context.Context, ids []int64) (map[int64]store.Book, error)
	FindUsersByIDs(ctx context.Context, ids []int64) (map[int64]store.User, error)
	FindUserByID(ctx context.Context, id int64) (*store.User, error)
}

type bookCreateRequest struct {
	ISBN13      string    `json:"isbn13"`
	Title       string    `json:"title" binding:"required"`
	Author      string    `json:"author"`
	PublishDate time.Time `json:"publishDate"`
}

// BookCreateHandler は POST /admin/book/create のハンドラーを返します。
func BookCreateHandler(s Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req bookCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"result": "NG", "error": err.Error()})
			return
		}

		b := &store.Book{
			ISBN13:      req.ISBN13,
			Title:       req.Title,
			Author:      req.Author,
			PublishDate: req.PublishDate,
		}
		if err := s.CreateBook(c.Request.Context(), b); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"result": "NG", "error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"result": "OK"})
	}
}

type bookUpdateRequest struct {
	BookID      int64     `json:"bookId" binding:"required"`
	ISBN13      string    `json:"isbn13"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	PublishDate time.Time `json:"publishDate"`
}

// BookUpdateHandler は PUT /admin/book/update のハンドラーを返します。
func BookUpdateHandler(s Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req bookUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"result": "NG", "error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		existing, err := s.FindBookByID(ctx, req.BookID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"result": "NG", "error": err.Error()})
			return
		}
		if existing == nil {
			c.JSON(http.StatusNotFound, gin.H{"result": "NG", "error": "Book not found"})
			return
		}

		b := &store.Book{
			ID:          req.BookID,
			ISBN13:      req.ISBN13,
			Title:       req.Title,
			Author:      req.Author,
			PublishDate: req.PublishDate,
		}
		if err := s.UpdateBook(ctx, b); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"result": "NG", "error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"result": "OK"})
	}
}

// RentalCurrentHandler は GET /admin/rental/current のハンドラーを返します。
// 全利用者の貸出中一覧を、利用者名・書名を補って返します。
func RentalCurrentHandler(s Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		rentals, err := s.ListActiveRentals(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rental books"})
			return
		}

		bookIDs := make([]int64, 0, len(rentals))
		userIDs := make([]int64, 0, len(rentals))
		for _, r := range rentals {
			bookIDs = append(bookIDs, r.BookID)
			userIDs = append(userIDs, r.UserID)
		}

		books, err := s.FindBooksByIDs(ctx, bookIDs)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rental books"})
			return
		}
		users, err := s.FindUsersByIDs(ctx, userIDs)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rental books"})
			return
		}

		formatted := make([]gin.H, 0, len(rentals))
		for _, r := range rentals {
			formatted = append(formatted, gin.H{
				"rentalId":       r.ID,
				"userId":         r.UserID,
				"userName":       userName(users, r.UserID),
				"bookId":         r.BookID,
				"bookName":       bookName(books, r.BookID),
				"rentalDate":     r.RentalDate,
				"returnDeadline": r.ReturnDeadline,
			})
		}

		c.JSON(http.StatusOK, gin.H{"rentalBooks": formatted})
	}
}

// RentalCurrentByUserHandler は GET /admin/rental/current/:uid のハンドラーを返します。
func RentalCurrentByUserHandler(s Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := strconv.ParseInt(c.Param("uid"), 10, 64)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"message": "指定されたユーザが見つかりません"})
			return
		}

		ctx := c.Request.Context()
		user, err := s.FindUserByID(ctx, uid)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "貸出中書籍の取得中にエラーが発生しました"})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"message": "指定されたユーザが見つかりません"})
			return
		}

		rentals, err := s.ListActiveRentalsByUser(ctx, uid)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "貸出中書籍の取得中にエラーが発生しました"})
			return
		}

		bookIDs := make([]int64, 0, len(rentals))
		for _, r := range rentals {
			bookIDs = append(bookIDs, r.BookID)
		}
		books, err := s.FindBooksByIDs(ctx, bookIDs)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "貸出中書籍の取得中にエラーが発生しました"})
			return
		}

		formatted := make([]gin.H, 0, len(rentals))
		for _, r := range rentals {
			formatted = append(formatted, gin.H{
				"rentalId":       r.ID,
				"bookId":         r.BookID,
				"bookName":       bookName(books, r.BookID),
				"rentalDate":     r.RentalDate,
				"returnDeadline": r.ReturnDeadline,
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"userId":      user.ID,
			"userName":    user.Name,
			"rentalBooks": formatted,
		})
	}
}

// CoverUploadHandler は POST /admin/book/cover のハンドラーを返します。
// PNG/JPEG の書影画像のみ受け付けます。
func CoverUploadHandler(s Store, files storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookID, err := strconv.ParseInt(c.PostForm("bookId"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"result": "NG", "error": "bookId を指定してください"})
			return
		}

		header, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"result": "NG", "error": "書影画像を選択してください"})
			return
		}

		file, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"result": "NG", "error": "書影画像を読み込めません"})
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"result": "NG", "error": "書影画像を読み込めません"})
			return
		}

		mtype := mimetype.Detect(data)
		if !mtype.Is("image/png") && !mtype.Is("image/jpeg") {
			c.JSON(http.StatusBadRequest, gin.H{"result": "NG", "error": "対応していない画像形式です"})
			return
		}

		ctx := c.Request.Context()
		existing, err := s.FindBookByID(ctx, bookID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"result": "NG", "error": "Internal server error."})
			return
		}
		if existing == nil {
			c.JSON(http.StatusNotFound, gin.H{"result": "NG", "error": "Book not found"})
			return
		}

		if err := files.Save(ctx, book.CoverName(bookID), data); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"result": "NG", "error": "Internal server error."})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"result": "OK"})
	}
}

func userName(users map[int64]store.User, id int64) string {
	if u, ok := users[id]; ok {
		return u.Name
	}
	return "Unknown"
}

func bookName(books map[int64]store.Book, id int64) string {
	if b, ok := books[id]; ok {
		return b.Title
	}
	return "Unknown"
}
