// Package rental は貸出・返却のハンドラーを提供します。
package rental

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/library-rental/internal/auth"
	"github.com/yourusername/library-rental/internal/store"
)

// 返却期限は貸出日から7日後
const rentalPeriod = 7 * 24 * time.Hour

// Store は貸出ハンドラーが必要とするストア操作です。
type Store interface {
	FindActiveRentalByBook(ctx context.Context, bookID int64) (*store.Rental, error)
	CreateRental(ctx context.Context, rental *store.Rental) error
	FindActiveRentalForUser(ctx context.Context, rentalID, userID int64) (*store.Rental, error)
	CompleteRental(ctx context.Context, rentalID int64, at time.Time) error
	ListActiveRentalsByUser(ctx context.Context, userID int64) ([]store.Rental, error)
	ListReturnedRentalsByUser(ctx context.Context, userID int64) ([]store.Rental, error)
	FindBooksByIDs(ctx context.Context, ids []int64) (map[int64]store.Book, error)
}

type startRequest struct {
	BookID int64 `json:"bookId" binding:"required"`
}

// StartHandler は POST /rental/start のハンドラーを返します。
// 対象書籍が貸出中の場合は 409 を返します。
func StartHandler(s Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := auth.CurrentPrincipal(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "NG"})
			return
		}

		var req startRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "貸出処理中にエラーが発生しました。"})
			return
		}

		ctx := c.Request.Context()
		existing, err := s.FindActiveRentalByBook(ctx, req.BookID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "貸出処理中にエラーが発生しました。"})
			return
		}
		if existing != nil {
			// 本が貸出中
			c.JSON(http.StatusConflict, gin.H{"message": "貸出中のため失敗"})
			return
		}

		now := time.Now()
		rental := &store.Rental{
			BookID:         req.BookID,
			UserID:         principal.ID,
			RentalDate:     now,
			ReturnDeadline: now.Add(rentalPeriod),
		}
		if err := s.CreateRental(ctx, rental); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "貸出処理中にエラーが発生しました。"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"message": "貸出成功",
			"rental": gin.H{
				"id":             rental.ID,
				"bookId":         rental.BookID,
				"rentalDate":     rental.RentalDate,
				"returnDeadline": rental.ReturnDeadline,
				"returnDate":     rental.ReturnDate,
			},
		})
	}
}

type returnRequest struct {
	RentalID int64 `json:"rentalId" binding:"required"`
}

// ReturnHandler は PUT /rental/return のハンドラーを返します。
// 自分が借用中のレコードのみ返却できます。
func ReturnHandler(s Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := auth.CurrentPrincipal(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"result": "NG"})
			return
		}

		var req returnRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"result": "NG"})
			return
		}

		ctx := c.Request.Context()
		rental, err := s.FindActiveRentalForUser(ctx, req.RentalID, principal.ID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"result": "NG", "message": "書籍の返却中にエラーが発生しました"})
			return
		}
		if rental == nil {
			c.JSON(http.StatusNotFound, gin.H{"result": "NG"})
			return
		}

		if err := s.CompleteRental(ctx, rental.ID, time.Now()); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"result": "NG", "message": "書籍の返却中にエラーが発生しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"result": "OK"})
	}
}

// CurrentHandler は GET /rental/current のハンドラーを返します。
// ログイン中の利用者が借用している書籍の一覧を返します。
func CurrentHandler(s Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := auth.CurrentPrincipal(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "NG"})
			return
		}

		ctx := c.Request.Context()
		rentals, err := s.ListActiveRentalsByUser(ctx, principal.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "借用書籍一覧の取得中にエラーが発生しました"})
			return
		}

		books, err := s.FindBooksByIDs(ctx, bookIDs(rentals))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "借用書籍一覧の取得中にエラーが発生しました"})
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

		c.JSON(http.StatusOK, gin.H{"rentalBooks": formatted})
	}
}

// HistoryHandler は GET /rental/history のハンドラーを返します。
// 返却済みの借用履歴を返します。
func HistoryHandler(s Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := auth.CurrentPrincipal(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "NG"})
			return
		}

		ctx := c.Request.Context()
		rentals, err := s.ListReturnedRentalsByUser(ctx, principal.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "借用書籍の履歴の取得中にエラーが発生しました"})
			return
		}

		books, err := s.FindBooksByIDs(ctx, bookIDs(rentals))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "借用書籍の履歴の取得中にエラーが発生しました"})
			return
		}

		formatted := make([]gin.H, 0, len(rentals))
		for _, r := range rentals {
			formatted = append(formatted, gin.H{
				"rentalId":   r.ID,
				"bookId":     r.BookID,
				"bookName":   bookName(books, r.BookID),
				"rentalDate": r.RentalDate,
				"returnDate": r.ReturnDate,
			})
		}

		c.JSON(http.StatusOK, gin.H{"rentalHistory": formatted})
	}
}

func bookIDs(rentals []store.Rental) []int64 {
	ids := make([]int64, 0, len(rentals))
	for _, r := range rentals {
		ids = append(ids, r.BookID)
	}
	return ids
}

func bookName(books map[int64]store.Book, id int64) string {
	if b, ok := books[id]; ok {
		return b.Title
	}
	return "Unknown"
}
