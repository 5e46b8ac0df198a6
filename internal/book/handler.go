// Package book は書籍一覧・詳細のハンドラーを提供します。
package book

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/library-rental/internal/storage"
	"github.com/yourusername/library-rental/internal/store"
)

// 1ページあたりの書籍数
const itemsPerPage = 4

// Store は書籍ハンドラーが必要とするストア操作です。
type Store interface {
	ListBooks(ctx context.Context, offset, limit int) ([]store.Book, error)
	CountBooks(ctx context.Context) (int64, error)
	ActiveRentalBookIDs(ctx context.Context) (map[int64]struct{}, error)
	FindBookByID(ctx context.Context, id int64) (*store.Book, error)
}

// ListHandler は GET /book/list のハンドラーを返します。
// 貸出中の書籍には isRental フラグを立てて返します。
func ListHandler(s Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := strconv.Atoi(c.Query("page"))
		if err != nil || page < 1 {
			page = 1
		}
		offset := (page - 1) * itemsPerPage

		ctx := c.Request.Context()
		books, err := s.ListBooks(ctx, offset, itemsPerPage)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "書籍一覧の取得中にエラーが発生しました"})
			return
		}

		total, err := s.CountBooks(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "書籍一覧の取得中にエラーが発生しました"})
			return
		}
		maxPage := (total + itemsPerPage - 1) / itemsPerPage

		rented, err := s.ActiveRentalBookIDs(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "書籍一覧の取得中にエラーが発生しました"})
			return
		}

		formatted := make([]gin.H, 0, len(books))
		for _, b := range books {
			_, isRental := rented[b.ID]
			formatted = append(formatted, gin.H{
				"id":       b.ID,
				"title":    b.Title,
				"author":   b.Author,
				"isRental": isRental,
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"books":   formatted,
			"maxPage": maxPage,
		})
	}
}

// DetailHandler は GET /book/detail/:id のハンドラーを返します。
func DetailHandler(s Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"message": "書籍が見つかりません"})
			return
		}

		book, err := s.FindBookByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "書籍詳細の取得中にエラーが発生しました"})
			return
		}
		if book == nil {
			c.JSON(http.StatusNotFound, gin.H{"message": "書籍が見つかりません"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"id":          book.ID,
			"isbn13":      book.ISBN13,
			"title":       book.Title,
			"author":      book.Author,
			"publishDate": book.PublishDate,
		})
	}
}

// CoverHandler は GET /book/cover/:id のハンドラーを返します。
// 保存済みの書影画像をそのまま返します。
func CoverHandler(files storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"message": "書影が見つかりません"})
			return
		}

		data, err := files.Load(c.Request.Context(), CoverName(id))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"message": "書影が見つかりません"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"message": "書影の取得中にエラーが発生しました"})
			return
		}

		c.Data(http.StatusOK, mimetype.Detect(data).String(), data)
	}
}

// CoverName は書籍IDに対応する書影の保存名を返します。
func CoverName(bookID int64) string {
	return "cover_" + strconv.FormatInt(bookID, 10)
}
