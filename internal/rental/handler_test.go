package rental

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/library-rental/internal/auth"
	"github.com/yourusername/library-rental/internal/store"
)

type stubStore struct {
	activeByBook map[int64]*store.Rental
	activeByUser []store.Rental
	returned     []store.Rental
	books        map[int64]store.Book
	created      []*store.Rental
	completed    []int64
	err          error
}

func (s *stubStore) FindActiveRentalByBook(_ context.Context, bookID int64) (*store.Rental, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.activeByBook[bookID], nil
}

func (s *stubStore) CreateRental(_ context.Context, rental *store.Rental) error {
	if s.err != nil {
		return s.err
	}
	rental.ID = int64(len(s.created) + 1)
	s.created = append(s.created, rental)
	return nil
}

func (s *stubStore) FindActiveRentalForUser(_ context.Context, rentalID, userID int64) (*store.Rental, error) {
	if s.err != nil {
		return nil, s.err
	}
	for i := range s.activeByUser {
		r := &s.activeByUser[i]
		if r.ID == rentalID && r.UserID == userID && r.ReturnDate == nil {
			return r, nil
		}
	}
	return nil, nil
}

func (s *stubStore) CompleteRental(_ context.Context, rentalID int64, _ time.Time) error {
	if s.err != nil {
		return s.err
	}
	s.completed = append(s.completed, rentalID)
	return nil
}

func (s *stubStore) ListActiveRentalsByUser(_ context.Context, userID int64) ([]store.Rental, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []store.Rental
	for _, r := range s.activeByUser {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubStore) ListReturnedRentalsByUser(_ context.Context, userID int64) ([]store.Rental, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []store.Rental
	for _, r := range s.returned {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubStore) FindBooksByIDs(_ context.Context, ids []int64) (map[int64]store.Book, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[int64]store.Book, len(ids))
	for _, id := range ids {
		if b, ok := s.books[id]; ok {
			out[id] = b
		}
	}
	return out, nil
}

// newRentalRouter はログイン済み利用者(ID=1)を注入したルーターを返します。
func newRentalRouter(s *stubStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(auth.ContextPrincipalKey, &auth.Principal{ID: 1, Name: "alice"})
		c.Next()
	})
	router.POST("/rental/start", StartHandler(s))
	router.PUT("/rental/return", ReturnHandler(s))
	router.GET("/rental/current", CurrentHandler(s))
	router.GET("/rental/history", HistoryHandler(s))
	return router
}

func doJSON(router *gin.Engine, method, path string, payload any) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestStartHandlerSuccess(t *testing.T) {
	s := &stubStore{}
	router := newRentalRouter(s)

	rec := doJSON(router, http.MethodPost, "/rental/start", gin.H{"bookId": 10})
	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if len(s.created) != 1 {
		t.Fatalf("expected 1 rental, got %d", len(s.created))
	}

	created := s.created[0]
	if created.BookID != 10 || created.UserID != 1 {
		t.Fatalf("unexpected rental: %+v", created)
	}
	// 返却期限は貸出日の7日後
	want := created.RentalDate.Add(7 * 24 * time.Hour)
	if !created.ReturnDeadline.Equal(want) {
		t.Fatalf("unexpected deadline: %v", created.ReturnDeadline)
	}
	if created.ReturnDate != nil {
		t.Fatal("new rental must not have a return date")
	}
}

func TestStartHandlerAlreadyRented(t *testing.T) {
	s := &stubStore{
		activeByBook: map[int64]*store.Rental{10: {ID: 5, BookID: 10, UserID: 2}},
	}
	router := newRentalRouter(s)

	rec := doJSON(router, http.MethodPost, "/rental/start", gin.H{"bookId": 10})
	if rec.Code != http.StatusConflict {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if len(s.created) != 0 {
		t.Fatal("rental must not be created for a rented book")
	}
}

func TestReturnHandlerSuccess(t *testing.T) {
	s := &stubStore{
		activeByUser: []store.Rental{{ID: 3, BookID: 10, UserID: 1}},
	}
	router := newRentalRouter(s)

	rec := doJSON(router, http.MethodPut, "/rental/return", gin.H{"rentalId": 3})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if len(s.completed) != 1 || s.completed[0] != 3 {
		t.Fatalf("unexpected completions: %v", s.completed)
	}
}

func TestReturnHandlerNotOwned(t *testing.T) {
	// 別の利用者(ID=2)の貸出は返却できない
	s := &stubStore{
		activeByUser: []store.Rental{{ID: 3, BookID: 10, UserID: 2}},
	}
	router := newRentalRouter(s)

	rec := doJSON(router, http.MethodPut, "/rental/return", gin.H{"rentalId": 3})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if len(s.completed) != 0 {
		t.Fatal("rental must not be completed")
	}
}

func TestCurrentHandler(t *testing.T) {
	now := time.Now()
	s := &stubStore{
		activeByUser: []store.Rental{
			{ID: 1, BookID: 10, UserID: 1, RentalDate: now, ReturnDeadline: now.Add(7 * 24 * time.Hour)},
		},
		books: map[int64]store.Book{10: {ID: 10, Title: "貸出中の本"}},
	}
	router := newRentalRouter(s)

	req := httptest.NewRequest(http.MethodGet, "/rental/current", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}

	var payload struct {
		RentalBooks []struct {
			RentalID int64  `json:"rentalId"`
			BookID   int64  `json:"bookId"`
			BookName string `json:"bookName"`
		} `json:"rentalBooks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(payload.RentalBooks) != 1 {
		t.Fatalf("unexpected rentalBooks: %+v", payload.RentalBooks)
	}
	if payload.RentalBooks[0].BookName != "貸出中の本" {
		t.Fatalf("unexpected bookName: %s", payload.RentalBooks[0].BookName)
	}
}

func TestHistoryHandler(t *testing.T) {
	now := time.Now()
	returned := now.Add(-time.Hour)
	s := &stubStore{
		returned: []store.Rental{
			{ID: 2, BookID: 11, UserID: 1, RentalDate: now.Add(-48 * time.Hour), ReturnDate: &returned},
		},
		books: map[int64]store.Book{11: {ID: 11, Title: "返却済みの本"}},
	}
	router := newRentalRouter(s)

	req := httptest.NewRequest(http.MethodGet, "/rental/history", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}

	var payload struct {
		RentalHistory []struct {
			RentalID   int64  `json:"rentalId"`
			BookName   string `json:"bookName"`
			ReturnDate string `json:"returnDate"`
		} `json:"rentalHistory"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(payload.RentalHistory) != 1 {
		t.Fatalf("unexpected rentalHistory: %+v", payload.RentalHistory)
	}
	if payload.RentalHistory[0].ReturnDate == "" {
		t.Fatal("expected returnDate in history")
	}
}
