package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"circulation/internal/lending"
	"circulation/internal/models"
	"circulation/internal/services"
)

type CirculationHandler struct {
	svc services.CirculationService
	now func() time.Time
}

func RegisterRoutes(r *gin.Engine, svc services.CirculationService) {
	h := &CirculationHandler{svc: svc, now: time.Now}

	// Librarian endpoints
	r.POST("/items", h.addItem)
	r.PUT("/items/:id/copies", h.setTotalCopies)
	r.POST("/users", h.registerUser)
	r.POST("/loans/sweep", h.applyOverdueFines)
	r.GET("/loans/overdue", h.listOverdue)

	// Borrower endpoints
	r.POST("/items/:id/borrow", h.borrow)
	r.POST("/items/:id/return", h.returnItem)
	r.GET("/users/:id/loans", h.listUserLoans)
	r.GET("/users/:id/fines", h.totalFines)
	r.POST("/users/:id/fines/pay", h.payFine)

	// General endpoints
	r.GET("/items", h.listItems)
	r.GET("/items/:id/waitlist", h.listWaitlist)
}

// statusFor maps service and domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidArgument),
		errors.Is(err, lending.ErrInvalidCopies),
		errors.Is(err, lending.ErrInvalidStrategy),
		errors.Is(err, lending.ErrNegativeAmount):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrItemNotFound),
		errors.Is(err, services.ErrLoanNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrOutstandingFines),
		errors.Is(err, services.ErrOverdueLoans),
		errors.Is(err, services.ErrAlreadyBorrowed),
		errors.Is(err, services.ErrDuplicateUser),
		errors.Is(err, lending.ErrOverpayment),
		errors.Is(err, lending.ErrLoanAlreadyReturned):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respond writes body with status. When the operation completed but a follow-up step such as
// saving or notifying failed, the body is still returned and the failure goes into a Warning
// header.
func respond(c *gin.Context, status int, body any, err error) {
	if err != nil {
		if body == nil || !(errors.Is(err, services.ErrPersistence) || errors.Is(err, services.ErrNotification)) {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		log.Printf("[WARN] %s %s: completed with errors: %v", c.Request.Method, c.FullPath(), err)
		c.Header("Warning", `199 - `+strconv.Quote(err.Error()))
	}
	c.JSON(status, body)
}

func parseID(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + what + " id"})
		return uuid.Nil, false
	}
	return id, true
}

// asOf reads the optional as_of=YYYY-MM-DD query parameter, defaulting to today.
func (h *CirculationHandler) asOf(c *gin.Context) (time.Time, bool) {
	raw := c.Query("as_of")
	if raw == "" {
		return h.now().UTC(), true
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "as_of must be a date like 2006-01-02"})
		return time.Time{}, false
	}
	return t, true
}

// ─── Catalogue ────────────────────────────────────────────────────────────────

type addItemRequest struct {
	Type        string `json:"type" binding:"required"`
	Title       string `json:"title" binding:"required"`
	Creator     string `json:"creator"`
	TotalCopies int    `json:"total_copies" binding:"required,min=1"`
}

func (h *CirculationHandler) addItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.svc.AddItem(c.Request.Context(), models.ItemCategory(req.Type), req.Title, req.Creator, req.TotalCopies)
	if item == nil {
		respond(c, http.StatusCreated, nil, err)
		return
	}
	respond(c, http.StatusCreated, item, err)
}

type setTotalCopiesRequest struct {
	TotalCopies int `json:"total_copies" binding:"required,min=1"`
}

func (h *CirculationHandler) setTotalCopies(c *gin.Context) {
	itemID, ok := parseID(c, "item")
	if !ok {
		return
	}
	var req setTotalCopiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.svc.SetTotalCopies(c.Request.Context(), itemID, req.TotalCopies)
	if item == nil {
		respond(c, http.StatusOK, nil, err)
		return
	}
	respond(c, http.StatusOK, item, err)
}

func (h *CirculationHandler) listItems(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.ListItems())
}

func (h *CirculationHandler) listWaitlist(c *gin.Context) {
	itemID, ok := parseID(c, "item")
	if !ok {
		return
	}
	entries, err := h.svc.ListWaitlist(itemID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// ─── Users ────────────────────────────────────────────────────────────────────

type registerUserRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

func (h *CirculationHandler) registerUser(c *gin.Context) {
	var req registerUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.svc.RegisterUser(c.Request.Context(), req.Name, req.Email)
	if user == nil {
		respond(c, http.StatusCreated, nil, err)
		return
	}
	respond(c, http.StatusCreated, user, err)
}

func (h *CirculationHandler) listUserLoans(c *gin.Context) {
	userID, ok := parseID(c, "user")
	if !ok {
		return
	}
	loans, err := h.svc.GetBorrowRecordsForUser(userID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, loans)
}

func (h *CirculationHandler) totalFines(c *gin.Context) {
	userID, ok := parseID(c, "user")
	if !ok {
		return
	}
	asOf, ok := h.asOf(c)
	if !ok {
		return
	}
	user, err := h.svc.GetUser(userID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	total, err := h.svc.CalculateTotalFines(userID, asOf)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":      userID,
		"as_of":        asOf.Format(time.DateOnly),
		"open_fines":   total,
		"fine_balance": user.FineBalance,
	})
}

type payFineRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *CirculationHandler) payFine(c *gin.Context) {
	userID, ok := parseID(c, "user")
	if !ok {
		return
	}
	var req payFineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.svc.PayFine(c.Request.Context(), userID, req.Amount)
	if user == nil {
		respond(c, http.StatusOK, nil, err)
		return
	}
	respond(c, http.StatusOK, user, err)
}

// ─── Circulation ──────────────────────────────────────────────────────────────

type loanRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
}

func (h *CirculationHandler) bindLoanRequest(c *gin.Context) (userID, itemID uuid.UUID, ok bool) {
	if itemID, ok = parseID(c, "item"); !ok {
		return
	}
	var req loanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return uuid.Nil, uuid.Nil, false
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return uuid.Nil, uuid.Nil, false
	}
	return userID, itemID, true
}

func (h *CirculationHandler) borrow(c *gin.Context) {
	userID, itemID, ok := h.bindLoanRequest(c)
	if !ok {
		return
	}

	res, err := h.svc.Borrow(c.Request.Context(), userID, itemID)
	if res == nil {
		respond(c, http.StatusCreated, nil, err)
		return
	}
	status := http.StatusCreated
	if res.Outcome == services.OutcomeQueued {
		status = http.StatusAccepted
	}
	respond(c, status, res, err)
}

func (h *CirculationHandler) returnItem(c *gin.Context) {
	userID, itemID, ok := h.bindLoanRequest(c)
	if !ok {
		return
	}

	res, err := h.svc.ReturnItem(c.Request.Context(), userID, itemID)
	if res == nil {
		respond(c, http.StatusOK, nil, err)
		return
	}
	respond(c, http.StatusOK, res, err)
}

func (h *CirculationHandler) listOverdue(c *gin.Context) {
	asOf, ok := h.asOf(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.svc.GetOverdueItems(asOf))
}

func (h *CirculationHandler) applyOverdueFines(c *gin.Context) {
	asOf, ok := h.asOf(c)
	if !ok {
		return
	}
	report, err := h.svc.ApplyOverdueFines(c.Request.Context(), asOf)
	if err != nil && !errors.Is(err, services.ErrPersistence) {
		// per-loan failures are counted in the report
		log.Printf("[WARN] applyOverdueFines: %v", err)
		err = nil
	}
	respond(c, http.StatusOK, report, err)
}
