package httpapi

import (
	"net/http"
	"strings"

	"kasirpos/backend/internal/apperror"
	"kasirpos/backend/internal/domain"
)

func respond(w http.ResponseWriter, r *http.Request, status int, message string, data any, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, status, message, data)
}

func (a *API) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sale, err := a.service.CreateSale(r.Context(), req)
	respond(w, r, http.StatusCreated, "sale created", sale, err)
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	from, err := parseTimeParam(query.Get("from"), false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := parseTimeParam(query.Get("to"), true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sales, err := a.service.ListSales(r.Context(), domain.SaleFilter{
		CustomerID: strings.TrimSpace(query.Get("customer")),
		Status:     strings.TrimSpace(query.Get("status")),
		From:       from,
		To:         to,
		Limit:      parsePositiveLimit(query.Get("limit"), 100, 500),
	})
	respond(w, r, http.StatusOK, "sales", sales, err)
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSale(r.Context(), r.PathValue("id"))
	respond(w, r, http.StatusOK, "sale", sale, err)
}

func (a *API) handleDeleteSale(w http.ResponseWriter, r *http.Request) {
	err := a.service.DeleteSale(r.Context(), r.PathValue("id"))
	respond(w, r, http.StatusOK, "sale deleted", nil, err)
}

func (a *API) handleSaleReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := a.service.BuildReceipt(r.Context(), r.PathValue("id"))
	respond(w, r, http.StatusOK, "receipt", receipt, err)
}

func (a *API) handleCreateReturn(w http.ResponseWriter, r *http.Request) {
	var req domain.ReturnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := a.service.CreateReturn(r.Context(), req)
	respond(w, r, http.StatusCreated, "return processed", summary, err)
}

func (a *API) handleInvoiceCounter(w http.ResponseWriter, r *http.Request) {
	status, err := a.service.InvoiceCounterStatus(r.Context())
	respond(w, r, http.StatusOK, "invoice counter", status, err)
}

func (a *API) handleInitInvoiceCounter(w http.ResponseWriter, r *http.Request) {
	result, err := a.service.InitInvoiceCounter(r.Context())
	respond(w, r, http.StatusOK, "invoice counter initialized", result, err)
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context(), strings.TrimSpace(r.URL.Query().Get("category")))
	respond(w, r, http.StatusOK, "products", products, err)
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	respond(w, r, http.StatusCreated, "product created", product, err)
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), r.PathValue("id"))
	respond(w, r, http.StatusOK, "product", product, err)
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), r.PathValue("id"), req)
	respond(w, r, http.StatusOK, "product updated", product, err)
}

func (a *API) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := a.service.ListCustomers(r.Context())
	respond(w, r, http.StatusOK, "customers", customers, err)
}

func (a *API) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	customer, err := a.service.CreateCustomer(r.Context(), req)
	respond(w, r, http.StatusCreated, "customer created", customer, err)
}

func (a *API) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := a.service.GetCustomer(r.Context(), r.PathValue("id"))
	respond(w, r, http.StatusOK, "customer", customer, err)
}

func (a *API) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := a.service.ListCategories(r.Context())
	respond(w, r, http.StatusOK, "categories", categories, err)
}

func (a *API) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req domain.CategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	category, err := a.service.CreateCategory(r.Context(), req)
	respond(w, r, http.StatusCreated, "category created", category, err)
}

func (a *API) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	category, err := a.service.GetCategory(r.Context(), r.PathValue("id"))
	respond(w, r, http.StatusOK, "category", category, err)
}

func (a *API) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req domain.CategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	category, err := a.service.UpdateCategory(r.Context(), r.PathValue("id"), req)
	respond(w, r, http.StatusOK, "category updated", category, err)
}

func (a *API) handleListExpenseCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := a.service.ListExpenseCategories(r.Context())
	respond(w, r, http.StatusOK, "expense categories", categories, err)
}

func (a *API) handleCreateExpenseCategory(w http.ResponseWriter, r *http.Request) {
	var req domain.CategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	category, err := a.service.CreateExpenseCategory(r.Context(), req)
	respond(w, r, http.StatusCreated, "expense category created", category, err)
}

func (a *API) handleGetExpenseCategory(w http.ResponseWriter, r *http.Request) {
	category, err := a.service.GetExpenseCategory(r.Context(), r.PathValue("id"))
	respond(w, r, http.StatusOK, "expense category", category, err)
}

func (a *API) handleUpdateExpenseCategory(w http.ResponseWriter, r *http.Request) {
	var req domain.CategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	category, err := a.service.UpdateExpenseCategory(r.Context(), r.PathValue("id"), req)
	respond(w, r, http.StatusOK, "expense category updated", category, err)
}

func (a *API) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	expenses, err := a.service.ListExpenses(r.Context(), strings.TrimSpace(query.Get("category")), parsePositiveLimit(query.Get("limit"), 100, 500))
	respond(w, r, http.StatusOK, "expenses", expenses, err)
}

func (a *API) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req domain.ExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	expense, err := a.service.CreateExpense(r.Context(), req)
	respond(w, r, http.StatusCreated, "expense created", expense, err)
}

func (a *API) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var req domain.ExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	expense, err := a.service.UpdateExpense(r.Context(), r.PathValue("id"), req)
	respond(w, r, http.StatusOK, "expense updated", expense, err)
}

func (a *API) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	err := a.service.DeleteExpense(r.Context(), r.PathValue("id"))
	respond(w, r, http.StatusOK, "expense deleted", nil, err)
}

// handleUpload takes a multipart form with a single "file" part.
func (a *API) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUploadBytes)
	if err := r.ParseMultipartForm(a.maxUploadBytes); err != nil {
		writeError(w, r, apperror.NewValidation("invalid or oversized multipart upload"))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, apperror.NewValidation("file is required"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	result, err := a.service.Upload(r.Context(), header.Filename, contentType, file, header.Size)
	respond(w, r, http.StatusCreated, "file uploaded", result, err)
}

func (a *API) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := a.service.GetSettings(r.Context())
	respond(w, r, http.StatusOK, "settings", settings, err)
}

func (a *API) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req domain.SettingsUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	settings, err := a.service.UpdateSettings(r.Context(), req)
	respond(w, r, http.StatusOK, "settings updated", settings, err)
}

func (a *API) handleListSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := a.service.ListSuppliers(r.Context())
	respond(w, r, http.StatusOK, "suppliers", suppliers, err)
}

func (a *API) handleCreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req domain.SupplierCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	supplier, err := a.service.CreateSupplier(r.Context(), req)
	respond(w, r, http.StatusCreated, "supplier created", supplier, err)
}

func (a *API) handleListPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := a.service.ListPurchaseOrders(r.Context(), strings.TrimSpace(r.URL.Query().Get("status")))
	respond(w, r, http.StatusOK, "purchase orders", orders, err)
}

func (a *API) handleCreatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.PurchaseOrderCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	order, err := a.service.CreatePurchaseOrder(r.Context(), req)
	respond(w, r, http.StatusCreated, "purchase order created", order, err)
}

func (a *API) handleReceivePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.ReceivePurchaseOrder(r.Context(), r.PathValue("id"))
	respond(w, r, http.StatusOK, "purchase order received", order, err)
}

func (a *API) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	logs, err := a.service.ListAuditLogs(r.Context(), strings.TrimSpace(query.Get("date")), parsePositiveLimit(query.Get("limit"), 200, 1000))
	respond(w, r, http.StatusOK, "audit logs", logs, err)
}
