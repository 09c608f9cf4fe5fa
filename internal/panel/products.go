package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/odyssey-erp/catalog-admin/internal/catalog"
	"github.com/odyssey-erp/catalog-admin/internal/catalogapi"
	"github.com/odyssey-erp/catalog-admin/internal/dashboard"
	"github.com/odyssey-erp/catalog-admin/internal/shared"
	"github.com/odyssey-erp/catalog-admin/internal/view"
	"github.com/odyssey-erp/catalog-admin/internal/viewstate"
)

const maxUploadMemory = catalog.MaxImageSize + 1<<20

func filterFromQuery(q url.Values) catalog.Filter {
	return catalog.Filter{
		Query:    q.Get(view.Fields.FilterQuery),
		Category: q.Get(view.Fields.FilterCategory),
		MinPrice: q.Get(view.Fields.FilterMinPrice),
		MaxPrice: q.Get(view.Fields.FilterMaxPrice),
	}.Normalized()
}

func productForm(r *http.Request) catalog.ProductForm {
	return catalog.ProductForm{
		Name:        r.PostFormValue(view.Fields.ProductName),
		Description: r.PostFormValue(view.Fields.ProductDescription),
		Price:       r.PostFormValue(view.Fields.ProductPrice),
		Quantity:    r.PostFormValue(view.Fields.ProductQuantity),
		Category:    r.PostFormValue(view.Fields.ProductCategory),
		ImageURL:    r.PostFormValue(view.Fields.ProductImageURL),
	}
}

// imageFromRequest returns the uploaded image, or nil when no file was chosen.
func imageFromRequest(r *http.Request) (*catalog.Image, func(), error) {
	file, header, err := r.FormFile(view.Fields.ProductImage)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, func() {}, nil
		}
		return nil, func() {}, err
	}
	img := &catalog.Image{Filename: header.Filename, Size: header.Size, Content: file}
	return img, func() { _ = file.Close() }, nil
}

func parseMultipart(r *http.Request) error {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return err
	}
	return nil
}

func (h *Handler) showAdmin(w http.ResponseWriter, r *http.Request) {
	sess, st := h.state(r)
	q := r.URL.Query()
	if tab := q.Get(view.Fields.Tab); tab != "" {
		if err := st.SwitchTab(tab); err != nil {
			h.logger.Debug("ignoring unknown tab", slog.String("tab", tab))
		}
	}
	h.saveState(sess, st)
	data := adminPage{Filter: filterFromQuery(q)}
	h.renderAdmin(w, r, st, data, http.StatusOK)
}

// renderAdmin loads what the active tab shows and renders the admin page over data.
func (h *Handler) renderAdmin(w http.ResponseWriter, r *http.Request, st *viewstate.State, data adminPage, status int) {
	if err := h.loadAdmin(r.Context(), st, &data); err != nil {
		h.failPage(w, r, err, "/admin?"+view.Fields.Tab+"="+dashboard.TabTools)
		return
	}
	h.page(w, r, status, "pages/admin.html", "Productos", data)
}

func (h *Handler) loadAdmin(ctx context.Context, st *viewstate.State, data *adminPage) error {
	tabs := st.Tabs()
	data.Tabs = tabs.Items()
	data.ActiveTab = tabs.Active()
	if data.FormToken == "" {
		data.FormToken = shared.NewFormToken()
	}

	switch data.ActiveTab {
	case dashboard.TabProducts:
		table, err := h.catalog.Table(ctx, data.Filter)
		if err != nil {
			fields, ok := fieldErrors(err)
			if !ok {
				return err
			}
			data.FilterErrors = fields
			table = catalog.NewTable(nil, true)
		}
		data.Table = table
		list, err := h.suppliers.Suppliers(ctx)
		if err != nil {
			if errors.Is(err, catalogapi.ErrNotAuthenticated) {
				return err
			}
			h.logger.Warn("load suppliers", slog.Any("error", err))
		}
		data.Suppliers = list
		data.Pending = h.suppliers.PendingView(ctx, st.Pending.Entries())
	case dashboard.TabStats:
		if data.Stats == nil {
			stats, err := h.dashboard.Stats(ctx)
			if err != nil {
				if errors.Is(err, catalogapi.ErrNotAuthenticated) {
					return err
				}
				data.StatsError = userMessage(err)
			} else {
				data.Stats = &stats
			}
		}
	case dashboard.TabTools:
		report, ok, err := h.snapshots.Latest(ctx)
		if err != nil {
			h.logger.Warn("load low stock snapshot", slog.Any("error", err))
		}
		if ok {
			data.Snapshot = &report
		}
	}
	return nil
}

func (h *Handler) productTable(w http.ResponseWriter, r *http.Request) {
	table, err := h.catalog.Table(r.Context(), filterFromQuery(r.URL.Query()))
	if err != nil {
		if _, ok := fieldErrors(err); ok {
			h.fragment(w, r, http.StatusUnprocessableEntity, "fragment/product_table", adminPage{Table: catalog.NewTable(nil, true)})
			return
		}
		h.failPage(w, r, err, "/admin")
		return
	}
	h.fragment(w, r, http.StatusOK, "fragment/product_table", adminPage{Table: table})
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipart(r); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	back := "/admin?" + view.Fields.Tab + "=" + dashboard.TabProducts
	release, ok := h.claim(w, r, "product:create", back)
	if !ok {
		return
	}
	sess, st := h.state(r)
	form := productForm(r)
	img, closeImg, err := imageFromRequest(r)
	if err != nil {
		release()
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	defer closeImg()

	result, err := h.catalog.Create(r.Context(), catalog.CreateInput{Form: form, Image: img, Pending: st.Pending.Entries()})
	if err != nil {
		release()
		if h.expired(w, r, err) {
			return
		}
		fields, ok := fieldErrors(err)
		status := http.StatusUnprocessableEntity
		if !ok {
			h.logger.Warn("create product", slog.Any("error", err))
			fields = map[string]string{"general": userMessage(err)}
			status = statusFor(err)
		}
		h.renderAdmin(w, r, st, adminPage{Form: form, FormErrors: fields}, status)
		return
	}

	st.ResetAfterCreate()
	h.saveState(sess, st)
	message := fmt.Sprintf("Producto \"%s\" creado", result.Product.Name)
	kind := shared.FlashSuccess
	if summary := result.Flush.Summary(); summary != "" {
		message += ". " + summary
		if result.Flush.Failed() > 0 {
			kind = shared.FlashWarning
		}
	}
	addFlash(r, kind, message)
	http.Redirect(w, r, back, http.StatusSeeOther)
}

func (h *Handler) showEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	sess, st := h.state(r)
	st.OpenEdit(id)
	h.saveState(sess, st)
	h.renderEdit(w, r, st, id, editPage{}, http.StatusOK)
}

// renderEdit renders the edit modal of product id. Fields already set on data are kept.
func (h *Handler) renderEdit(w http.ResponseWriter, r *http.Request, st *viewstate.State, id int64, data editPage, status int) {
	ctx := r.Context()
	product, err := h.catalog.Get(ctx, id)
	if err != nil {
		h.failPage(w, r, err, "/admin")
		return
	}
	data.Product = product
	if data.Form == (catalog.ProductForm{}) {
		data.Form = catalog.FormFromProduct(product)
	}
	if data.FormToken == "" {
		data.FormToken = shared.NewFormToken()
	}
	if data.AssignToken == "" {
		data.AssignToken = shared.NewFormToken()
	}
	if data.Links == nil {
		links, err := h.suppliers.Links(ctx, id)
		if err != nil {
			h.failPage(w, r, err, "/admin")
			return
		}
		data.Links = links
	}
	list, err := h.suppliers.Suppliers(ctx)
	if err != nil {
		if h.expired(w, r, err) {
			return
		}
		h.logger.Warn("load suppliers", slog.Any("error", err))
	}
	data.Suppliers = list

	if target := st.History; target != nil && target.ProductID == id {
		if data.History == nil {
			data.History = &historyPanel{}
		}
		data.History.ProductID = id
		data.History.SupplierID = target.SupplierID
		data.History.SupplierName = h.suppliers.Name(ctx, target.SupplierID)
		if data.History.FormToken == "" {
			data.History.FormToken = shared.NewFormToken()
		}
		if data.History.Entries == nil {
			entries, err := h.history.List(ctx, id, target.SupplierID)
			if err != nil {
				h.failPage(w, r, err, "/admin/productos/"+fmt.Sprint(id)+"/editar")
				return
			}
			data.History.Entries = entries
		}
	} else {
		data.History = nil
	}

	if isFragment(r) && data.History != nil {
		h.fragment(w, r, status, "fragment/price_history", data)
		return
	}
	h.page(w, r, status, "pages/edit.html", "Editar producto", data)
}

func editURL(id int64) string {
	return fmt.Sprintf("/admin/productos/%d/editar", id)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := parseMultipart(r); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	release, ok := h.claim(w, r, "product:update", editURL(id))
	if !ok {
		return
	}
	sess, st := h.state(r)
	form := productForm(r)
	img, closeImg, err := imageFromRequest(r)
	if err != nil {
		release()
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	defer closeImg()

	product, err := h.catalog.Update(r.Context(), id, form, img)
	if err != nil {
		release()
		if h.expired(w, r, err) {
			return
		}
		fields, ok := fieldErrors(err)
		status := http.StatusUnprocessableEntity
		if !ok {
			h.logger.Warn("update product", slog.Int64("product_id", id), slog.Any("error", err))
			fields = map[string]string{"general": userMessage(err)}
			status = statusFor(err)
		}
		h.renderEdit(w, r, st, id, editPage{Form: form, FormErrors: fields}, status)
		return
	}
	st.CloseEdit()
	h.saveState(sess, st)
	addFlash(r, shared.FlashSuccess, fmt.Sprintf("Producto \"%s\" actualizado", product.Name))
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (h *Handler) closeEdit(w http.ResponseWriter, r *http.Request) {
	sess, st := h.state(r)
	st.CloseEdit()
	h.saveState(sess, st)
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (h *Handler) confirmDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	h.confirmPage(w, r, catalog.DeletePrompt, fmt.Sprintf("/admin/productos/%d/eliminar", id), "/admin", nil)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	p := promptFrom(r)
	err := h.catalog.Delete(r.Context(), id, p.confirm)
	if errors.Is(err, shared.ErrCancelled) {
		h.confirmPage(w, r, p.asked, r.URL.Path, "/admin", nil)
		return
	}
	if err != nil {
		h.fail(w, r, err, "/admin")
		return
	}
	sess, st := h.state(r)
	if st.Editing(id) {
		st.CloseEdit()
		h.saveState(sess, st)
	}
	addFlash(r, shared.FlashSuccess, "Producto eliminado")
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}
