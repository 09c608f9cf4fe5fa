package panel

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/odyssey-erp/catalog-admin/internal/catalog"
	"github.com/odyssey-erp/catalog-admin/internal/dashboard"
	"github.com/odyssey-erp/catalog-admin/internal/shared"
	"github.com/odyssey-erp/catalog-admin/internal/view"
)

var toolsURL = "/admin?" + view.Fields.Tab + "=" + dashboard.TabTools

// statsFragment always refetches; statistics are never served from a cache.
func (h *Handler) statsFragment(w http.ResponseWriter, r *http.Request) {
	data := adminPage{ActiveTab: dashboard.TabStats}
	stats, err := h.dashboard.Stats(r.Context())
	if err != nil {
		if h.expired(w, r, err) {
			return
		}
		h.logger.Warn("load stats", slog.Any("error", err))
		data.StatsError = userMessage(err)
		h.fragment(w, r, statusFor(err), "fragment/stats_panel", data)
		return
	}
	data.Stats = &stats
	h.fragment(w, r, http.StatusOK, "fragment/stats_panel", data)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	report, err := h.dashboard.LowStock(r.Context())
	if err != nil {
		h.failPage(w, r, err, "/admin")
		return
	}
	if h.gauge != nil {
		h.gauge.SetLowStock(len(report.Items), report.Critical)
	}
	h.page(w, r, http.StatusOK, "pages/low_stock.html", "Bajo stock", lowStockPage{Report: report})
}

func (h *Handler) requestScan(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		addFlash(r, shared.FlashWarning, "El escaneo en segundo plano no está disponible")
		http.Redirect(w, r, toolsURL, http.StatusSeeOther)
		return
	}
	admin := ""
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		admin = sess.Admin()
	}
	if err := h.queue.EnqueueLowStockScan(r.Context(), admin); err != nil {
		h.logger.Error("enqueue lowstock scan", slog.Any("error", err))
		addFlash(r, shared.FlashError, "No se pudo solicitar el escaneo")
		http.Redirect(w, r, toolsURL, http.StatusSeeOther)
		return
	}
	addFlash(r, shared.FlashSuccess, "Escaneo de bajo stock solicitado")
	http.Redirect(w, r, toolsURL, http.StatusSeeOther)
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	_, st := h.state(r)
	back := "/admin?" + view.Fields.Tab + "=" + st.Tabs().Active()
	result, err := h.dashboard.Sync(r.Context())
	if err != nil {
		h.fail(w, r, err, back)
		return
	}
	addFlash(r, shared.FlashSuccess, fmt.Sprintf("Catálogo sincronizado: %d productos, inventario %s", len(result.Products), result.Stats.InventoryValue))
	http.Redirect(w, r, back, http.StatusSeeOther)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	format, err := catalog.ParseExportFormat(r.URL.Query().Get(view.Fields.ExportFormat))
	if err != nil {
		h.fail(w, r, err, toolsURL)
		return
	}
	body, err := h.catalog.Export(r.Context(), format)
	if err != nil {
		h.fail(w, r, err, toolsURL)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": format.Filename()}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("export stream interrupted", slog.String("format", string(format)), slog.Any("error", err))
	}
}

func (h *Handler) importCatalog(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipart(r); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	release, ok := h.claim(w, r, "catalog:import", toolsURL)
	if !ok {
		return
	}
	sess, st := h.state(r)
	if err := st.SwitchTab(dashboard.TabTools); err != nil {
		h.logger.Error("switch tab", slog.Any("error", err))
	}
	h.saveState(sess, st)

	file, header, err := r.FormFile(view.Fields.ImportFile)
	if err != nil {
		release()
		if !errors.Is(err, http.ErrMissingFile) {
			h.logger.Warn("read import upload", slog.Any("error", err))
		}
		h.renderAdmin(w, r, st, adminPage{ImportErr: "Selecciona un archivo Excel (.xlsx)"}, http.StatusUnprocessableEntity)
		return
	}
	defer file.Close()

	summary, err := h.catalog.Import(r.Context(), header.Filename, file)
	if err != nil {
		release()
		if h.expired(w, r, err) {
			return
		}
		message := userMessage(err)
		if fields, ok := fieldErrors(err); ok {
			message = fields[view.Fields.ImportFile]
		} else {
			h.logger.Warn("import catalog", slog.Any("error", err))
		}
		h.renderAdmin(w, r, st, adminPage{ImportErr: message}, statusFor(err))
		return
	}
	h.renderAdmin(w, r, st, adminPage{Import: &summary}, http.StatusOK)
}
