package panel

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/odyssey-erp/catalog-admin/internal/catalog"
	"github.com/odyssey-erp/catalog-admin/internal/catalogapi"
	"github.com/odyssey-erp/catalog-admin/internal/shared"
	"github.com/odyssey-erp/catalog-admin/internal/suppliers"
)

// userMessage turns an operation error into the text shown to the admin.
func userMessage(err error) string {
	if msg, ok := catalogapi.ServerMessage(err); ok {
		return msg
	}
	var statusErr *catalogapi.StatusError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, shared.ErrDuplicateSubmission):
		return "Este formulario ya fue enviado"
	case errors.Is(err, shared.ErrCancelled):
		return "Acción cancelada"
	case errors.Is(err, catalogapi.ErrNotAuthenticated):
		return "Tu sesión expiró. Inicia sesión nuevamente."
	case errors.Is(err, catalogapi.ErrIncompleteSummary):
		return "El servidor no devolvió un resumen completo de la importación"
	case errors.Is(err, catalog.ErrUnknownFormat):
		return "Formato de exportación no válido"
	case errors.Is(err, suppliers.ErrSupplierRequired):
		return "Selecciona un proveedor"
	case catalogapi.IsTransport(err):
		return "No se pudo conectar con el servidor del catálogo"
	case errors.As(err, &statusErr):
		return fmt.Sprintf("El servidor respondió con un error (código %d)", statusErr.Code)
	}
	if _, ok := shared.AsValidation(err); ok {
		return "Revisa los campos marcados"
	}
	return "Ocurrió un error inesperado"
}

func statusFor(err error) int {
	var statusErr *catalogapi.StatusError
	switch {
	case errors.Is(err, catalogapi.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound:
		return http.StatusNotFound
	case catalogapi.IsTransport(err):
		return http.StatusBadGateway
	case errors.Is(err, catalog.ErrUnknownFormat):
		return http.StatusBadRequest
	}
	if _, ok := shared.AsValidation(err); ok {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}
