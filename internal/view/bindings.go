package view

// FieldNames names every form field of the panel. Handlers read forms and templates render
// inputs through it, so a rename happens in one place.
type FieldNames struct {
	ProductName        string
	ProductDescription string
	ProductPrice       string
	ProductQuantity    string
	ProductCategory    string
	ProductImageURL    string
	ProductImage       string

	SupplierID    string
	SupplierPrice string
	SupplierDate  string

	HistoryPrice string
	HistoryDate  string
	HistoryNotes string
	ProductID    string

	FilterQuery    string
	FilterCategory string
	FilterMinPrice string
	FilterMaxPrice string
	Tab            string

	ImportFile   string
	ExportFormat string

	Username string
	Password string

	Confirm   string
	FormToken string
	CSRFToken string
}

// Fields is the single source of form field names.
var Fields = FieldNames{
	ProductName:        "nombre",
	ProductDescription: "descripcion",
	ProductPrice:       "precio",
	ProductQuantity:    "cantidad",
	ProductCategory:    "categoria",
	ProductImageURL:    "imagen_url",
	ProductImage:       "imagen",

	SupplierID:    "proveedor_id",
	SupplierPrice: "precio_proveedor",
	SupplierDate:  "fecha_precio",

	HistoryPrice: "precio",
	HistoryDate:  "fecha_precio",
	HistoryNotes: "notas",
	ProductID:    "producto_id",

	FilterQuery:    "q",
	FilterCategory: "categoria",
	FilterMinPrice: "precio_min",
	FilterMaxPrice: "precio_max",
	Tab:            "tab",

	ImportFile:   "file",
	ExportFormat: "formato",

	Username: "username",
	Password: "password",

	Confirm:   "confirmar",
	FormToken: "form_token",
	CSRFToken: "csrf_token",
}

// ConfirmYes is the value of the confirmation field once the user agreed.
const ConfirmYes = "si"

// ElementIDs names the DOM elements fragments are swapped into.
type ElementIDs struct {
	ProductTable   string
	ProductRows    string
	CreateForm     string
	PendingList    string
	SupplierSelect string
	SupplierLinks  string
	PriceHistory   string
	StatsPanel     string
	LowStockReport string
	ImportSummary  string
	EditModal      string
}

// IDs is the single source of element ids.
var IDs = ElementIDs{
	ProductTable:   "tabla-productos",
	ProductRows:    "productos-tbody",
	CreateForm:     "form-producto",
	PendingList:    "proveedores-pendientes",
	SupplierSelect: "select-proveedor",
	SupplierLinks:  "proveedores-asignados",
	PriceHistory:   "historial-precios",
	StatsPanel:     "panel-estadisticas",
	LowStockReport: "reporte-bajo-stock",
	ImportSummary:  "resumen-importacion",
	EditModal:      "modal-editar",
}
