package catalogapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// ListProducts returns every product.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	if err := c.call(ctx, "list products", http.MethodGet, "/api/productos", nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetProduct returns a single product.
func (c *Client) GetProduct(ctx context.Context, id int64) (Product, error) {
	var product Product
	if err := c.call(ctx, "get product", http.MethodGet, productPath(id), nil, &product); err != nil {
		return Product{}, err
	}
	return product, nil
}

// SearchProducts filters products. Only the keys present in query are sent.
func (c *Client) SearchProducts(ctx context.Context, query url.Values) ([]Product, error) {
	path := "/api/productos/buscar"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var products []Product
	if err := c.call(ctx, "search products", http.MethodGet, path, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// CreateProduct posts a new product and returns it with its server-assigned id.
func (c *Client) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	var product Product
	if err := c.call(ctx, "create product", http.MethodPost, "/api/productos", in, &product); err != nil {
		return Product{}, err
	}
	return product, nil
}

// UpdateProduct replaces every field of an existing product.
func (c *Client) UpdateProduct(ctx context.Context, id int64, in ProductInput) (Product, error) {
	var product Product
	if err := c.call(ctx, "update product", http.MethodPut, productPath(id), in, &product); err != nil {
		return Product{}, err
	}
	return product, nil
}

// DeleteProduct removes a product.
func (c *Client) DeleteProduct(ctx context.Context, id int64) error {
	return c.call(ctx, "delete product", http.MethodDelete, productPath(id), nil, nil)
}

// LowStock returns the products the API reports below its stock threshold.
func (c *Client) LowStock(ctx context.Context) ([]Product, error) {
	var products []Product
	if err := c.call(ctx, "low stock", http.MethodGet, "/api/productos/bajo-stock", nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// ExportCSV streams the catalog as CSV. The caller closes the reader.
func (c *Client) ExportCSV(ctx context.Context) (io.ReadCloser, error) {
	return c.download(ctx, "export csv", "/api/productos/exportar")
}

// ExportExcel streams the catalog as a spreadsheet. The caller closes the reader.
func (c *Client) ExportExcel(ctx context.Context) (io.ReadCloser, error) {
	return c.download(ctx, "export excel", "/api/productos/exportar-excel")
}

// ImportExcel uploads a spreadsheet and returns the import summary.
func (c *Client) ImportExcel(ctx context.Context, filename string, content io.Reader) (ImportSummary, error) {
	var payload importPayload
	if err := c.upload(ctx, "import excel", "/api/productos/importar-excel", "file", filename, content, &payload); err != nil {
		return ImportSummary{}, err
	}
	return payload.summary()
}

// UploadImage stores a product image and returns its public URL.
func (c *Client) UploadImage(ctx context.Context, filename string, content io.Reader) (string, error) {
	var payload struct {
		URL string `json:"url"`
	}
	if err := c.upload(ctx, "upload image", "/api/productos/upload-imagen", "imagen", filename, content, &payload); err != nil {
		return "", err
	}
	if payload.URL == "" {
		return "", &AppError{Op: "upload image", Message: "respuesta sin url"}
	}
	return payload.URL, nil
}

// ListSuppliers returns every supplier.
func (c *Client) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	var suppliers []Supplier
	if err := c.call(ctx, "list suppliers", http.MethodGet, "/api/proveedores", nil, &suppliers); err != nil {
		return nil, err
	}
	return suppliers, nil
}

// ListProductSuppliers returns the suppliers assigned to a product.
func (c *Client) ListProductSuppliers(ctx context.Context, productID int64) ([]SupplierLink, error) {
	var links []SupplierLink
	if err := c.call(ctx, "list product suppliers", http.MethodGet, productPath(productID, "proveedores"), nil, &links); err != nil {
		return nil, err
	}
	return links, nil
}

// AssignSupplier creates the link, or updates its price and date when it already exists.
func (c *Client) AssignSupplier(ctx context.Context, productID int64, in AssignRequest) (SupplierLink, error) {
	var link SupplierLink
	if err := c.call(ctx, "assign supplier", http.MethodPost, productPath(productID, "proveedores"), in, &link); err != nil {
		return SupplierLink{}, err
	}
	return link, nil
}

// UnassignSupplier removes the link. Price history rows stay on the server.
func (c *Client) UnassignSupplier(ctx context.Context, productID, supplierID int64) error {
	path := productPath(productID, "proveedores", fmt.Sprint(supplierID))
	return c.call(ctx, "unassign supplier", http.MethodDelete, path, nil, nil)
}

// ListPriceHistory returns the price history of a (product, supplier) link.
func (c *Client) ListPriceHistory(ctx context.Context, productID, supplierID int64) ([]PriceEntry, error) {
	path := productPath(productID, "proveedores", fmt.Sprint(supplierID), "historial")
	var entries []PriceEntry
	if err := c.call(ctx, "list price history", http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// AddPriceEntry appends a price to the history of a (product, supplier) link.
func (c *Client) AddPriceEntry(ctx context.Context, productID, supplierID int64, in PriceEntryRequest) (PriceEntry, error) {
	path := productPath(productID, "proveedores", fmt.Sprint(supplierID), "historial")
	var payload struct {
		Entry *PriceEntry `json:"precio_historico"`
		PriceEntry
	}
	if err := c.call(ctx, "add price entry", http.MethodPost, path, in, &payload); err != nil {
		return PriceEntry{}, err
	}
	if payload.Entry != nil {
		return *payload.Entry, nil
	}
	return payload.PriceEntry, nil
}

// DeletePriceEntry removes one history row.
func (c *Client) DeletePriceEntry(ctx context.Context, entryID int64) error {
	return c.call(ctx, "delete price entry", http.MethodDelete, fmt.Sprintf("/api/historial-precios/%d", entryID), nil, nil)
}

// Stats returns the aggregate catalog statistics.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := c.call(ctx, "stats", http.MethodGet, "/api/estadisticas", nil, &stats); err != nil {
		return Stats{}, err
	}
	return stats, nil
}
