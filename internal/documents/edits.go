package documents

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-invoicing/internal/invoicing"
)

// Edit operations accepted by a session.
const (
	OpAddLine             = "add_line"
	OpRemoveLine          = "remove_line"
	OpSetQuantity         = "set_quantity"
	OpSetUnitPrice        = "set_unit_price"
	OpSelectItem          = "select_item"
	OpSetExemptionReason  = "set_exemption_reason"
	OpSetVATRate          = "set_vat_rate"
	OpSetPricesIncludeVAT = "set_prices_include_vat"
	OpSetDiscount         = "set_discount"
	OpSetCurrency         = "set_currency"
	OpSetDate             = "set_date"
)

// Edit is one user edit. Numeric values arrive as typed by the user and are decoded
// leniently: a comma decimal separator is accepted and unparseable input counts as 0.
type Edit struct {
	Op                string `json:"op" validate:"required,oneof=add_line remove_line set_quantity set_unit_price select_item set_exemption_reason set_vat_rate set_prices_include_vat set_discount set_currency set_date"`
	LineID            string `json:"line_id,omitempty" validate:"omitempty,uuid"`
	Value             string `json:"value,omitempty"`
	CatalogItemID     *int64 `json:"catalog_item_id,omitempty" validate:"omitempty,gt=0"`
	ExemptionReasonID *int64 `json:"exemption_reason_id,omitempty" validate:"omitempty,gt=0"`
	PricesIncludeVAT  *bool  `json:"prices_include_vat,omitempty"`
	Currency          string `json:"currency,omitempty" validate:"omitempty,iso4217"`
	Date              string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

func (e Edit) targetsLine() bool {
	switch e.Op {
	case OpRemoveLine, OpSetQuantity, OpSetUnitPrice, OpSelectItem, OpSetExemptionReason:
		return true
	}
	return false
}

// editRules checks the fields each operation needs.
func editRules(sl validator.StructLevel) {
	e := sl.Current().Interface().(Edit)
	if e.targetsLine() && e.LineID == "" {
		sl.ReportError(e.LineID, "line_id", "LineID", "required_for_op", e.Op)
	}
	switch e.Op {
	case OpSetQuantity, OpSetUnitPrice:
		if invoicing.ParseDecimal(e.Value).Sign() < 0 {
			sl.ReportError(e.Value, "value", "Value", ruleNonNegative, "")
		}
	case OpSetVATRate, OpSetDiscount:
		if !inPercentRange(invoicing.ParseDecimal(e.Value)) {
			sl.ReportError(e.Value, "value", "Value", rulePercent, "")
		}
	case OpSelectItem:
		if e.CatalogItemID == nil {
			sl.ReportError(e.CatalogItemID, "catalog_item_id", "CatalogItemID", "required_for_op", e.Op)
		}
	case OpSetPricesIncludeVAT:
		if e.PricesIncludeVAT == nil {
			sl.ReportError(e.PricesIncludeVAT, "prices_include_vat", "PricesIncludeVAT", "required_for_op", e.Op)
		}
	case OpSetCurrency:
		if e.Currency == "" {
			sl.ReportError(e.Currency, "currency", "Currency", "required_for_op", e.Op)
		}
	case OpSetDate:
		if e.Date == "" {
			sl.ReportError(e.Date, "date", "Date", "required_for_op", e.Op)
		}
	}
}

// Result reports what an edit produced besides the new document.
type Result struct {
	LineID *uuid.UUID `json:"line_id,omitempty"`
}

// transition turns a validated edit into a document transition. item carries the
// catalog entry already looked up for select_item.
func transition(e Edit, item *invoicing.CatalogItem) (func(invoicing.Document) (invoicing.Document, Result, error), error) {
	var lineID uuid.UUID
	if e.targetsLine() {
		id, err := uuid.Parse(e.LineID)
		if err != nil {
			return nil, fmt.Errorf("documents: line id: %w", err)
		}
		lineID = id
	}
	value := invoicing.ParseDecimal(e.Value)

	noResult := func(fn func(invoicing.Document) (invoicing.Document, error)) func(invoicing.Document) (invoicing.Document, Result, error) {
		return func(doc invoicing.Document) (invoicing.Document, Result, error) {
			next, err := fn(doc)
			return next, Result{}, err
		}
	}
	pure := func(fn func(invoicing.Document) invoicing.Document) func(invoicing.Document) (invoicing.Document, Result, error) {
		return func(doc invoicing.Document) (invoicing.Document, Result, error) {
			return fn(doc), Result{}, nil
		}
	}

	switch e.Op {
	case OpAddLine:
		return func(doc invoicing.Document) (invoicing.Document, Result, error) {
			next, id := doc.AddLine()
			return next, Result{LineID: &id}, nil
		}, nil
	case OpRemoveLine:
		return noResult(func(doc invoicing.Document) (invoicing.Document, error) { return doc.RemoveLine(lineID) }), nil
	case OpSetQuantity:
		return noResult(func(doc invoicing.Document) (invoicing.Document, error) { return doc.SetQuantity(lineID, value) }), nil
	case OpSetUnitPrice:
		return noResult(func(doc invoicing.Document) (invoicing.Document, error) { return doc.SetUnitPrice(lineID, value) }), nil
	case OpSelectItem:
		if item == nil {
			return nil, fmt.Errorf("documents: catalog item not loaded")
		}
		selected := *item
		return noResult(func(doc invoicing.Document) (invoicing.Document, error) { return doc.SelectCatalogItem(lineID, selected) }), nil
	case OpSetExemptionReason:
		reason := e.ExemptionReasonID
		return noResult(func(doc invoicing.Document) (invoicing.Document, error) {
			return doc.SetVATExemptionReason(lineID, reason)
		}), nil
	case OpSetVATRate:
		return pure(func(doc invoicing.Document) invoicing.Document { return doc.SetVATRate(value) }), nil
	case OpSetPricesIncludeVAT:
		include := *e.PricesIncludeVAT
		return pure(func(doc invoicing.Document) invoicing.Document { return doc.SetPricesIncludeVAT(include) }), nil
	case OpSetDiscount:
		return pure(func(doc invoicing.Document) invoicing.Document { return doc.SetDiscount(value) }), nil
	case OpSetCurrency:
		code := e.Currency
		return pure(func(doc invoicing.Document) invoicing.Document { return doc.SetCurrency(code) }), nil
	case OpSetDate:
		date, err := time.Parse(time.DateOnly, e.Date)
		if err != nil {
			return nil, fmt.Errorf("documents: date: %w", err)
		}
		return pure(func(doc invoicing.Document) invoicing.Document { return doc.SetDate(date) }), nil
	}
	return nil, fmt.Errorf("documents: unsupported edit %q", e.Op)
}
