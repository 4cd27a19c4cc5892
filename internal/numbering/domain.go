package numbering

import "strings"

// SeriesCode partitions a numbering sequence by document kind and payment mode.
type SeriesCode string

// Document series. Cash and credit sales carry independent counters.
const (
	SeriesPurchase       SeriesCode = "PI"
	SeriesCashSales      SeriesCode = "CS"
	SeriesCreditSales    SeriesCode = "CR"
	SeriesReceiptVoucher SeriesCode = "RV"
	SeriesPaymentVoucher SeriesCode = "PV"
)

// DocumentClass selects which series family a document numbers against.
type DocumentClass string

// Document classes understood by the allocator.
const (
	DocSalesInvoice    DocumentClass = "SALES_INVOICE"
	DocPurchaseInvoice DocumentClass = "PURCHASE_INVOICE"
	DocReceiptVoucher  DocumentClass = "RECEIPT_VOUCHER"
	DocPaymentVoucher  DocumentClass = "PAYMENT_VOUCHER"
)

// SeriesFor resolves the series for a document. Purchase invoices use one
// fixed series; sales invoices branch on payment mode, cash versus everything
// else. Vouchers branch on direction only.
func SeriesFor(class DocumentClass, paymentMode string) (SeriesCode, error) {
	switch class {
	case DocPurchaseInvoice:
		return SeriesPurchase, nil
	case DocSalesInvoice:
		if strings.EqualFold(paymentMode, "CASH") {
			return SeriesCashSales, nil
		}
		return SeriesCreditSales, nil
	case DocReceiptVoucher:
		return SeriesReceiptVoucher, nil
	case DocPaymentVoucher:
		return SeriesPaymentVoucher, nil
	}
	return "", ErrUnknownSeries
}

// Allocation is the result of assigning a document number.
type Allocation struct {
	Number     string
	Sequence   int64
	SeriesCode SeriesCode
	Period     string
}
