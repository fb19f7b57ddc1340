package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"kasirpos/backend/internal/domain"
)

const receiptRule = "========================"

// BuildReceipt renders an ESC/POS ticket for a sale: init, one line per text
// row, then a partial cut.
func (s *Service) BuildReceipt(ctx context.Context, saleID string) (domain.ReceiptResponse, error) {
	view, err := s.GetSale(ctx, strings.TrimSpace(saleID))
	if err != nil {
		return domain.ReceiptResponse{}, err
	}
	settings, err := s.loadSettings(ctx)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}

	lines := receiptLines(view, settings)
	escpos := []byte{0x1b, 0x40}
	for _, line := range lines {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, []byte{0x1d, 0x56, 0x41, 0x10}...)

	return domain.ReceiptResponse{
		SaleID:        view.ID,
		InvoiceNumber: view.InvoiceNumber,
		EscposBase64:  base64.StdEncoding.EncodeToString(escpos),
		PreviewText:   strings.Join(lines, "\n"),
		FileName:      fmt.Sprintf("receipt-%s.bin", view.InvoiceNumber),
	}, nil
}

func receiptLines(view domain.SaleView, settings domain.Settings) []string {
	storeName := settings.StoreName
	if storeName == "" {
		storeName = "Kasir POS"
	}
	lines := []string{
		storeName,
		receiptRule,
		"No   : " + view.InvoiceNumber,
		"Kasir: " + view.CashierName,
		"Tgl  : " + view.CreatedAt.Format("2006-01-02 15:04:05"),
		"------------------------",
	}
	for _, item := range view.Items {
		lines = append(lines, fmt.Sprintf("%s x%d", item.DisplayName, item.Quantity))
		lines = append(lines, "  "+item.TotalPrice.StringFixed(2))
	}
	lines = append(lines,
		"------------------------",
		"Subtotal : "+view.Subtotal.StringFixed(2),
		"Diskon   : "+view.Discount.StringFixed(2),
		"Pajak    : "+view.Tax.StringFixed(2),
		"Total    : "+view.Total.StringFixed(2),
	)
	for _, payment := range view.Payments {
		lines = append(lines, fmt.Sprintf("%-9s: %s", strings.ToUpper(payment.Method), payment.Amount.StringFixed(2)))
	}
	if len(view.ReturnedItems) > 0 {
		lines = append(lines, "Status   : "+view.Status)
	}
	if view.LoyaltyPointsEarned > 0 {
		lines = append(lines, fmt.Sprintf("Poin     : +%d", view.LoyaltyPointsEarned))
	}
	footer := settings.ReceiptFooter
	if footer == "" {
		footer = "Terima kasih"
	}
	lines = append(lines, receiptRule, footer, "")
	return lines
}
