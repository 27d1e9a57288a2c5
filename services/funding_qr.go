package services

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/skip2/go-qrcode"
)

// FundingQRService renders escrow deposit QR codes for task creators.
type FundingQRService struct{}

// NewFundingQRService creates a new funding QR service.
func NewFundingQRService() *FundingQRService {
	return &FundingQRService{}
}

// GenerateFundingQR generates a QR code PNG encoding the escrow deposit
// address with the expected amount. Amounts are stablecoin cents.
func (s *FundingQRService) GenerateFundingQR(chain, address string, amountCents int64) ([]byte, error) {
	if address == "" {
		return nil, fmt.Errorf("escrow address required")
	}
	payload := fmt.Sprintf("%s:%s?amount=%d.%02d", chain, address, amountCents/100, amountCents%100)
	if chain == "" {
		payload = fmt.Sprintf("%s?amount=%d.%02d", address, amountCents/100, amountCents%100)
	}

	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, qr.Image(256)); err != nil {
		return nil, fmt.Errorf("failed to encode QR code to PNG: %w", err)
	}
	return buf.Bytes(), nil
}
