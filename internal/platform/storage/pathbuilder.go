package storage

import (
	"fmt"
	"path"
	"strings"
)

// AssetPurpose captures high-level intent for storage layout decisions.
type AssetPurpose string

const (
	PurposePaymentSlip  AssetPurpose = "payment_slip"
	PurposeProductImage AssetPurpose = "product_image"
)

// PathParams provide required identifiers to compose storage object keys.
type PathParams struct {
	OrderID   string
	ProductID string
	UploadID  string
	FileName  string
}

var pathBuilders = map[AssetPurpose]func(PathParams) (string, error){
	PurposePaymentSlip:  buildPaymentSlipPath,
	PurposeProductImage: buildProductImagePath,
}

// BuildObjectPath resolves the storage object path for the given purpose.
func BuildObjectPath(purpose AssetPurpose, params PathParams) (string, error) {
	builder, ok := pathBuilders[purpose]
	if !ok {
		return "", fmt.Errorf("storage: unsupported asset purpose %q", purpose)
	}
	return builder(params)
}

func buildPaymentSlipPath(params PathParams) (string, error) {
	orderID, err := validateSegment("orderID", params.OrderID)
	if err != nil {
		return "", err
	}
	name, err := uploadObjectName(params)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("payment_slips/%s/%s", orderID, name), nil
}

func buildProductImagePath(params PathParams) (string, error) {
	productID, err := validateSegment("productID", params.ProductID)
	if err != nil {
		return "", err
	}
	name, err := uploadObjectName(params)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("products/%s/%s", productID, name), nil
}

// uploadObjectName prefixes the client file name with the upload id so repeated uploads never collide.
func uploadObjectName(params PathParams) (string, error) {
	uploadID, err := validateSegment("uploadID", params.UploadID)
	if err != nil {
		return "", err
	}
	fileName, err := validateFileName(sanitizeFileName(params.FileName))
	if err != nil {
		return "", err
	}
	return uploadID + "-" + fileName, nil
}

// sanitizeFileName keeps the base name and replaces characters that are awkward in URLs.
func sanitizeFileName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	name = path.Base(name)
	if name == "." || name == "/" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}

func validateFileName(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: fileName is required")
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: fileName contains invalid path characters")
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: fileName contains invalid traversal sequence")
	}
	return value, nil
}
