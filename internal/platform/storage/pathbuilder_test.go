package storage

import "testing"

func TestBuildPaymentSlipPath(t *testing.T) {
	path, err := BuildObjectPath(PurposePaymentSlip, PathParams{
		OrderID:  "order123",
		UploadID: "01HX",
		FileName: "bank slip (1).PNG",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "payment_slips/order123/01HX-bank_slip__1_.PNG"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildProductImagePathStripsDirectories(t *testing.T) {
	path, err := BuildObjectPath(PurposeProductImage, PathParams{
		ProductID: "mug",
		UploadID:  "u1",
		FileName:  `C:\Users\me\..\mug.jpg`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "products/mug/u1-mug.jpg"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildObjectPathRejectsInvalidSegment(t *testing.T) {
	cases := []struct {
		purpose AssetPurpose
		params  PathParams
	}{
		{PurposePaymentSlip, PathParams{OrderID: "../bad", UploadID: "u", FileName: "file.png"}},
		{PurposeProductImage, PathParams{ProductID: "mug", UploadID: "u", FileName: ".."}},
		{PurposeProductImage, PathParams{ProductID: "mug", FileName: "file.png"}},
		{AssetPurpose("avatar"), PathParams{ProductID: "mug", UploadID: "u", FileName: "file.png"}},
	}
	for _, tc := range cases {
		if _, err := BuildObjectPath(tc.purpose, tc.params); err == nil {
			t.Fatalf("expected error for %s %+v", tc.purpose, tc.params)
		}
	}
}
