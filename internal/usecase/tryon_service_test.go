package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"image/color"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/lelook/backend/internal/domain"
)

type tryOnFixture struct {
	generator  *MockImageGenerator
	fetcher    *MockImageFetcher
	compositor *MockCompositor
	storage    *MockObjectStorage
	svc        *TryOnService
	productPNG []byte
	userPNG    []byte
}

func newTryOnFixture(t *testing.T, config TryOnConfig) *tryOnFixture {
	t.Helper()
	productPNG := testPNG(t, color.RGBA{R: 200, A: 255})
	userPNG := testPNG(t, color.RGBA{B: 200, A: 255})
	generated := testPNG(t, color.RGBA{G: 200, A: 255})
	composite := testPNG(t, color.RGBA{R: 100, G: 100, A: 255})

	f := &tryOnFixture{
		generator: &MockImageGenerator{result: &domain.GeneratedImage{Data: generated, MIMEType: "image/png"}},
		fetcher: &MockImageFetcher{images: map[string][]byte{
			"https://img.example.com/dress.png": productPNG,
		}},
		compositor: &MockCompositor{result: &domain.GeneratedImage{Data: composite, MIMEType: "image/png"}},
		storage:    NewMockObjectStorage(),
		productPNG: productPNG,
		userPNG:    userPNG,
	}
	if config.RetryBackoff == 0 {
		config.RetryBackoff = time.Millisecond
	}
	f.svc = NewTryOnService(f.generator, f.fetcher, f.compositor, f.storage, zaptest.NewLogger(t), config)
	return f
}

func (f *tryOnFixture) request() domain.TryOnRequest {
	return domain.TryOnRequest{
		ProductID:          "p1",
		ProductImage:       "https://img.example.com/dress.png",
		UserImage:          "data:image/png;base64," + base64.StdEncoding.EncodeToString(f.userPNG),
		Category:           domain.CategoryClothing,
		ProductDescription: "red midi dress",
	}
}

func TestTryOn(t *testing.T) {
	ctx := context.Background()

	t.Run("reachable generator succeeds", func(t *testing.T) {
		f := newTryOnFixture(t, TryOnConfig{})

		result := f.svc.TryOn(ctx, f.request())

		if result.Status != domain.TryOnSucceeded {
			t.Fatalf("Status = %q, want success (reason %q)", result.Status, result.Reason)
		}
		if !strings.HasPrefix(result.ImageReference, "https://cdn.example.com/tryon/") {
			t.Errorf("ImageReference = %q", result.ImageReference)
		}
		if f.generator.Calls() != 1 {
			t.Errorf("generator called %d times, want 1", f.generator.Calls())
		}
		if f.compositor.calls != 0 {
			t.Errorf("compositor called %d times, want 0", f.compositor.calls)
		}
		if len(f.storage.keys) != 1 || f.storage.keys[0] != result.StorageKey {
			t.Errorf("stored keys = %v, result key = %q", f.storage.keys, result.StorageKey)
		}
		req := f.generator.lastReq
		if req.Category != domain.CategoryClothing || !strings.Contains(req.Instruction, "wearing") {
			t.Errorf("unexpected generation request: %+v", req.Category)
		}
		if req.User.MIMEType != "image/png" || req.Product.Origin != "remote" || req.User.Origin != "inline" {
			t.Errorf("images not resolved: product=%s/%s user=%s/%s", req.Product.Origin, req.Product.MIMEType, req.User.Origin, req.User.MIMEType)
		}
	})

	t.Run("retries once then succeeds", func(t *testing.T) {
		f := newTryOnFixture(t, TryOnConfig{})
		f.generator.failCount = 1

		result := f.svc.TryOn(ctx, f.request())

		if result.Status != domain.TryOnSucceeded {
			t.Errorf("Status = %q, want success", result.Status)
		}
		if f.generator.Calls() != 2 {
			t.Errorf("generator called %d times, want 2", f.generator.Calls())
		}
	})

	t.Run("two generation failures degrade to local composite", func(t *testing.T) {
		f := newTryOnFixture(t, TryOnConfig{})
		f.generator.failCount = 2

		result := f.svc.TryOn(ctx, f.request())

		if result.Status != domain.TryOnDegradedFallback {
			t.Fatalf("Status = %q, want degraded-fallback", result.Status)
		}
		if result.ImageReference == "" {
			t.Error("degraded result has no image reference")
		}
		if f.generator.Calls() != 2 {
			t.Errorf("generator called %d times, want exactly 2", f.generator.Calls())
		}
		if f.compositor.calls != 1 {
			t.Errorf("compositor called %d times, want 1", f.compositor.calls)
		}
	})

	t.Run("storage failure after fallback fails without image", func(t *testing.T) {
		f := newTryOnFixture(t, TryOnConfig{})
		f.generator.failCount = 2
		f.storage.putError = domain.ErrStorageFailed

		result := f.svc.TryOn(ctx, f.request())

		if result.Status != domain.TryOnFailed {
			t.Fatalf("Status = %q, want failed", result.Status)
		}
		if result.ImageReference != "" {
			t.Errorf("ImageReference = %q, want empty", result.ImageReference)
		}
		if result.Reason != ReasonStorageFailed {
			t.Errorf("Reason = %q", result.Reason)
		}
	})

	t.Run("storage failure downgrades a successful generation", func(t *testing.T) {
		f := newTryOnFixture(t, TryOnConfig{})
		f.storage.putError = errors.New("bucket gone")

		result := f.svc.TryOn(ctx, f.request())

		if result.Status != domain.TryOnFailed || result.ImageReference != "" {
			t.Errorf("result = %+v, want failed without image", result)
		}
	})

	t.Run("missing user image fails before any external call", func(t *testing.T) {
		f := newTryOnFixture(t, TryOnConfig{})
		req := f.request()
		req.UserImage = ""

		result := f.svc.TryOn(ctx, req)

		if result.Status != domain.TryOnFailed {
			t.Fatalf("Status = %q, want failed", result.Status)
		}
		if result.Reason != ReasonMissingUserImage {
			t.Errorf("Reason = %q, want %q", result.Reason, ReasonMissingUserImage)
		}
		if f.generator.Calls() != 0 || f.fetcher.calls != 0 || f.compositor.calls != 0 || len(f.storage.keys) != 0 {
			t.Error("external collaborators were called")
		}
	})

	t.Run("fallback failure fails", func(t *testing.T) {
		f := newTryOnFixture(t, TryOnConfig{})
		f.generator.failCount = 2
		f.compositor.err = errors.New("decode error")

		result := f.svc.TryOn(ctx, f.request())

		if result.Status != domain.TryOnFailed || result.Reason != ReasonRenderFailed {
			t.Errorf("result = %+v", result)
		}
		if len(f.storage.keys) != 0 {
			t.Error("nothing should be stored")
		}
	})

	t.Run("timeout budget goes straight to fallback", func(t *testing.T) {
		f := newTryOnFixture(t, TryOnConfig{Timeout: 50 * time.Millisecond, RetryBackoff: time.Second})
		f.generator.failCount = 1

		start := time.Now()
		result := f.svc.TryOn(ctx, f.request())

		if result.Status != domain.TryOnDegradedFallback {
			t.Errorf("Status = %q, want degraded-fallback", result.Status)
		}
		if f.generator.Calls() != 1 {
			t.Errorf("generator called %d times, want 1", f.generator.Calls())
		}
		if time.Since(start) > 900*time.Millisecond {
			t.Error("retry backoff was not cut short by the budget")
		}
	})

	t.Run("unresolvable image fails", func(t *testing.T) {
		f := newTryOnFixture(t, TryOnConfig{})
		req := f.request()
		req.ProductImage = "https://img.example.com/missing.png"

		result := f.svc.TryOn(ctx, req)

		if result.Status != domain.TryOnFailed || !strings.Contains(result.Reason, "product image") {
			t.Errorf("result = %+v", result)
		}
		if f.generator.Calls() != 0 {
			t.Error("generator should not be called")
		}
	})

	t.Run("bare base64 and non-image payloads", func(t *testing.T) {
		f := newTryOnFixture(t, TryOnConfig{})

		req := f.request()
		req.UserImage = base64.StdEncoding.EncodeToString(f.userPNG)
		if result := f.svc.TryOn(ctx, req); result.Status != domain.TryOnSucceeded {
			t.Errorf("bare base64: Status = %q (%s)", result.Status, result.Reason)
		}

		req.UserImage = base64.StdEncoding.EncodeToString([]byte("just some text, not a picture"))
		if result := f.svc.TryOn(ctx, req); result.Status != domain.TryOnFailed {
			t.Errorf("text payload: Status = %q, want failed", result.Status)
		}

		req.UserImage = "not base64 at all!"
		if result := f.svc.TryOn(ctx, req); result.Status != domain.TryOnFailed {
			t.Errorf("garbage: Status = %q, want failed", result.Status)
		}
	})

	t.Run("oversized image fails", func(t *testing.T) {
		f := newTryOnFixture(t, TryOnConfig{MaxImageBytes: 16})
		result := f.svc.TryOn(ctx, f.request())
		if result.Status != domain.TryOnFailed {
			t.Errorf("Status = %q, want failed", result.Status)
		}
	})

	t.Run("every generation gets a unique key", func(t *testing.T) {
		f := newTryOnFixture(t, TryOnConfig{})
		a := f.svc.TryOn(ctx, f.request())
		b := f.svc.TryOn(ctx, f.request())
		if a.StorageKey == b.StorageKey {
			t.Errorf("keys collide: %s", a.StorageKey)
		}
		if !strings.HasSuffix(a.StorageKey, ".png") {
			t.Errorf("key %q lacks extension", a.StorageKey)
		}
	})

	t.Run("empty category defaults to clothing", func(t *testing.T) {
		f := newTryOnFixture(t, TryOnConfig{})
		req := f.request()
		req.Category = ""
		f.svc.TryOn(ctx, req)
		if f.generator.lastReq.Category != domain.CategoryClothing {
			t.Errorf("Category = %q, want clothing", f.generator.lastReq.Category)
		}
	})
}

func TestStorageKey(t *testing.T) {
	f := newTryOnFixture(t, TryOnConfig{KeyPrefix: "/previews/"})
	f.svc.newID = func() string { return "fixed-id" }
	at := time.Date(2026, 5, 7, 10, 0, 0, 42, time.UTC)

	key := f.svc.storageKey(f.request(), "image/jpeg", at)

	if !strings.HasPrefix(key, "previews/2026/05/07/") {
		t.Errorf("key = %q", key)
	}
	if !strings.HasSuffix(key, "-fixed-id.jpg") {
		t.Errorf("key = %q", key)
	}
}

func TestTryOnInstruction(t *testing.T) {
	tests := []struct {
		category domain.Category
		contains string
	}{
		{domain.CategoryClothing, "wearing"},
		{domain.CategoryFurniture, "room"},
		{domain.CategoryPhone, "holding"},
		{domain.CategoryOther, "scene"},
	}
	for _, tt := range tests {
		got := TryOnInstruction(tt.category, "oak finish")
		if !strings.Contains(got, tt.contains) {
			t.Errorf("%s instruction lacks %q", tt.category, tt.contains)
		}
		if !strings.HasSuffix(got, "oak finish") {
			t.Errorf("%s instruction lacks description", tt.category)
		}
	}
}
