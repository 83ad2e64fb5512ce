package config

import (
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MINIO_ACCESS_KEY_ID", "minio")
	t.Setenv("MINIO_SECRET_ACCESS_KEY", "minio-secret")
	t.Setenv("AUTH_PUBLIC_KEY_PATH", "/etc/idcard/jwt.pub")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Port != 8080 || cfg.API.RenderRateLimit != 60 || cfg.Database.Name != "idcard" || cfg.MinIO.Bucket != "idcards" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	r := cfg.Render
	if r.CanvasScale != 3 || r.ThumbnailWidthPx != 340 || r.FetchConcurrency != 8 || r.MaxImageBytes != 10<<20 {
		t.Fatalf("unexpected render defaults: %+v", r)
	}
	if r.FetchTimeout != 10*time.Second || r.Engine != EngineFPDF || r.DefaultTextColor != "#000000" {
		t.Fatalf("unexpected render defaults: %+v", r)
	}
	if r.MaxThumbnailPx != 2048 || r.MaxImagePixels != 40_000_000 {
		t.Fatalf("unexpected render limits: %+v", r)
	}
	if cfg.Worker.Concurrency != 10 || cfg.Worker.MaxRetry != 5 {
		t.Fatalf("unexpected worker defaults: %+v", cfg.Worker)
	}
	if got := cfg.Redis.Addr(); got != "localhost:6379" {
		t.Fatalf("redis addr: %s", got)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RENDER_ENGINE", " Chromium ")
	t.Setenv("RENDER_FETCH_TIMEOUT", "3s")
	t.Setenv("RENDER_DEFAULT_TEXT_COLOR", "#333")
	t.Setenv("WORKER_CONCURRENCY", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Render.Engine != EngineChromium || cfg.Render.FetchTimeout != 3*time.Second {
		t.Fatalf("unexpected render config: %+v", cfg.Render)
	}
	if cfg.Render.DefaultTextColor != "#333" || cfg.Worker.Concurrency != 4 {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]struct {
		env  map[string]string
		want string
	}{
		"unknown engine":   {env: map[string]string{"RENDER_ENGINE": "latex"}, want: "render engine"},
		"bad text color":   {env: map[string]string{"RENDER_DEFAULT_TEXT_COLOR": "blackish"}, want: "default text color"},
		"missing auth key": {env: map[string]string{"AUTH_PUBLIC_KEY_PATH": ""}, want: "public key path"},
		"zero fetch":       {env: map[string]string{"RENDER_FETCH_CONCURRENCY": "0"}, want: "fetch concurrency"},
		"small max thumb":  {env: map[string]string{"RENDER_MAX_THUMBNAIL_PX": "100"}, want: "max thumbnail"},
		"zero max pixels":  {env: map[string]string{"RENDER_MAX_IMAGE_PIXELS": "0"}, want: "max image pixels"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoad_AuthDisabledNeedsNoKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AUTH_PUBLIC_KEY_PATH", "")
	t.Setenv("AUTH_DISABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Auth.Disabled {
		t.Fatalf("expected auth disabled")
	}
}
