package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nurpe/contracts-service/internal/config"
	"github.com/nurpe/contracts-service/internal/db"
	"github.com/nurpe/contracts-service/internal/excel"
	httpapi "github.com/nurpe/contracts-service/internal/http"
	"github.com/nurpe/contracts-service/internal/model"
	"github.com/nurpe/contracts-service/internal/pdf"
	"github.com/nurpe/contracts-service/internal/repository"
	"github.com/nurpe/contracts-service/internal/service"
	"github.com/nurpe/contracts-service/internal/storage"
)

func newAPI(t *testing.T) *Client {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Environment: "test",
		HTTP:        config.HTTPConfig{AllowedOrigins: []string{"*"}, MaxUploadBytes: 1 << 20},
		DB: config.DBConfig{
			Driver:       config.DBDriverSQLite,
			DSN:          filepath.Join(t.TempDir(), "contracts.db"),
			MaxOpenConns: 1,
			AutoMigrate:  true,
		},
		Storage: config.StorageConfig{Type: config.StorageMemory, PublicPrefix: "/uploads"},
	}
	log := zerolog.New(io.Discard)
	database, err := db.New(cfg, log)
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	sqlDB, _ := database.DB()
	t.Cleanup(func() { sqlDB.Close() })

	svc := service.NewContractService(
		repository.NewContractRepository(database),
		storage.NewMemoryStore(cfg.Storage.PublicPrefix),
		excel.NewGenerator(),
		pdf.NewGenerator(),
		log,
	)
	router := httpapi.NewRouter(httpapi.NewHandler(svc, cfg, log), cfg.HTTP.AllowedOrigins, log)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return New(server.URL+"/", WithHTTPClient(server.Client()))
}

func acme() model.ContractFields {
	return model.ContractFields{
		ClientName:      "Acme",
		StartDate:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		ContractValue:   1000,
		DeliveryManager: "Jo",
	}
}

func TestClient_Lifecycle(t *testing.T) {
	api := newAPI(t)
	ctx := context.Background()

	created, err := api.Create(ctx, acme(), &model.Upload{Filename: "scan.pdf", Content: strings.NewReader("pdf bytes")})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == uuid.Nil || created.Attachment == "" {
		t.Fatalf("Create() = %+v", created)
	}

	resp, err := http.Get(api.AttachmentURL(created.Attachment))
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(data) != "pdf bytes" {
		t.Fatalf("attachment = %q", data)
	}

	fields := acme()
	fields.ContractValue = 1234.5
	updated, err := api.Update(ctx, created.ID, fields, nil)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.ContractValue != 1234.5 || updated.Attachment != created.Attachment {
		t.Fatalf("Update() = %+v", updated)
	}

	contracts, err := api.List(ctx)
	if err != nil || len(contracts) != 1 {
		t.Fatalf("List() = %+v, %v", contracts, err)
	}

	if err := api.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := api.Delete(ctx, created.ID); !IsNotFound(err) {
		t.Fatalf("second Delete() error = %v, want not found", err)
	}
}

func TestClient_ValidationError(t *testing.T) {
	api := newAPI(t)

	fields := acme()
	fields.EndDate = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := api.Create(context.Background(), fields, nil)

	apiErr, ok := err.(*APIError)
	if !ok || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("Create() error = %v, want 400 APIError", err)
	}
	if !strings.Contains(apiErr.Message, "endDate") {
		t.Fatalf("message = %q", apiErr.Message)
	}
}

func TestDecodeError_PlainText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := New(server.URL).List(context.Background())
	apiErr, ok := err.(*APIError)
	if !ok || apiErr.StatusCode != http.StatusBadGateway || apiErr.Message != "upstream down" {
		t.Fatalf("List() error = %#v", err)
	}
}
