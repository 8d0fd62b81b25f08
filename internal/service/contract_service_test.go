package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/nurpe/contracts-service/internal/model"
	"github.com/nurpe/contracts-service/internal/storage"
)

type fakeStore struct {
	mu        sync.Mutex
	rows      []model.Contract
	createErr error
	updateErr error
	deleteErr error
	listErr   error
}

func (f *fakeStore) List(context.Context) ([]model.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.Contract{}, f.rows...), nil
}

func (f *fakeStore) Get(_ context.Context, id uuid.UUID) (*model.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].ID == id {
			c := f.rows[i]
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeStore) Create(_ context.Context, c *model.Contract) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	c.ID = uuid.New()
	f.rows = append(f.rows, *c)
	return nil
}

func (f *fakeStore) Update(_ context.Context, id uuid.UUID, fields model.ContractFields, attachment *string) (*model.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	for i := range f.rows {
		if f.rows[i].ID != id {
			continue
		}
		row := &f.rows[i]
		row.ClientName = fields.ClientName
		row.StartDate = fields.StartDate
		row.EndDate = fields.EndDate
		row.ContractValue = fields.ContractValue
		row.DeliveryManager = fields.DeliveryManager
		if attachment != nil {
			row.Attachment = *attachment
		}
		c := *row
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeStore) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// failingFiles rejects every save.
type failingFiles struct {
	*storage.MemoryStore
}

func (failingFiles) Save(context.Context, string, io.Reader) (string, error) {
	return "", errors.New("disk full")
}

type stubGenerator struct {
	report model.RegisterReport
}

func (g *stubGenerator) Generate(report model.RegisterReport) ([]byte, error) {
	g.report = report
	return []byte("export"), nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func acmeFields() model.ContractFields {
	return model.ContractFields{
		ClientName:      "Acme",
		StartDate:       date(2024, 1, 1),
		EndDate:         date(2024, 6, 1),
		ContractValue:   1000,
		DeliveryManager: "Jo",
	}
}

func upload(name, content string) *model.Upload {
	return &model.Upload{Filename: name, Size: int64(len(content)), Content: strings.NewReader(content)}
}

func newTestService() (*ContractService, *fakeStore, *storage.MemoryStore) {
	store := &fakeStore{}
	files := storage.NewMemoryStore("/uploads")
	svc := NewContractService(store, files, &stubGenerator{}, &stubGenerator{}, zerolog.New(io.Discard))
	return svc, store, files
}

func readAttachment(t *testing.T, svc *ContractService, ref string) string {
	t.Helper()
	rc, _, err := svc.OpenAttachment(context.Background(), ref)
	if err != nil {
		t.Fatalf("OpenAttachment(%s) error = %v", ref, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestContractService_CreateThenListContainsRecord(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, acmeFields(), nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == uuid.Nil {
		t.Fatal("Create() returned no id")
	}
	if created.Attachment != "" {
		t.Fatalf("attachment = %q, want empty", created.Attachment)
	}

	contracts, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	matches := 0
	for _, c := range contracts {
		if c.ID == created.ID && c.Fields() == acmeFields() {
			matches++
		}
	}
	if matches != 1 {
		t.Fatalf("List() has %d matching records, want 1: %+v", matches, contracts)
	}
}

func TestContractService_CreateWithAttachment(t *testing.T) {
	svc, _, _ := newTestService()

	created, err := svc.Create(context.Background(), acmeFields(), upload("Signed Contract.PDF", "%PDF-1.4 bytes"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !strings.HasPrefix(created.Attachment, "/uploads/") || !strings.HasSuffix(created.Attachment, ".pdf") {
		t.Fatalf("attachment = %q", created.Attachment)
	}
	if got := readAttachment(t, svc, created.Attachment); got != "%PDF-1.4 bytes" {
		t.Fatalf("attachment content = %q", got)
	}
}

func TestContractService_CreateRollsBackFileWhenInsertFails(t *testing.T) {
	svc, store, files := newTestService()
	store.createErr = errors.New("constraint violation")

	_, err := svc.Create(context.Background(), acmeFields(), upload("a.pdf", "x"))
	if err == nil {
		t.Fatal("Create() should fail")
	}
	objects, _ := files.List(context.Background())
	if len(objects) != 0 {
		t.Fatalf("stored files after failed create = %+v", objects)
	}
}

func TestContractService_CreateStorageError(t *testing.T) {
	store := &fakeStore{}
	svc := NewContractService(store, failingFiles{storage.NewMemoryStore("/uploads")}, nil, nil, zerolog.New(io.Discard))

	_, err := svc.Create(context.Background(), acmeFields(), upload("a.pdf", "x"))
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("Create() error = %v, want ErrStorage", err)
	}
	if len(store.rows) != 0 {
		t.Fatal("record inserted despite storage failure")
	}
}

func TestContractService_UpdateReplacesAttachment(t *testing.T) {
	svc, _, files := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, acmeFields(), upload("old.pdf", "old"))
	if err != nil {
		t.Fatal(err)
	}
	oldRef := created.Attachment

	fields := acmeFields()
	fields.ContractValue = 2000
	updated, err := svc.Update(ctx, created.ID, fields, upload("new.docx", "new"))
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Attachment == oldRef || updated.ContractValue != 2000 {
		t.Fatalf("Update() = %+v", updated)
	}
	if files.Has(oldRef) {
		t.Fatalf("old attachment %s still stored", oldRef)
	}
	if _, _, err := svc.OpenAttachment(ctx, oldRef); !errors.Is(err, ErrNotFound) {
		t.Fatalf("OpenAttachment(old) error = %v, want ErrNotFound", err)
	}
	if got := readAttachment(t, svc, updated.Attachment); got != "new" {
		t.Fatalf("new attachment content = %q", got)
	}
}

func TestContractService_UpdateWithoutFileKeepsAttachment(t *testing.T) {
	svc, _, files := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, acmeFields(), upload("a.pdf", "x"))
	if err != nil {
		t.Fatal(err)
	}

	fields := acmeFields()
	fields.DeliveryManager = "Sam"
	updated, err := svc.Update(ctx, created.ID, fields, nil)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Attachment != created.Attachment || updated.DeliveryManager != "Sam" {
		t.Fatalf("Update() = %+v", updated)
	}
	if !files.Has(created.Attachment) {
		t.Fatal("attachment removed by update without file")
	}
}

func TestContractService_UpdateUnknownID(t *testing.T) {
	svc, _, files := newTestService()
	ctx := context.Background()

	if _, err := svc.Update(ctx, uuid.New(), acmeFields(), nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update() error = %v, want ErrNotFound", err)
	}
	if _, err := svc.Update(ctx, uuid.New(), acmeFields(), upload("a.pdf", "x")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update() with file error = %v, want ErrNotFound", err)
	}
	objects, _ := files.List(ctx)
	if len(objects) != 0 {
		t.Fatalf("new file kept for unknown contract: %+v", objects)
	}
}

func TestContractService_UpdateFailureKeepsOldAttachment(t *testing.T) {
	svc, store, files := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, acmeFields(), upload("old.pdf", "old"))
	if err != nil {
		t.Fatal(err)
	}

	store.updateErr = errors.New("write failed")
	if _, err := svc.Update(ctx, created.ID, acmeFields(), upload("new.pdf", "new")); err == nil {
		t.Fatal("Update() should fail")
	}

	objects, _ := files.List(ctx)
	if len(objects) != 1 || objects[0].Ref != created.Attachment {
		t.Fatalf("stored files = %+v, want only %s", objects, created.Attachment)
	}
}

func TestContractService_DeleteRemovesRecordAndFile(t *testing.T) {
	svc, _, files := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, acmeFields(), upload("a.pdf", "x"))
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	contracts, _ := svc.List(ctx)
	for _, c := range contracts {
		if c.ID == created.ID {
			t.Fatal("deleted contract still listed")
		}
	}
	if files.Has(created.Attachment) {
		t.Fatal("attachment still stored after delete")
	}

	if err := svc.Delete(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestContractService_DeleteFailureKeepsAttachment(t *testing.T) {
	svc, store, files := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, acmeFields(), upload("a.pdf", "x"))
	if err != nil {
		t.Fatal(err)
	}

	store.deleteErr = errors.New("write failed")
	if err := svc.Delete(ctx, created.ID); err == nil {
		t.Fatal("Delete() should fail")
	}
	if !files.Has(created.Attachment) {
		t.Fatal("attachment removed while the contract still references it")
	}
}

func TestContractService_DeleteToleratesMissingFile(t *testing.T) {
	svc, _, files := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, acmeFields(), upload("a.pdf", "x"))
	if err != nil {
		t.Fatal(err)
	}
	if err := files.Remove(ctx, created.Attachment); err != nil {
		t.Fatal(err)
	}

	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestContractService_StoreUnavailable(t *testing.T) {
	svc, store, _ := newTestService()
	store.listErr = &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

	if _, err := svc.List(context.Background()); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("List() error = %v, want ErrStoreUnavailable", err)
	}
}

func TestValidateFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.ContractFields)
		ok     bool
	}{
		{"valid", func(*model.ContractFields) {}, true},
		{"same day", func(f *model.ContractFields) { f.EndDate = f.StartDate }, true},
		{"blank client", func(f *model.ContractFields) { f.ClientName = "   " }, false},
		{"missing start", func(f *model.ContractFields) { f.StartDate = time.Time{} }, false},
		{"missing end", func(f *model.ContractFields) { f.EndDate = time.Time{} }, false},
		{"end before start", func(f *model.ContractFields) { f.EndDate = date(2023, 12, 31) }, false},
		{"negative value", func(f *model.ContractFields) { f.ContractValue = -1 }, false},
		{"nan value", func(f *model.ContractFields) { f.ContractValue = math.NaN() }, false},
		{"infinite value", func(f *model.ContractFields) { f.ContractValue = math.Inf(1) }, false},
		{"cents", func(f *model.ContractFields) { f.ContractValue = 1000.55 }, true},
		{"sub cent value", func(f *model.ContractFields) { f.ContractValue = 1000.555 }, false},
		{"largest value", func(f *model.ContractFields) { f.ContractValue = 9999999999999998 }, true},
		{"value overflows column", func(f *model.ContractFields) { f.ContractValue = 1e16 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := acmeFields()
			tt.mutate(&fields)
			_, err := ValidateFields(fields)
			if tt.ok && err != nil {
				t.Fatalf("ValidateFields() error = %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("ValidateFields() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestValidateFields_Normalizes(t *testing.T) {
	fields := acmeFields()
	fields.ClientName = "  Acme  "
	fields.StartDate = time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC)

	got, err := ValidateFields(fields)
	if err != nil {
		t.Fatal(err)
	}
	if got.ClientName != "Acme" || !got.StartDate.Equal(date(2024, 1, 1)) {
		t.Fatalf("ValidateFields() = %+v", got)
	}
}

func TestContractService_Exports(t *testing.T) {
	store := &fakeStore{}
	excel := &stubGenerator{}
	pdf := &stubGenerator{}
	svc := NewContractService(store, storage.NewMemoryStore("/uploads"), excel, pdf, zerolog.New(io.Discard))
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	if _, err := svc.Create(ctx, acmeFields(), nil); err != nil {
		t.Fatal(err)
	}

	xlsx, err := svc.ExportXLSX(ctx)
	if err != nil {
		t.Fatalf("ExportXLSX() error = %v", err)
	}
	if xlsx.FileName != "contracts-20240301.xlsx" || !bytes.Equal(xlsx.Content, []byte("export")) {
		t.Fatalf("ExportXLSX() = %s", xlsx.FileName)
	}
	if len(excel.report.Contracts) != 1 || excel.report.ActiveCount != 1 {
		t.Fatalf("excel report = %+v", excel.report)
	}

	doc, err := svc.ExportPDF(ctx)
	if err != nil {
		t.Fatalf("ExportPDF() error = %v", err)
	}
	if doc.FileName != "contracts-20240301.pdf" {
		t.Fatalf("ExportPDF() file name = %s", doc.FileName)
	}
}
