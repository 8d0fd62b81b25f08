package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nurpe/contracts-service/internal/model"
	"github.com/nurpe/contracts-service/internal/storage"
)

type ContractStore interface {
	List(ctx context.Context) ([]model.Contract, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Contract, error)
	Create(ctx context.Context, contract *model.Contract) error
	Update(ctx context.Context, id uuid.UUID, fields model.ContractFields, attachment *string) (*model.Contract, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type ExcelGenerator interface {
	Generate(report model.RegisterReport) ([]byte, error)
}

type PDFGenerator interface {
	Generate(report model.RegisterReport) ([]byte, error)
}

// ContractService composes the record store and the attachment store.
//
// Files are written before the record that references them. Update and Delete
// write the record first and remove the old file afterwards, not the other way
// round, so a failed record write never leaves a contract pointing at a
// deleted file. A failed record write removes the file it just stored.
// Whatever cleanup still fails leaves an unreferenced file behind, which the
// Sweeper reclaims.
type ContractService struct {
	store ContractStore
	files storage.Store
	excel ExcelGenerator
	pdf   PDFGenerator
	log   zerolog.Logger
	now   func() time.Time
}

type ExportResult struct {
	FileName string
	Content  []byte
}

func NewContractService(store ContractStore, files storage.Store, excel ExcelGenerator, pdf PDFGenerator, log zerolog.Logger) *ContractService {
	return &ContractService{
		store: store,
		files: files,
		excel: excel,
		pdf:   pdf,
		log:   log.With().Str("component", "contracts").Logger(),
		now:   time.Now,
	}
}

func (s *ContractService) List(ctx context.Context) ([]model.Contract, error) {
	contracts, err := s.store.List(ctx)
	if err != nil {
		return nil, storeError("list contracts", err)
	}
	return contracts, nil
}

func (s *ContractService) Get(ctx context.Context, id uuid.UUID) (*model.Contract, error) {
	contract, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, storeError("get contract", err)
	}
	return contract, nil
}

// Create stores the upload, if any, and inserts a new contract referencing it.
func (s *ContractService) Create(ctx context.Context, fields model.ContractFields, upload *model.Upload) (*model.Contract, error) {
	fields, err := ValidateFields(fields)
	if err != nil {
		return nil, err
	}

	contract := &model.Contract{
		ClientName:      fields.ClientName,
		StartDate:       fields.StartDate,
		EndDate:         fields.EndDate,
		ContractValue:   fields.ContractValue,
		DeliveryManager: fields.DeliveryManager,
	}

	if upload != nil {
		ref, err := s.saveUpload(ctx, upload)
		if err != nil {
			return nil, err
		}
		contract.Attachment = ref
	}

	if err := s.store.Create(ctx, contract); err != nil {
		if contract.HasAttachment() {
			s.discard(ctx, contract.Attachment, "rollback of failed create")
		}
		return nil, storeError("create contract", err)
	}

	s.log.Info().
		Str("contract_id", contract.ID.String()).
		Str("attachment", contract.Attachment).
		Msg("contract created")
	return contract, nil
}

// Update replaces the editable fields of the contract. Without an upload the
// attachment is left as is; with one, the new file replaces the old file,
// which is deleted once the record no longer references it.
func (s *ContractService) Update(ctx context.Context, id uuid.UUID, fields model.ContractFields, upload *model.Upload) (*model.Contract, error) {
	fields, err := ValidateFields(fields)
	if err != nil {
		return nil, err
	}

	if upload == nil {
		contract, err := s.store.Update(ctx, id, fields, nil)
		if err != nil {
			return nil, storeError("update contract", err)
		}
		s.log.Info().Str("contract_id", id.String()).Msg("contract updated")
		return contract, nil
	}

	ref, err := s.saveUpload(ctx, upload)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.Get(ctx, id)
	if err != nil {
		s.discard(ctx, ref, "rollback of failed update")
		return nil, storeError("get contract", err)
	}

	contract, err := s.store.Update(ctx, id, fields, &ref)
	if err != nil {
		s.discard(ctx, ref, "rollback of failed update")
		return nil, storeError("update contract", err)
	}

	if existing.HasAttachment() && existing.Attachment != ref {
		s.discard(ctx, existing.Attachment, "replaced attachment")
	}

	s.log.Info().
		Str("contract_id", id.String()).
		Str("attachment", ref).
		Msg("contract updated with new attachment")
	return contract, nil
}

// Delete removes the contract and then its attachment.
func (s *ContractService) Delete(ctx context.Context, id uuid.UUID) error {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return storeError("get contract", err)
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return storeError("delete contract", err)
	}

	if existing.HasAttachment() {
		s.discard(ctx, existing.Attachment, "deleted contract")
	}

	s.log.Info().Str("contract_id", id.String()).Msg("contract deleted")
	return nil
}

// OpenAttachment streams a stored file by its public reference.
func (s *ContractService) OpenAttachment(ctx context.Context, ref string) (io.ReadCloser, storage.Object, error) {
	rc, obj, err := s.files.Open(ctx, ref)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidRef) {
			return nil, storage.Object{}, ErrNotFound
		}
		return nil, storage.Object{}, fmt.Errorf("%w: open %s: %v", ErrStorage, ref, err)
	}
	return rc, obj, nil
}

func (s *ContractService) ExportXLSX(ctx context.Context) (*ExportResult, error) {
	report, err := s.register(ctx)
	if err != nil {
		return nil, err
	}
	content, err := s.excel.Generate(report)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		FileName: buildFileName(report, "xlsx"),
		Content:  content,
	}, nil
}

func (s *ContractService) ExportPDF(ctx context.Context) (*ExportResult, error) {
	report, err := s.register(ctx)
	if err != nil {
		return nil, err
	}
	content, err := s.pdf.Generate(report)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		FileName: buildFileName(report, "pdf"),
		Content:  content,
	}, nil
}

func (s *ContractService) register(ctx context.Context) (model.RegisterReport, error) {
	contracts, err := s.List(ctx)
	if err != nil {
		return model.RegisterReport{}, err
	}
	return model.NewRegisterReport(contracts, s.now().UTC()), nil
}

func (s *ContractService) saveUpload(ctx context.Context, upload *model.Upload) (string, error) {
	if upload.Content == nil {
		return "", fmt.Errorf("%w: attachment has no content", ErrInvalidInput)
	}
	ref, err := s.files.Save(ctx, upload.Filename, upload.Content)
	if err != nil {
		return "", fmt.Errorf("%w: save %q: %v", ErrStorage, upload.Filename, err)
	}
	return ref, nil
}

// discard removes a file best-effort. Failures are logged and left to the
// Sweeper.
func (s *ContractService) discard(ctx context.Context, ref, reason string) {
	if err := s.files.Remove(context.WithoutCancel(ctx), ref); err != nil {
		s.log.Warn().
			Err(err).
			Str("attachment", ref).
			Str("reason", reason).
			Msg("failed to remove attachment")
	}
}

// ValidateFields normalizes the editable fields and rejects values no contract
// may hold.
func ValidateFields(fields model.ContractFields) (model.ContractFields, error) {
	fields.ClientName = strings.TrimSpace(fields.ClientName)
	fields.DeliveryManager = strings.TrimSpace(fields.DeliveryManager)
	fields.StartDate = model.DateOnly(fields.StartDate)
	fields.EndDate = model.DateOnly(fields.EndDate)

	if fields.ClientName == "" {
		return fields, fmt.Errorf("%w: clientName is required", ErrInvalidInput)
	}
	if fields.StartDate.IsZero() || fields.EndDate.IsZero() {
		return fields, fmt.Errorf("%w: startDate and endDate are required", ErrInvalidInput)
	}
	if fields.EndDate.Before(fields.StartDate) {
		return fields, fmt.Errorf("%w: endDate must be on or after startDate", ErrInvalidInput)
	}
	if math.IsNaN(fields.ContractValue) || math.IsInf(fields.ContractValue, 0) {
		return fields, fmt.Errorf("%w: contractValue must be a finite number", ErrInvalidInput)
	}
	if fields.ContractValue < 0 {
		return fields, fmt.Errorf("%w: contractValue must not be negative", ErrInvalidInput)
	}
	if fields.ContractValue >= maxContractValue {
		return fields, fmt.Errorf("%w: contractValue must be below %.0f", ErrInvalidInput, maxContractValue)
	}
	if decimals(fields.ContractValue) > 2 {
		return fields, fmt.Errorf("%w: contractValue has more than 2 decimal places", ErrInvalidInput)
	}
	return fields, nil
}

// maxContractValue is the first value the NUMERIC(18,2) column cannot hold.
const maxContractValue = 1e16

// decimals counts the fractional digits of the shortest representation of v.
func decimals(v float64) int {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

func buildFileName(report model.RegisterReport, ext string) string {
	return fmt.Sprintf("contracts-%s.%s", report.GeneratedAt.Format("20060102"), ext)
}
