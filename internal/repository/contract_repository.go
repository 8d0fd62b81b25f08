package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nurpe/contracts-service/internal/model"
)

type ContractRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewContractRepository(db *gorm.DB) *ContractRepository {
	return &ContractRepository{db: db, now: time.Now}
}

// List returns every contract in insertion order.
func (r *ContractRepository) List(ctx context.Context) ([]model.Contract, error) {
	var contracts []model.Contract
	if err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Order("id ASC").
		Find(&contracts).Error; err != nil {
		return nil, err
	}
	if contracts == nil {
		contracts = []model.Contract{}
	}
	return contracts, nil
}

// Get returns gorm.ErrRecordNotFound for unknown ids.
func (r *ContractRepository) Get(ctx context.Context, id uuid.UUID) (*model.Contract, error) {
	var contract model.Contract
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&contract).Error; err != nil {
		return nil, err
	}
	return &contract, nil
}

// Create inserts the contract, assigning a fresh id when it has none.
func (r *ContractRepository) Create(ctx context.Context, contract *model.Contract) error {
	if contract.ID == uuid.Nil {
		contract.ID = uuid.New()
	}
	now := r.now().UTC()
	contract.CreatedAt = now
	contract.UpdatedAt = now
	return r.db.WithContext(ctx).Create(contract).Error
}

// Update replaces the editable fields of a contract. The attachment column is
// only written when attachment is not nil. Unknown ids yield
// gorm.ErrRecordNotFound rather than a silent no-op.
func (r *ContractRepository) Update(ctx context.Context, id uuid.UUID, fields model.ContractFields, attachment *string) (*model.Contract, error) {
	values := map[string]interface{}{
		"client_name":      fields.ClientName,
		"start_date":       fields.StartDate,
		"end_date":         fields.EndDate,
		"contract_value":   fields.ContractValue,
		"delivery_manager": fields.DeliveryManager,
		"updated_at":       r.now().UTC(),
	}
	if attachment != nil {
		values["attachment"] = *attachment
	}

	result := r.db.WithContext(ctx).
		Model(&model.Contract{}).
		Where("id = ?", id).
		Updates(values)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.Get(ctx, id)
}

// Delete removes the contract permanently.
func (r *ContractRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Contract{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
