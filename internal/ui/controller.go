package ui

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nurpe/contracts-service/internal/model"
)

type Mode string

const (
	ModeCreating Mode = "creating"
	ModeEditing  Mode = "editing"
)

// State is everything the page renders. It is rebuilt for every action
// instead of being shared between requests.
type State struct {
	Mode      Mode
	EditingID uuid.UUID
	Form      Form
	Contracts []model.Contract
	Error     string
}

func NewState() *State {
	return &State{Mode: ModeCreating, Contracts: []model.Contract{}}
}

func (s *State) Editing() bool {
	return s.Mode == ModeEditing
}

// API is the subset of the contracts client the page needs.
type API interface {
	List(ctx context.Context) ([]model.Contract, error)
	Create(ctx context.Context, fields model.ContractFields, upload *model.Upload) (*model.Contract, error)
	Update(ctx context.Context, id uuid.UUID, fields model.ContractFields, upload *model.Upload) (*model.Contract, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Controller struct {
	api API
}

func NewController(api API) *Controller {
	return &Controller{api: api}
}

// Load replaces the contract list with the server's.
func (c *Controller) Load(ctx context.Context, state *State) error {
	contracts, err := c.api.List(ctx)
	if err != nil {
		state.Error = fmt.Sprintf("Could not load contracts: %v", err)
		return err
	}
	state.Contracts = contracts
	return nil
}

// Edit switches to editing the listed contract with the given id. The file
// input is never prefilled.
func (c *Controller) Edit(state *State, id uuid.UUID) error {
	for _, contract := range state.Contracts {
		if contract.ID == id {
			state.Mode = ModeEditing
			state.EditingID = id
			state.Form = FormFromContract(contract)
			return nil
		}
	}
	state.Error = "Contract not found"
	return fmt.Errorf("contract %s is not listed", id)
}

func (c *Controller) Cancel(state *State) {
	state.Mode = ModeCreating
	state.EditingID = uuid.Nil
	state.Form.Reset()
}

// Submit creates or updates a contract from the form depending on the mode.
// On success the form is reset, the mode returns to creating and the list
// is fetched again. On failure state keeps the user's input.
func (c *Controller) Submit(ctx context.Context, state *State, upload *model.Upload) error {
	fields, err := state.Form.Fields()
	if err != nil {
		state.Error = err.Error()
		return err
	}

	if state.Editing() {
		updated, err := c.api.Update(ctx, state.EditingID, fields, upload)
		if err != nil {
			state.Error = fmt.Sprintf("Could not update contract: %v", err)
			return err
		}
		for i := range state.Contracts {
			if state.Contracts[i].ID == updated.ID {
				state.Contracts[i] = *updated
			}
		}
	} else {
		created, err := c.api.Create(ctx, fields, upload)
		if err != nil {
			state.Error = fmt.Sprintf("Could not save contract: %v", err)
			return err
		}
		state.Contracts = append(state.Contracts, *created)
	}

	c.Cancel(state)
	return c.Load(ctx, state)
}

// Delete drops the row only after the server confirmed the deletion.
func (c *Controller) Delete(ctx context.Context, state *State, id uuid.UUID) error {
	if err := c.api.Delete(ctx, id); err != nil {
		state.Error = fmt.Sprintf("Could not delete contract: %v", err)
		return err
	}
	kept := state.Contracts[:0]
	for _, contract := range state.Contracts {
		if contract.ID != id {
			kept = append(kept, contract)
		}
	}
	state.Contracts = kept
	if state.Editing() && state.EditingID == id {
		c.Cancel(state)
	}
	return nil
}
