// Package wizard holds the quote wizard's step cursor and the transitions
// between steps. Apply is pure; callers own the State value.
package wizard

import (
	"errors"
	"fmt"

	"zentoso/backend/internal/catalog"
	"zentoso/backend/internal/domain"
	"zentoso/backend/internal/validation"
)

var (
	ErrUnknownVehicle    = errors.New("unknown vehicle")
	ErrUnknownFinish     = errors.New("unknown finish")
	ErrUnknownOption     = errors.New("unknown option")
	ErrUnknownAction     = errors.New("unknown action")
	ErrUnknownField      = errors.New("unknown contact field")
	ErrInvalidTransition = errors.New("invalid transition")
)

type ActionType string

const (
	ActionSelectVehicle       ActionType = "select_vehicle"
	ActionSelectFinish        ActionType = "select_finish"
	ActionSetOption           ActionType = "set_option"
	ActionClearOption         ActionType = "clear_option"
	ActionSetContactField     ActionType = "set_contact_field"
	ActionNext                ActionType = "next"
	ActionBack                ActionType = "back"
	ActionEditContact         ActionType = "edit_contact"
	ActionReset               ActionType = "reset"
	ActionSubmissionSucceeded ActionType = "submission_succeeded"
)

type Action struct {
	Type      ActionType
	VehicleID string
	FinishID  domain.FinishID
	OptionID  string
	Selected  bool
	Quantity  uint
	Field     string
	Value     string
}

type State struct {
	Step      domain.Step
	Selection domain.Selection
	Contact   domain.ContactForm
	Errors    map[string]string
}

func NewState() State {
	return State{
		Step:      domain.StepVehicleSelect,
		Selection: domain.Selection{Options: map[string]domain.OptionSelection{}},
		Contact:   domain.NewContactForm(),
	}
}

// Clone deep-copies the maps so the copy can be changed freely.
func (s State) Clone() State {
	out := s
	out.Selection.Options = make(map[string]domain.OptionSelection, len(s.Selection.Options))
	for id, sel := range s.Selection.Options {
		out.Selection.Options[id] = sel
	}
	if s.Errors != nil {
		out.Errors = make(map[string]string, len(s.Errors))
		for field, msg := range s.Errors {
			out.Errors[field] = msg
		}
	}
	return out
}

type Machine struct {
	catalog   *catalog.Catalog
	validator *validation.Validator
}

func NewMachine(c *catalog.Catalog, v *validation.Validator) *Machine {
	if c == nil {
		c = catalog.Default()
	}
	if v == nil {
		v = validation.New(nil)
	}
	return &Machine{catalog: c, validator: v}
}

// Apply returns the state after action. On error the returned state equals
// the input.
func (m *Machine) Apply(state State, action Action) (State, error) {
	if action.Type == ActionReset {
		return NewState(), nil
	}
	if state.Step == domain.StepComplete {
		switch action.Type {
		case ActionNext, ActionBack:
			return state, nil
		case ActionSelectVehicle, ActionSelectFinish, ActionSetOption, ActionClearOption,
			ActionSetContactField, ActionEditContact, ActionSubmissionSucceeded:
			return state, fmt.Errorf("%w: %s at %s", ErrInvalidTransition, action.Type, state.Step)
		}
		return state, fmt.Errorf("%w: %q", ErrUnknownAction, action.Type)
	}
	// The confirmed quote and contact are frozen; edits go through back or
	// edit_contact.
	if state.Step == domain.StepFinalConfirm {
		switch action.Type {
		case ActionSelectVehicle, ActionSelectFinish, ActionSetOption, ActionClearOption, ActionSetContactField:
			return state, fmt.Errorf("%w: %s at %s", ErrInvalidTransition, action.Type, state.Step)
		}
	}

	next := state.Clone()
	switch action.Type {
	case ActionSelectVehicle:
		if _, ok := m.catalog.Vehicle(action.VehicleID); !ok {
			return state, fmt.Errorf("%w: %q", ErrUnknownVehicle, action.VehicleID)
		}
		next.Selection.VehicleID = action.VehicleID
	case ActionSelectFinish:
		if _, ok := m.catalog.Finish(action.FinishID); !ok {
			return state, fmt.Errorf("%w: %q", ErrUnknownFinish, action.FinishID)
		}
		next.Selection.FinishID = action.FinishID
	case ActionSetOption:
		option, ok := m.catalog.Option(action.OptionID)
		if !ok {
			return state, fmt.Errorf("%w: %q", ErrUnknownOption, action.OptionID)
		}
		next.Selection.Options[option.ID] = optionSelection(option, action)
	case ActionClearOption:
		if _, ok := m.catalog.Option(action.OptionID); !ok {
			return state, fmt.Errorf("%w: %q", ErrUnknownOption, action.OptionID)
		}
		delete(next.Selection.Options, action.OptionID)
	case ActionSetContactField:
		contact, err := setContactField(next.Contact, action.Field, action.Value)
		if err != nil {
			return state, err
		}
		next.Contact = contact
		if next.Errors != nil {
			delete(next.Errors, action.Field)
			if len(next.Errors) == 0 {
				next.Errors = nil
			}
		}
	case ActionNext:
		next = m.forward(next)
	case ActionBack:
		next = back(next)
	case ActionEditContact:
		if state.Step != domain.StepFinalConfirm {
			return state, fmt.Errorf("%w: %s at %s", ErrInvalidTransition, action.Type, state.Step)
		}
		next.Step = domain.StepContactForm
	case ActionSubmissionSucceeded:
		if state.Step != domain.StepFinalConfirm {
			return state, fmt.Errorf("%w: %s at %s", ErrInvalidTransition, action.Type, state.Step)
		}
		next.Step = domain.StepComplete
	default:
		return state, fmt.Errorf("%w: %q", ErrUnknownAction, action.Type)
	}
	return next, nil
}

func (m *Machine) forward(s State) State {
	switch s.Step {
	case domain.StepVehicleSelect:
		if _, ok := m.catalog.Vehicle(s.Selection.VehicleID); ok {
			s.Step = domain.StepPaintSelect
		}
	case domain.StepPaintSelect:
		if _, ok := m.catalog.Finish(s.Selection.FinishID); ok {
			s.Step = domain.StepOptionSelect
		}
	case domain.StepOptionSelect:
		s.Step = domain.StepQuoteSummary
	case domain.StepQuoteSummary:
		s.Step = domain.StepContactForm
	case domain.StepContactForm:
		s.Errors = m.validator.ValidateContact(s.Contact)
		if s.Errors == nil {
			s.Step = domain.StepFinalConfirm
		}
	}
	return s
}

func back(s State) State {
	switch s.Step {
	case domain.StepVehicleSelect, domain.StepComplete:
	case domain.StepFinalConfirm:
		s.Step = domain.StepContactForm
	default:
		s.Step--
	}
	return s
}

// Non-per-unit options are either on or off; quantity is pinned to 1.
func optionSelection(option domain.OptionItem, action Action) domain.OptionSelection {
	if !action.Selected {
		return domain.OptionSelection{}
	}
	if option.Price.Mode != domain.PricingPerUnit {
		return domain.OptionSelection{Selected: true, Quantity: 1}
	}
	return domain.OptionSelection{Selected: true, Quantity: action.Quantity}
}

func setContactField(form domain.ContactForm, field string, value string) (domain.ContactForm, error) {
	switch field {
	case "name":
		form.Name = value
	case "furigana":
		form.Furigana = value
	case "phone":
		form.Phone = value
	case "email":
		form.Email = value
	case "preferredDate1":
		form.PreferredDate1 = value
	case "preferredTime1":
		form.PreferredTime1 = value
	case "preferredDate2":
		form.PreferredDate2 = value
	case "preferredTime2":
		form.PreferredTime2 = value
	case "preferredDate3":
		form.PreferredDate3 = value
	case "preferredTime3":
		form.PreferredTime3 = value
	case "inquiry":
		form.Inquiry = value
	case "inquiryType":
		form.InquiryType = domain.InquiryType(value)
	default:
		return form, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return form, nil
}
