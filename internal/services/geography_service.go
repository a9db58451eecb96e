package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

const (
	stateIDPrefix = "sta_"
	cityIDPrefix  = "cty_"
)

var (
	// ErrGeographyInvalidInput indicates the caller supplied invalid input parameters.
	ErrGeographyInvalidInput = errors.New("geography: invalid input")
	// ErrStateNotFound indicates the requested state does not exist.
	ErrStateNotFound = errors.New("geography: state not found")
	// ErrCityNotFound indicates the requested city does not exist.
	ErrCityNotFound = errors.New("geography: city not found")
	// ErrGeographyUnavailable indicates geography dependencies are currently unavailable.
	ErrGeographyUnavailable = errors.New("geography: unavailable")
)

// GeographyServiceDeps wires the dependencies required by the geography service.
type GeographyServiceDeps struct {
	Geographies repositories.GeographyRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type geographyService struct {
	geographies repositories.GeographyRepository
	now         func() time.Time
	newID       func() string
	logger      func(ctx context.Context, event string, fields map[string]any)
}

// NewGeographyService constructs a GeographyService validating required dependencies.
func NewGeographyService(deps GeographyServiceDeps) (GeographyService, error) {
	if deps.Geographies == nil {
		return nil, errors.New("geography service: geography repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &geographyService{
		geographies: deps.Geographies,
		now:         func() time.Time { return clock().UTC() },
		newID:       idGen,
		logger:      logger,
	}, nil
}

func (s *geographyService) CreateState(ctx context.Context, cmd CreateStateCommand) (State, error) {
	name := strings.TrimSpace(cmd.Name)
	code := strings.ToUpper(strings.TrimSpace(cmd.Code))
	if name == "" {
		return State{}, fmt.Errorf("%w: state name is required", ErrGeographyInvalidInput)
	}
	if code == "" {
		return State{}, fmt.Errorf("%w: state code is required", ErrGeographyInvalidInput)
	}

	now := s.now()
	state := domain.State{
		ID:        stateIDPrefix + s.newID(),
		Name:      name,
		Code:      code,
		Capital:   strings.TrimSpace(cmd.Capital),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.geographies.InsertState(ctx, state); err != nil {
		return State{}, s.translateGeographyError(err, ErrStateNotFound)
	}
	return state, nil
}

func (s *geographyService) GetState(ctx context.Context, stateID string) (State, error) {
	stateID = strings.TrimSpace(stateID)
	if stateID == "" {
		return State{}, fmt.Errorf("%w: state id is required", ErrGeographyInvalidInput)
	}
	state, err := s.geographies.FindStateByID(ctx, stateID)
	if err != nil {
		return State{}, s.translateGeographyError(err, ErrStateNotFound)
	}
	return state, nil
}

func (s *geographyService) ListStates(ctx context.Context, query StateQuery) ([]State, error) {
	states, err := s.geographies.ListStates(ctx, repositories.StateListFilter{
		Name: strings.TrimSpace(query.Name),
		Code: strings.ToUpper(strings.TrimSpace(query.Code)),
	})
	if err != nil {
		return nil, s.translateGeographyError(err, ErrStateNotFound)
	}
	return states, nil
}

// CreateCity records a city after confirming its state exists.
func (s *geographyService) CreateCity(ctx context.Context, cmd CreateCityCommand) (City, error) {
	name := strings.TrimSpace(cmd.Name)
	stateID := strings.TrimSpace(cmd.StateID)
	if name == "" {
		return City{}, fmt.Errorf("%w: city name is required", ErrGeographyInvalidInput)
	}
	if stateID == "" {
		return City{}, fmt.Errorf("%w: state id is required", ErrGeographyInvalidInput)
	}
	if _, err := s.geographies.FindStateByID(ctx, stateID); err != nil {
		return City{}, s.translateGeographyError(err, ErrStateNotFound)
	}

	now := s.now()
	city := domain.City{
		ID:         cityIDPrefix + s.newID(),
		Name:       name,
		Code:       strings.ToUpper(strings.TrimSpace(cmd.Code)),
		StateID:    stateID,
		PostalCode: strings.TrimSpace(cmd.PostalCode),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.geographies.InsertCity(ctx, city); err != nil {
		return City{}, s.translateGeographyError(err, ErrCityNotFound)
	}
	return city, nil
}

func (s *geographyService) GetCity(ctx context.Context, cityID string) (City, error) {
	cityID = strings.TrimSpace(cityID)
	if cityID == "" {
		return City{}, fmt.Errorf("%w: city id is required", ErrGeographyInvalidInput)
	}
	city, err := s.geographies.FindCityByID(ctx, cityID)
	if err != nil {
		return City{}, s.translateGeographyError(err, ErrCityNotFound)
	}
	return city, nil
}

func (s *geographyService) ListCities(ctx context.Context, query CityQuery) ([]City, error) {
	cities, err := s.geographies.ListCities(ctx, repositories.CityListFilter{
		Name:    strings.TrimSpace(query.Name),
		StateID: strings.TrimSpace(query.StateID),
	})
	if err != nil {
		return nil, s.translateGeographyError(err, ErrCityNotFound)
	}
	return cities, nil
}

func (s *geographyService) translateGeographyError(err error, notFound error) error {
	var storeErr *repositories.StoreError
	if errors.As(err, &storeErr) {
		switch {
		case storeErr.IsNotFound():
			return fmt.Errorf("%w: %s", notFound, storeErr.Message)
		case storeErr.IsUnavailable():
			return fmt.Errorf("%w: %s", ErrGeographyUnavailable, storeErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", ErrGeographyUnavailable, err)
}
