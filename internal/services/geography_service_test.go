package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

type stubGeographyRepository struct {
	insertStateFunc   func(ctx context.Context, state domain.State) error
	insertCityFunc    func(ctx context.Context, city domain.City) error
	findStateByIDFunc func(ctx context.Context, stateID string) (domain.State, error)
	findCityByIDFunc  func(ctx context.Context, cityID string) (domain.City, error)
	listStatesFunc    func(ctx context.Context, filter repositories.StateListFilter) ([]domain.State, error)
	listCitiesFunc    func(ctx context.Context, filter repositories.CityListFilter) ([]domain.City, error)
}

func (s *stubGeographyRepository) InsertState(ctx context.Context, state domain.State) error {
	if s.insertStateFunc != nil {
		return s.insertStateFunc(ctx, state)
	}
	return nil
}

func (s *stubGeographyRepository) InsertCity(ctx context.Context, city domain.City) error {
	if s.insertCityFunc != nil {
		return s.insertCityFunc(ctx, city)
	}
	return nil
}

func (s *stubGeographyRepository) FindStateByID(ctx context.Context, stateID string) (domain.State, error) {
	if s.findStateByIDFunc != nil {
		return s.findStateByIDFunc(ctx, stateID)
	}
	return domain.State{}, errors.New("not implemented")
}

func (s *stubGeographyRepository) FindCityByID(ctx context.Context, cityID string) (domain.City, error) {
	if s.findCityByIDFunc != nil {
		return s.findCityByIDFunc(ctx, cityID)
	}
	return domain.City{}, errors.New("not implemented")
}

func (s *stubGeographyRepository) ListStates(ctx context.Context, filter repositories.StateListFilter) ([]domain.State, error) {
	if s.listStatesFunc != nil {
		return s.listStatesFunc(ctx, filter)
	}
	return nil, errors.New("not implemented")
}

func (s *stubGeographyRepository) ListCities(ctx context.Context, filter repositories.CityListFilter) ([]domain.City, error) {
	if s.listCitiesFunc != nil {
		return s.listCitiesFunc(ctx, filter)
	}
	return nil, errors.New("not implemented")
}

func TestGeographyServiceCreateStateUppercasesCode(t *testing.T) {
	now := time.Date(2025, 8, 1, 11, 0, 0, 0, time.UTC)
	var inserted domain.State

	geographies := &stubGeographyRepository{
		insertStateFunc: func(ctx context.Context, state domain.State) error {
			inserted = state
			return nil
		},
	}
	service, err := NewGeographyService(GeographyServiceDeps{
		Geographies: geographies,
		Clock:       func() time.Time { return now },
		IDGenerator: fixedID("ABC123456789"),
	})
	if err != nil {
		t.Fatalf("unexpected error constructing geography service: %v", err)
	}

	state, err := service.CreateState(context.Background(), CreateStateCommand{
		Name:    " Lagos ",
		Code:    " lg ",
		Capital: "Ikeja",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if state.ID != "sta_ABC123456789" {
		t.Fatalf("unexpected state id %q", state.ID)
	}
	if inserted.Code != "LG" {
		t.Fatalf("expected uppercased code LG, got %q", inserted.Code)
	}
	if inserted.Name != "Lagos" {
		t.Fatalf("expected trimmed name, got %q", inserted.Name)
	}
}

func TestGeographyServiceCreateCityValidatesState(t *testing.T) {
	geographies := &stubGeographyRepository{
		findStateByIDFunc: func(ctx context.Context, stateID string) (domain.State, error) {
			return domain.State{}, repositories.NewStoreError(repositories.ErrorNotFound, "state missing", nil)
		},
	}
	service, err := NewGeographyService(GeographyServiceDeps{Geographies: geographies})
	if err != nil {
		t.Fatalf("unexpected error constructing geography service: %v", err)
	}

	_, err = service.CreateCity(context.Background(), CreateCityCommand{
		Name:    "Ikeja",
		StateID: "sta_missing",
	})
	if !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}
}

func TestGeographyServiceCreateCity(t *testing.T) {
	var inserted domain.City
	geographies := &stubGeographyRepository{
		findStateByIDFunc: func(ctx context.Context, stateID string) (domain.State, error) {
			return domain.State{ID: stateID, Name: "Lagos"}, nil
		},
		insertCityFunc: func(ctx context.Context, city domain.City) error {
			inserted = city
			return nil
		},
	}
	service, err := NewGeographyService(GeographyServiceDeps{
		Geographies: geographies,
		IDGenerator: fixedID("CTY123456789"),
	})
	if err != nil {
		t.Fatalf("unexpected error constructing geography service: %v", err)
	}

	city, err := service.CreateCity(context.Background(), CreateCityCommand{
		Name:       "Ikeja",
		Code:       "ikj",
		StateID:    "sta_1",
		PostalCode: "100001",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if city.ID != "cty_CTY123456789" {
		t.Fatalf("unexpected city id %q", city.ID)
	}
	if inserted.Code != "IKJ" {
		t.Fatalf("expected uppercased code IKJ, got %q", inserted.Code)
	}
	if inserted.StateID != "sta_1" {
		t.Fatalf("unexpected state id %q", inserted.StateID)
	}
}

func TestGeographyServiceGetCityNotFound(t *testing.T) {
	geographies := &stubGeographyRepository{
		findCityByIDFunc: func(ctx context.Context, cityID string) (domain.City, error) {
			return domain.City{}, repositories.NewStoreError(repositories.ErrorNotFound, "city missing", nil)
		},
	}
	service, err := NewGeographyService(GeographyServiceDeps{Geographies: geographies})
	if err != nil {
		t.Fatalf("unexpected error constructing geography service: %v", err)
	}

	_, err = service.GetCity(context.Background(), "cty_missing")
	if !errors.Is(err, ErrCityNotFound) {
		t.Fatalf("expected ErrCityNotFound, got %v", err)
	}
}

func TestGeographyServiceListStatesUppercasesCodeFilter(t *testing.T) {
	var filter repositories.StateListFilter
	geographies := &stubGeographyRepository{
		listStatesFunc: func(ctx context.Context, f repositories.StateListFilter) ([]domain.State, error) {
			filter = f
			return []domain.State{}, nil
		},
	}
	service, err := NewGeographyService(GeographyServiceDeps{Geographies: geographies})
	if err != nil {
		t.Fatalf("unexpected error constructing geography service: %v", err)
	}

	if _, err := service.ListStates(context.Background(), StateQuery{Code: " lg "}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filter.Code != "LG" {
		t.Fatalf("expected uppercased code filter, got %q", filter.Code)
	}
}
