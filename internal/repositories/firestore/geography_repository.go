package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/maplecart/api/internal/domain"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
	"github.com/maplecart/api/internal/repositories"
)

const (
	stateCollection = "states"
	cityCollection  = "cities"
)

// GeographyRepository persists states and cities in Firestore.
type GeographyRepository struct {
	states *pfirestore.BaseRepository[stateDocument]
	cities *pfirestore.BaseRepository[cityDocument]
}

// NewGeographyRepository constructs a Firestore-backed geography repository.
func NewGeographyRepository(provider *pfirestore.Provider) (*GeographyRepository, error) {
	if provider == nil {
		return nil, errors.New("geography repository requires firestore provider")
	}
	return &GeographyRepository{
		states: pfirestore.NewBaseRepository[stateDocument](provider, stateCollection, nil, nil),
		cities: pfirestore.NewBaseRepository[cityDocument](provider, cityCollection, nil, nil),
	}, nil
}

// InsertState creates a state document.
func (r *GeographyRepository) InsertState(ctx context.Context, state domain.State) error {
	if r == nil || r.states == nil {
		return errors.New("geography repository not initialised")
	}
	if strings.TrimSpace(state.ID) == "" {
		return errors.New("geography repository: state id is required")
	}
	if _, err := r.states.Create(ctx, state.ID, newStateDocument(state)); err != nil {
		return wrapStoreError("states.insert", err)
	}
	return nil
}

// InsertCity creates a city document.
func (r *GeographyRepository) InsertCity(ctx context.Context, city domain.City) error {
	if r == nil || r.cities == nil {
		return errors.New("geography repository not initialised")
	}
	if strings.TrimSpace(city.ID) == "" {
		return errors.New("geography repository: city id is required")
	}
	if _, err := r.cities.Create(ctx, city.ID, newCityDocument(city)); err != nil {
		return wrapStoreError("cities.insert", err)
	}
	return nil
}

// FindStateByID loads a state.
func (r *GeographyRepository) FindStateByID(ctx context.Context, stateID string) (domain.State, error) {
	if r == nil || r.states == nil {
		return domain.State{}, errors.New("geography repository not initialised")
	}
	stateID = strings.TrimSpace(stateID)
	if stateID == "" {
		return domain.State{}, errors.New("geography repository: state id is required")
	}
	doc, err := r.states.Get(ctx, stateID)
	if err != nil {
		return domain.State{}, wrapStoreError("states.findByID", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindCityByID loads a city.
func (r *GeographyRepository) FindCityByID(ctx context.Context, cityID string) (domain.City, error) {
	if r == nil || r.cities == nil {
		return domain.City{}, errors.New("geography repository not initialised")
	}
	cityID = strings.TrimSpace(cityID)
	if cityID == "" {
		return domain.City{}, errors.New("geography repository: city id is required")
	}
	doc, err := r.cities.Get(ctx, cityID)
	if err != nil {
		return domain.City{}, wrapStoreError("cities.findByID", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListStates returns states matching the filter.
func (r *GeographyRepository) ListStates(ctx context.Context, filter repositories.StateListFilter) ([]domain.State, error) {
	if r == nil || r.states == nil {
		return nil, errors.New("geography repository not initialised")
	}
	docs, err := r.states.Query(ctx, func(query firestore.Query) firestore.Query {
		if code := strings.ToUpper(strings.TrimSpace(filter.Code)); code != "" {
			query = query.Where("code", "==", code)
		}
		return query
	})
	if err != nil {
		return nil, wrapStoreError("states.list", err)
	}
	states := make([]domain.State, 0, len(docs))
	for _, doc := range docs {
		state := doc.Data.toDomain(doc.ID)
		if !matchesName(state.Name, filter.Name) {
			continue
		}
		states = append(states, state)
	}
	return states, nil
}

// ListCities returns cities matching the filter.
func (r *GeographyRepository) ListCities(ctx context.Context, filter repositories.CityListFilter) ([]domain.City, error) {
	if r == nil || r.cities == nil {
		return nil, errors.New("geography repository not initialised")
	}
	docs, err := r.cities.Query(ctx, func(query firestore.Query) firestore.Query {
		if stateID := strings.TrimSpace(filter.StateID); stateID != "" {
			query = query.Where("stateId", "==", stateID)
		}
		return query
	})
	if err != nil {
		return nil, wrapStoreError("cities.list", err)
	}
	cities := make([]domain.City, 0, len(docs))
	for _, doc := range docs {
		city := doc.Data.toDomain(doc.ID)
		if !matchesName(city.Name, filter.Name) {
			continue
		}
		cities = append(cities, city)
	}
	return cities, nil
}

type stateDocument struct {
	Name      string    `firestore:"name"`
	Code      string    `firestore:"code"`
	Capital   string    `firestore:"capital,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func newStateDocument(state domain.State) stateDocument {
	return stateDocument{
		Name:      strings.TrimSpace(state.Name),
		Code:      strings.ToUpper(strings.TrimSpace(state.Code)),
		Capital:   strings.TrimSpace(state.Capital),
		CreatedAt: state.CreatedAt.UTC(),
		UpdatedAt: state.UpdatedAt.UTC(),
	}
}

func (d stateDocument) toDomain(id string) domain.State {
	return domain.State{
		ID:        id,
		Name:      d.Name,
		Code:      d.Code,
		Capital:   d.Capital,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type cityDocument struct {
	Name       string    `firestore:"name"`
	Code       string    `firestore:"code,omitempty"`
	StateID    string    `firestore:"stateId"`
	PostalCode string    `firestore:"postalCode,omitempty"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func newCityDocument(city domain.City) cityDocument {
	return cityDocument{
		Name:       strings.TrimSpace(city.Name),
		Code:       strings.ToUpper(strings.TrimSpace(city.Code)),
		StateID:    strings.TrimSpace(city.StateID),
		PostalCode: strings.TrimSpace(city.PostalCode),
		CreatedAt:  city.CreatedAt.UTC(),
		UpdatedAt:  city.UpdatedAt.UTC(),
	}
}

func (d cityDocument) toDomain(id string) domain.City {
	return domain.City{
		ID:         id,
		Name:       d.Name,
		Code:       d.Code,
		StateID:    d.StateID,
		PostalCode: d.PostalCode,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

var _ repositories.GeographyRepository = (*GeographyRepository)(nil)
