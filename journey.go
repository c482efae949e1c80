package autosense

import (
	"context"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
)

type Stage struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// JourneyStages is the fixed sales pipeline every journey walks through.
var JourneyStages = [5]Stage{
	{Name: "Appraisal", Description: "Vehicle identified and valued"},
	{Name: "Offer", Description: "Offer presented to the customer"},
	{Name: "Finance", Description: "Finance and part exchange agreed"},
	{Name: "Paperwork", Description: "Contracts signed and checks complete"},
	{Name: "Handover", Description: "Vehicle handed over"},
}

var ErrJourneyNotFound = errors.New("journey not found")

const maxTrackingIDAttempts = 3

type JourneyEvent struct {
	Stage     int       `json:"stage"`
	StageName string    `json:"stage_name"`
	At        time.Time `json:"at"`
}

type Journey struct {
	TrackingID   string         `json:"tracking_id"`
	Registration string         `json:"registration"`
	Stage        int            `json:"stage"`
	StageName    string         `json:"stage_name"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	History      []JourneyEvent `json:"history"`
}

func (j Journey) Complete() bool {
	return j.Stage == len(JourneyStages)-1
}

// Progress is the completed share of the pipeline, 0.2 at the first stage.
func (j Journey) Progress() float64 {
	return float64(j.Stage+1) / float64(len(JourneyStages))
}

// Advance moves one stage forward. At the last stage it is a no-op and
// returns false.
func (j *Journey) Advance(now time.Time) bool {
	if j.Complete() {
		return false
	}
	j.Stage++
	j.StageName = JourneyStages[j.Stage].Name
	j.UpdatedAt = now
	j.History = append(j.History, JourneyEvent{Stage: j.Stage, StageName: j.StageName, At: now})
	return true
}

type SalesRecord struct {
	TrackingID   string    `json:"tracking_id"`
	Registration string    `json:"registration"`
	Make         string    `json:"make"`
	Model        string    `json:"model"`
	Value        int       `json:"value"`
	Condition    string    `json:"condition"`
	Stage        string    `json:"stage"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// JourneyService persists journeys and sales records as JSON files.
type JourneyService struct {
	journeys *RecordStore
	sales    *RecordStore
	ids      *TrackingIDGenerator
	now      func() time.Time
	// serialises read-modify-write of a journey file
	mu deadlock.Mutex
}

func NewJourneyService(dataDir string, ids *TrackingIDGenerator) (*JourneyService, error) {
	journeys, err := NewRecordStore(filepath.Join(dataDir, "journeys"))
	if err != nil {
		return nil, err
	}
	sales, err := NewRecordStore(filepath.Join(dataDir, "sales"))
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = NewTrackingIDGenerator()
	}
	return &JourneyService{
		journeys: journeys,
		sales:    sales,
		ids:      ids,
		now:      time.Now,
	}, nil
}

func (s *JourneyService) Start(ctx context.Context, registration string) (Journey, error) {
	registration = NormalizeManualRegistration(registration)
	if registration == "" {
		return Journey{}, ErrNoRegistration
	}
	now := s.now().UTC()

	for attempt := 0; attempt < maxTrackingIDAttempts; attempt++ {
		id, err := s.ids.New()
		if err != nil {
			return Journey{}, err
		}
		journey := Journey{
			TrackingID:   id,
			Registration: registration,
			Stage:        0,
			StageName:    JourneyStages[0].Name,
			CreatedAt:    now,
			UpdatedAt:    now,
			History:      []JourneyEvent{{Stage: 0, StageName: JourneyStages[0].Name, At: now}},
		}
		err = s.journeys.Create(ctx, id, journey)
		if errors.Is(err, ErrRecordExists) {
			log.Warn().Str("component", "JOURNEY_STORE").Str("tracking_id", id).
				Msg("tracking id collision, drawing a new one")
			continue
		}
		if err != nil {
			return Journey{}, err
		}
		log.Info().Str("component", "JOURNEY_STORE").Str("tracking_id", id).
			Str("registration", registration).Msg("journey started")
		return journey, nil
	}
	return Journey{}, errors.New("could not allocate a unique tracking id")
}

func (s *JourneyService) Get(ctx context.Context, trackingID string) (Journey, error) {
	if !ValidTrackingID(trackingID) {
		return Journey{}, errors.Wrapf(ErrInvalidTrackingID, "%q", trackingID)
	}
	journey := Journey{}
	if err := s.journeys.Get(ctx, trackingID, &journey); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return Journey{}, errors.Wrapf(ErrJourneyNotFound, "%s", trackingID)
		}
		return Journey{}, err
	}
	return journey, nil
}

func (s *JourneyService) Advance(ctx context.Context, trackingID string) (Journey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	journey, err := s.Get(ctx, trackingID)
	if err != nil {
		return Journey{}, err
	}
	if !journey.Advance(s.now().UTC()) {
		return journey, nil
	}
	if err := s.journeys.Put(ctx, trackingID, journey); err != nil {
		return Journey{}, err
	}
	log.Info().Str("component", "JOURNEY_STORE").Str("tracking_id", trackingID).
		Str("stage", journey.StageName).Msg("journey advanced")
	return journey, nil
}

// RecordSale stores the valuation for a journey's vehicle; recording again
// replaces the previous record.
func (s *JourneyService) RecordSale(ctx context.Context, trackingID string, condition string) (SalesRecord, error) {
	journey, err := s.Get(ctx, trackingID)
	if err != nil {
		return SalesRecord{}, err
	}
	now := s.now().UTC()
	snapshot := BuildSnapshot(journey.Registration, condition, now)
	record := SalesRecord{
		TrackingID:   trackingID,
		Registration: journey.Registration,
		Make:         snapshot.Vehicle.Make,
		Model:        snapshot.Vehicle.Model,
		Value:        snapshot.Valuation.Value,
		Condition:    snapshot.Valuation.Condition,
		Stage:        journey.StageName,
		RecordedAt:   now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	exists, err := s.sales.Exists(ctx, trackingID)
	if err != nil {
		return SalesRecord{}, err
	}
	if exists {
		err = s.sales.Put(ctx, trackingID, record)
	} else {
		err = s.sales.Create(ctx, trackingID, record)
	}
	if err != nil {
		return SalesRecord{}, err
	}
	return record, nil
}

func (s *JourneyService) Sale(ctx context.Context, trackingID string) (SalesRecord, error) {
	if !ValidTrackingID(trackingID) {
		return SalesRecord{}, errors.Wrapf(ErrInvalidTrackingID, "%q", trackingID)
	}
	record := SalesRecord{}
	err := s.sales.Get(ctx, trackingID, &record)
	return record, err
}
