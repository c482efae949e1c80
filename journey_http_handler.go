package autosense

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type registrationRequest struct {
	Session   string `json:"session"`
	Candidate string `json:"candidate"`
	Manual    string `json:"manual"`
	Condition string `json:"condition"`
}

type registrationResponse struct {
	Registration string          `json:"registration"`
	OpenRecalls  int             `json:"open_recalls"`
	Snapshot     VehicleSnapshot `json:"snapshot"`
}

type startJourneyRequest struct {
	Registration string `json:"registration"`
	Session      string `json:"session"`
}

type journeyResponse struct {
	Journey
	Progress float64 `json:"progress"`
	Complete bool    `json:"complete"`
}

type saleRequest struct {
	Condition string `json:"condition"`
}

func newJourneyResponse(j Journey) journeyResponse {
	return journeyResponse{Journey: j, Progress: j.Progress(), Complete: j.Complete()}
}

func decodeBody(req *http.Request, v interface{}) error {
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		return errors.Wrap(errBadRequest, fmt.Sprintf("unable to unmarshal json: %v", err))
	}
	return nil
}

func conditionOrDefault(condition string) (string, error) {
	if condition == "" {
		return DefaultCondition, nil
	}
	if !ValidCondition(condition) {
		return "", errors.Wrapf(errBadRequest, "unknown condition %q", condition)
	}
	return condition, nil
}

// handleRegistration resolves the registration from a manual entry or a
// candidate offered by the session's last scan and returns the vehicle
// snapshot for it.
func (s *Server) handleRegistration(w http.ResponseWriter, req *http.Request) {
	regReq := registrationRequest{}
	if err := decodeBody(req, &regReq); err != nil {
		s.writeError(w, err)
		return
	}
	condition, err := conditionOrDefault(regReq.Condition)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var candidates []string
	if regReq.Session != "" {
		session, err := s.sessions.Get(regReq.Session)
		if err != nil {
			s.writeError(w, err)
			return
		}
		candidates = session.Candidates
	}
	registration, err := ResolveRegistration(candidates, regReq.Candidate, regReq.Manual)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if regReq.Session != "" {
		_, err := s.sessions.Update(regReq.Session, func(session *Session) {
			session.Registration = registration
			session.Condition = condition
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
	}

	snapshot := BuildSnapshot(registration, condition, s.now())
	log.Info().Str("component", "REGISTRATION_HTTP").Str("registration", registration).
		Str("condition", condition).Msg("registration confirmed")
	writeJSON(w, http.StatusOK, registrationResponse{
		Registration: registration,
		OpenRecalls:  OpenRecalls(snapshot.Recalls),
		Snapshot:     snapshot,
	})
}

func (s *Server) handleStartJourney(w http.ResponseWriter, req *http.Request) {
	startReq := startJourneyRequest{}
	if err := decodeBody(req, &startReq); err != nil {
		s.writeError(w, err)
		return
	}
	registration := startReq.Registration
	if registration == "" && startReq.Session != "" {
		session, err := s.sessions.Get(startReq.Session)
		if err != nil {
			s.writeError(w, err)
			return
		}
		registration = session.Registration
	}

	journey, err := s.journeys.Start(req.Context(), registration)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if startReq.Session != "" {
		_, err := s.sessions.Update(startReq.Session, func(session *Session) {
			session.JourneyID = journey.TrackingID
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, newJourneyResponse(journey))
}

func (s *Server) handleGetJourney(w http.ResponseWriter, req *http.Request) {
	journey, err := s.journeys.Get(req.Context(), req.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newJourneyResponse(journey))
}

func (s *Server) handleAdvanceJourney(w http.ResponseWriter, req *http.Request) {
	journey, err := s.journeys.Advance(req.Context(), req.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newJourneyResponse(journey))
}

func (s *Server) handleRecordSale(w http.ResponseWriter, req *http.Request) {
	saleReq := saleRequest{}
	// the body is optional
	if err := json.NewDecoder(req.Body).Decode(&saleReq); err != nil && err != io.EOF {
		s.writeError(w, errors.Wrap(errBadRequest, fmt.Sprintf("unable to unmarshal json: %v", err)))
		return
	}
	condition, err := conditionOrDefault(saleReq.Condition)
	if err != nil {
		s.writeError(w, err)
		return
	}
	record, err := s.journeys.RecordSale(req.Context(), req.PathValue("id"), condition)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleGetSale(w http.ResponseWriter, req *http.Request) {
	record, err := s.journeys.Sale(req.Context(), req.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleSnapshot serves the vehicle snapshot as a downloadable file.
func (s *Server) handleSnapshot(w http.ResponseWriter, req *http.Request) {
	registration := NormalizeManualRegistration(req.PathValue("registration"))
	if registration == "" {
		s.writeError(w, ErrNoRegistration)
		return
	}
	condition, err := conditionOrDefault(req.URL.Query().Get("condition"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	snapshot := BuildSnapshot(registration, condition, s.now())
	js, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", registration+"_snapshot.json"))
	if _, err := w.Write(js); err != nil {
		log.Error().Err(err).Str("component", "HTTP").Msg("http write() failed")
	}
}

func (s *Server) handleInsurance(w http.ResponseWriter, req *http.Request) {
	registration := NormalizeManualRegistration(req.PathValue("registration"))
	if registration == "" {
		s.writeError(w, ErrNoRegistration)
		return
	}
	writeJSON(w, http.StatusOK, MockInsuranceQuote(registration))
}
