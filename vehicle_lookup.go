package autosense

import (
	"strings"
	"time"
)

// The lookups below are static placeholders for DVLA, MOT, HPI and CAP
// adapters; they ignore the registration apart from echoing it back.

const isoDate = "2006-01-02"

type Vehicle struct {
	Registration string `json:"reg"`
	Make         string `json:"make"`
	Model        string `json:"model"`
	Year         int    `json:"year"`
	VIN          string `json:"vin"`
	Mileage      int    `json:"mileage"`
}

type MOTTest struct {
	Date    string `json:"date"`
	Result  string `json:"result"`
	Mileage int    `json:"mileage"`
}

type MOTAndTax struct {
	MOTNextDue string    `json:"mot_next_due"`
	MOTHistory []MOTTest `json:"mot_history"`
	TaxExpiry  string    `json:"tax_expiry"`
}

type Recall struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
	Open    bool   `json:"open"`
}

type HistoryFlags struct {
	WriteOff       bool   `json:"write_off"`
	Theft          bool   `json:"theft"`
	MileageAnomaly bool   `json:"mileage_anomaly"`
	Note           string `json:"note"`
}

type Valuation struct {
	Value     int    `json:"value"`
	Condition string `json:"condition"`
}

// VehicleSnapshot is the downloadable summary of every lookup.
type VehicleSnapshot struct {
	Vehicle      Vehicle      `json:"vehicle"`
	MOTTax       MOTAndTax    `json:"mot_tax"`
	Recalls      []Recall     `json:"recalls"`
	HistoryFlags HistoryFlags `json:"history_flags"`
	Valuation    Valuation    `json:"valuation"`
	QueriedAt    time.Time    `json:"queried_at"`
}

var conditionMultipliers = map[string]float64{
	"excellent": 1.05,
	"good":      1.0,
	"fair":      0.9,
	"poor":      0.8,
}

const DefaultCondition = "good"

func ValidCondition(condition string) bool {
	_, ok := conditionMultipliers[condition]
	return ok
}

func LookupVehicle(reg string) Vehicle {
	return Vehicle{
		Registration: strings.ReplaceAll(strings.ToUpper(reg), " ", ""),
		Make:         "BMW",
		Model:        "3 Series",
		Year:         2018,
		VIN:          "WBA8BFAKEVIN12345",
		Mileage:      54000,
	}
}

func LookupMOTAndTax(reg string, today time.Time) MOTAndTax {
	return MOTAndTax{
		MOTNextDue: today.AddDate(0, 0, 120).Format(isoDate),
		MOTHistory: []MOTTest{
			{Date: "2024-08-17", Result: "Pass", Mileage: 52000},
			{Date: "2023-08-10", Result: "Advisory", Mileage: 48000},
		},
		TaxExpiry: today.AddDate(0, 0, 30).Format(isoDate),
	}
}

func LookupRecalls(regOrVIN string) []Recall {
	return []Recall{{ID: "R-2023-001", Summary: "Airbag inflator recall - replace module", Open: true}}
}

func OpenRecalls(recalls []Recall) int {
	n := 0
	for _, r := range recalls {
		if r.Open {
			n++
		}
	}
	return n
}

func LookupHistoryFlags(reg string) HistoryFlags {
	return HistoryFlags{
		MileageAnomaly: true,
		Note:           "Mileage shows a 5,000 jump in 2021 record",
	}
}

// EstimateValue depreciates from 25000 by 2000 a year and a pound per ten
// miles, scaled by condition, never below 100.
func EstimateValue(year, mileage int, condition string, today time.Time) int {
	age := today.Year() - year
	base := 25000 - float64(age*2000) - float64(mileage)/10
	multiplier, ok := conditionMultipliers[condition]
	if !ok {
		multiplier = 1.0
	}
	value := int(base * multiplier)
	if value < 100 {
		return 100
	}
	return value
}

func BuildSnapshot(reg string, condition string, now time.Time) VehicleSnapshot {
	if condition == "" {
		condition = DefaultCondition
	}
	vehicle := LookupVehicle(reg)
	return VehicleSnapshot{
		Vehicle:      vehicle,
		MOTTax:       LookupMOTAndTax(vehicle.Registration, now),
		Recalls:      LookupRecalls(vehicle.Registration),
		HistoryFlags: LookupHistoryFlags(vehicle.Registration),
		Valuation: Valuation{
			Value:     EstimateValue(vehicle.Year, vehicle.Mileage, condition, now),
			Condition: condition,
		},
		QueriedAt: now.UTC(),
	}
}

type InsuranceQuote struct {
	AnnualPremium int    `json:"annual_premium"`
	Cover         string `json:"cover"`
	Excess        int    `json:"excess"`
}

func MockInsuranceQuote(reg string) InsuranceQuote {
	return InsuranceQuote{AnnualPremium: 320, Cover: "3rd party", Excess: 250}
}
