/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy holds the planning constants of the workload engine. Values come
// from DefaultPolicy, then an optional YAML file, then WORKLOAD_* env vars.
type Policy struct {
	// HorizonWeeks is the number of Monday-anchored weeks in a report.
	HorizonWeeks int `yaml:"horizon_weeks"`
	// DefaultCapacity applies to staff rows with no synced weekly capacity.
	DefaultCapacity float64 `yaml:"default_capacity"`
	// HistoryWindow bounds the worklog history used for dedication estimates.
	HistoryWindow time.Duration `yaml:"-"`
	// FallbackHours is used when nothing else yields an estimate.
	FallbackHours float64 `yaml:"fallback_hours"`
	// EvolutivoHours is the flat estimate for enhancement tickets.
	EvolutivoHours float64 `yaml:"evolutivo_hours"`
	// SupportShare is the fraction of a ticket moved to the technical partner.
	SupportShare float64 `yaml:"support_share"`

	ClosedStatuses   []string `yaml:"closed_statuses"`
	ConsultantTeams  []string `yaml:"consultant_teams"`
	HighPriorities   []string `yaml:"high_priorities"`
	EvolutivoMarkers []string `yaml:"evolutivo_markers"`

	// TechResponsibleField is the tracker custom field naming the partner.
	TechResponsibleField string `yaml:"tech_responsible_field"`
}

func DefaultPolicy() Policy {
	return Policy{
		HorizonWeeks:    12,
		DefaultCapacity: 40,
		HistoryWindow:   90 * 24 * time.Hour,
		FallbackHours:   4,
		EvolutivoHours:  8,
		SupportShare:    0.30,
		ClosedStatuses: []string{
			"Cerrado", "Closed", "Resuelto", "Resolved", "Done", "Finalizado", "Cancelado", "Cancelled",
		},
		ConsultantTeams:      []string{"Consultoría", "Consultoría Funcional"},
		HighPriorities:       []string{"Highest", "High"},
		EvolutivoMarkers:     []string{"evolutivo"},
		TechResponsibleField: "customfield_10054",
	}
}

func (p Policy) Validate() error {
	if p.HorizonWeeks <= 0 {
		return fmt.Errorf("policy: horizon_weeks must be positive, got %d", p.HorizonWeeks)
	}
	if p.DefaultCapacity <= 0 {
		return fmt.Errorf("policy: default_capacity must be positive, got %v", p.DefaultCapacity)
	}
	if p.SupportShare < 0 || p.SupportShare >= 1 {
		return fmt.Errorf("policy: support_share must be in [0,1), got %v", p.SupportShare)
	}
	if p.FallbackHours <= 0 || p.EvolutivoHours <= 0 {
		return errors.New("policy: fallback and evolutivo hours must be positive")
	}
	if p.HistoryWindow <= 0 {
		return errors.New("policy: history_window must be positive")
	}
	return nil
}

// policyFile mirrors Policy with a string window so the YAML can say "2160h".
type policyFile struct {
	Policy        `yaml:",inline"`
	HistoryWindow string `yaml:"history_window"`
}

// LoadPolicyFile overlays the YAML file at path onto base. The os error is
// returned as-is when the file cannot be read.
func LoadPolicyFile(path string, base Policy) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}
	pf := policyFile{Policy: base}
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return base, fmt.Errorf("policy: parse %s: %w", path, err)
	}
	out := pf.Policy
	out.HistoryWindow = base.HistoryWindow
	if pf.HistoryWindow != "" {
		d, err := time.ParseDuration(pf.HistoryWindow)
		if err != nil {
			return base, fmt.Errorf("policy: history_window: %w", err)
		}
		out.HistoryWindow = d
	}
	return out, nil
}

func applyPolicyEnv(p Policy) Policy {
	p.HorizonWeeks = atoi("WORKLOAD_HORIZON_WEEKS", p.HorizonWeeks)
	p.DefaultCapacity = flt("WORKLOAD_DEFAULT_CAPACITY", p.DefaultCapacity)
	if days := atoi("WORKLOAD_HISTORY_DAYS", 0); days > 0 {
		p.HistoryWindow = time.Duration(days) * 24 * time.Hour
	}
	p.FallbackHours = flt("WORKLOAD_FALLBACK_HOURS", p.FallbackHours)
	p.EvolutivoHours = flt("WORKLOAD_EVOLUTIVO_HOURS", p.EvolutivoHours)
	p.SupportShare = flt("WORKLOAD_SUPPORT_SHARE", p.SupportShare)
	if v := parseStrings(os.Getenv("WORKLOAD_CONSULTANT_TEAMS")); len(v) > 0 {
		p.ConsultantTeams = v
	}
	if v := parseStrings(os.Getenv("WORKLOAD_CLOSED_STATUSES")); len(v) > 0 {
		p.ClosedStatuses = v
	}
	p.TechResponsibleField = getenv("JIRA_TECH_RESPONSIBLE_FIELD", p.TechResponsibleField)
	return p
}
