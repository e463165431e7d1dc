package handlers

import (
	"time"

	"github.com/orris-inc/cellcore/internal/domain/subscriber"
	vo "github.com/orris-inc/cellcore/internal/domain/subscriber/valueobjects"
	"github.com/orris-inc/cellcore/internal/shared/version"
)

type StatusDTO struct {
	Policy        string       `json:"policy"`
	Patterns      []string     `json:"patterns,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Profiles      int          `json:"profiles"`
	Registrations int          `json:"registrations"`
	Pending       int          `json:"pending"`
	Alarms        int          `json:"alarms"`
	Build         version.Info `json:"build"`
}

// SubscriberDTO never carries key material.
type SubscriberDTO struct {
	IMSI      string       `json:"imsi"`
	Algorithm string       `json:"algorithm"`
	Number    string       `json:"number,omitempty"`
	ShortCode string       `json:"short_code,omitempty"`
	Active    bool         `json:"active"`
	AuthPhase vo.AuthPhase `json:"auth_phase"`
	Sequence  string       `json:"sequence,omitempty"`

	Registered bool       `json:"registered"`
	TMSI       string     `json:"tmsi,omitempty"`
	Location   string     `json:"location,omitempty"`
	Expires    *time.Time `json:"expires,omitempty"`
}

type RejectionDTO struct {
	IMSI  string `json:"imsi"`
	Count int    `json:"count"`
}

func toSubscriberDTO(p *subscriber.Profile, reg *subscriber.Registered) SubscriberDTO {
	dto := SubscriberDTO{
		IMSI:      p.IMSI,
		Algorithm: p.Algorithm.String(),
		Number:    p.Number,
		ShortCode: p.ShortCode,
		Active:    p.Active,
		AuthPhase: p.Auth.Phase,
		Sequence:  p.Sequence,
	}
	if reg != nil {
		dto.Registered = true
		dto.Number = reg.Number
		dto.TMSI = reg.TMSI
		dto.Location = reg.Location
		expires := reg.Expires
		dto.Expires = &expires
	}
	return dto
}
